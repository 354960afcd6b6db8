// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

// PartitionEntry is one slot in a partition table. Nested tables (a DOS
// extended partition's logical drives, chiefly) are represented by
// Children, so a whole table -- however deeply the extended chain runs --
// is reachable from PartitionTable.Entries alone.
type PartitionEntry struct {
	Number int
	Offset Addr // absolute byte offset from the start of the device
	Size   int64
	Type   string // scheme-specific type code: two hex digits for DOS, a GUID for GPT
	UUID   string
	Name   string
	Flags  uint64

	Children []*PartitionEntry
}

// PartitionTable is the result a PARTS-chain identifier leaves in its
// Chain's Data for the caller to walk.
type PartitionTable struct {
	Scheme string // "dos" or "gpt"
	UUID   string
	Entries []*PartitionEntry
}

// Flatten returns every entry in the table in pre-order (a parent always
// precedes its children), which is the traversal order PART_ENTRY_NUMBER
// is assigned in.
func (t *PartitionTable) Flatten() []*PartitionEntry {
	var out []*PartitionEntry
	var walk func([]*PartitionEntry)
	walk = func(entries []*PartitionEntry) {
		for _, e := range entries {
			out = append(out, e)
			walk(e.Children)
		}
	}
	walk(t.Entries)
	return out
}

// emitValues appends PART_ENTRY_* values for every entry in the table, in
// flattened pre-order, onto the given chain.
func (t *PartitionTable) emitValues(values *valueStore, chain ChainKind) {
	for _, e := range t.Flatten() {
		values.appendf(chain, NamePartEntryScheme, "%s", t.Scheme)
		values.appendf(chain, NamePartEntryNumber, "%d", e.Number)
		values.appendf(chain, NamePartEntryOffset, "%d", e.Offset)
		values.appendf(chain, NamePartEntrySize, "%d", e.Size)
		if e.Type != "" {
			values.appendf(chain, NamePartEntryType, "%s", e.Type)
		}
		if e.UUID != "" {
			values.appendf(chain, NamePartEntryUUID, "%s", e.UUID)
		}
		if e.Name != "" {
			values.appendf(chain, NamePartEntryName, "%s", e.Name)
		}
		if e.Flags != 0 {
			values.appendf(chain, NamePartEntryFlags, "0x%x", e.Flags)
		}
	}
}
