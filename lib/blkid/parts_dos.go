// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "context"

const (
	dosPartTableOffset = 0x1be
	dosPartEntrySize   = 16
	dosPartEntryCount  = 4
	dosTypeExtendedCHS = 0x05
	dosTypeExtendedLBA = 0x0f
	dosTypeExtendedLnx = 0x85
)

func dosPartsIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "dos",
		Usage:   UsageOther,
		Flags:   Magic,
		MinSize: 512,
		Magics: []MagicDescriptor{
			{Bytes: []byte{0x55, 0xaa}, KBOff: 0, SBOff: 510},
		},
		Probe: probeDOSParts,
	}}
}

type dosEntry struct {
	bootFlag byte
	typ      byte
	lbaStart uint32
	sectors  uint32
}

func parseDOSEntry(b []byte) dosEntry {
	return dosEntry{
		bootFlag: b[0],
		typ:      b[4],
		lbaStart: le32(b[8:12]),
		sectors:  le32(b[12:16]),
	}
}

func isExtended(typ byte) bool {
	return typ == dosTypeExtendedCHS || typ == dosTypeExtendedLBA || typ == dosTypeExtendedLnx
}

func probeDOSParts(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	sector0, status, err := p.buffers.Read(ctx, 0, 512)
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	// A boot signature inside a range a SUBLKS identifier declared wiped
	// (an LVM2 PV label, say) is a stale leftover, not a live table.
	if p.wiper.coveredByOther(ChainSublks, match.Offset) {
		return false, nil
	}

	// A GPT disk always carries a protective MBR with a single 0xEE
	// entry spanning the whole device; don't report it as a real DOS
	// table, since the GPT identifier already covers that disk.
	firstType := sector0[dosPartTableOffset+4]
	if firstType == 0xee {
		return false, nil
	}

	table := &PartitionTable{Scheme: "dos"}
	number := 1
	for i := 0; i < dosPartEntryCount; i++ {
		raw := sector0[dosPartTableOffset+i*dosPartEntrySize : dosPartTableOffset+(i+1)*dosPartEntrySize]
		e := parseDOSEntry(raw)
		if e.typ == 0 {
			continue
		}
		entry := &PartitionEntry{
			Number: number,
			Offset: Addr(e.lbaStart) * DefaultSectorSize,
			Size:   int64(e.sectors) * DefaultSectorSize,
			Type:   hex2(e.typ),
			Flags:  uint64(e.bootFlag),
		}
		number++
		if isExtended(e.typ) {
			children, err := p.walkEBRChain(ctx, Addr(e.lbaStart)*DefaultSectorSize, Addr(e.lbaStart)*DefaultSectorSize, &number)
			if err != nil {
				return false, err
			}
			entry.Children = children
		}
		table.Entries = append(table.Entries, entry)
	}

	ch.setData(table)
	table.emitValues(p.values, ch.Kind)
	p.values.append(ch.Kind, NamePTType, []byte("dos"))

	return true, nil
}

// walkEBRChain follows one level of extended-boot-record nesting: each
// EBR sector holds one logical partition entry and, in its second slot, a
// pointer to the next EBR, relative to extBase. The chain itself can run
// for as many logical partitions as the disk has, but it never nests an
// extended partition inside another; that's the "one level" referred to.
func (p *Probe) walkEBRChain(ctx context.Context, extBase, ebrLBA Addr, number *int) ([]*PartitionEntry, error) {
	var out []*PartitionEntry
	const maxEBRChain = 256 // defends against a corrupt, self-referential chain

	for i := 0; i < maxEBRChain; i++ {
		sector, status, err := p.buffers.Read(ctx, ebrLBA, 512)
		if err != nil {
			return out, err
		}
		if status != ReadOK {
			break
		}
		if sector[510] != 0x55 || sector[511] != 0xaa {
			break
		}

		first := parseDOSEntry(sector[dosPartTableOffset : dosPartTableOffset+dosPartEntrySize])
		second := parseDOSEntry(sector[dosPartTableOffset+dosPartEntrySize : dosPartTableOffset+2*dosPartEntrySize])

		if first.typ != 0 {
			out = append(out, &PartitionEntry{
				Number: *number,
				Offset: ebrLBA + Addr(first.lbaStart)*DefaultSectorSize,
				Size:   int64(first.sectors) * DefaultSectorSize,
				Type:   hex2(first.typ),
			})
			*number++
		}

		if second.typ == 0 {
			break
		}
		ebrLBA = extBase + Addr(second.lbaStart)*DefaultSectorSize
	}

	return out, nil
}

func hex2(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}
