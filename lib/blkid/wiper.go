// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

// wipeRecord remembers one byte range an identifier claimed as "this is
// where my signature lives, and nothing else should be trusted to live
// there too" -- e.g. an LVM2 PV label wipes the area a stale DOS MBR
// signature might still occupy from a previous format.
type wipeRecord struct {
	chain  ChainKind
	name   string
	offset Addr
	size   int64
}

func (r wipeRecord) contains(off Addr) bool {
	return off >= r.offset && int64(off-r.offset) < r.size
}

// wiperState tracks every wipe range recorded so far during a probe pass.
type wiperState struct {
	records []wipeRecord
}

func (w *wiperState) record(chain ChainKind, name string, off Addr, size int64) {
	w.records = append(w.records, wipeRecord{chain: chain, name: name, offset: off, size: size})
}

// coveredByOther reports whether offset falls inside any wipe range
// recorded on the given chain, whichever identifier recorded it; such a
// hit is a stale signature and should be discarded rather than counted.
func (w *wiperState) coveredByOther(chain ChainKind, offset Addr) bool {
	for _, r := range w.records {
		if r.chain == chain && r.contains(offset) {
			return true
		}
	}
	return false
}

// Reset discards every recorded wipe range; called on BindDevice.
func (w *wiperState) Reset() {
	w.records = nil
}
