// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/blkidcore/blkid/lib/binstruct"
)

var btrfsMagicBytes = [8]byte{'_', 'B', 'H', 'R', 'f', 'S', '_', 'M'}

// btrfsSuperblock mirrors the start of struct btrfs_super_block: just
// enough fields to validate the checksum and report TYPE/UUID/LABEL, not
// the whole tree-bootstrapping layout a filesystem driver would need.
type btrfsSuperblock struct {
	Checksum   [32]byte `bin:"off=0x0,   siz=0x20"`
	FSUUID     [16]byte `bin:"off=0x20,  siz=0x10"`
	Self       [8]byte  `bin:"off=0x30,  siz=0x8"`
	Flags      [8]byte  `bin:"off=0x38,  siz=0x8"`
	Magic      [8]byte  `bin:"off=0x40,  siz=0x8"`
	Generation [8]byte  `bin:"off=0x48,  siz=0x8"`
	// Tree roots and geometry are not needed to identify; binstruct
	// requires the layout to be contiguous, so they are read as padding.
	Reserved [0xdb]byte  `bin:"off=0x50,  siz=0xdb"`
	Label    [0x100]byte `bin:"off=0x12b, siz=0x100"`

	binstruct.End `bin:"off=0x22b"`
}

func btrfsIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "btrfs",
		Usage:   UsageFS,
		Flags:   Magic,
		MinSize: 0x10000 + 0x1000,
		Magics: []MagicDescriptor{
			{Bytes: btrfsMagicBytes[:], KBOff: 64, SBOff: 0x40},
		},
		Probe: probeBtrfs,
	}}
}

func probeBtrfs(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	sbStart := match.Offset - 0x40
	size := binstruct.StaticSize(btrfsSuperblock{})
	data, status, err := p.buffers.Read(ctx, sbStart, int64(size))
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	var sb btrfsSuperblock
	if _, err := binstruct.Unmarshal(data, &sb); err != nil {
		return false, fmt.Errorf("blkid: btrfs: %w", err)
	}

	// The checksum covers everything from Checksum's end (0x20) to the
	// 4096-byte end of the superblock; read the whole thing to verify.
	full, status, err := p.buffers.Read(ctx, sbStart, 0x1000)
	if err != nil {
		return false, err
	}
	badCSum := false
	if status == ReadOK {
		want := crc32.Checksum(full[0x20:], crc32CastagnoliTable)
		got := uint32(sb.Checksum[0]) | uint32(sb.Checksum[1])<<8 | uint32(sb.Checksum[2])<<16 | uint32(sb.Checksum[3])<<24
		if want != got {
			if ch.Flags&BadCSumOK == 0 {
				return false, nil
			}
			badCSum = true
		}
	}

	p.values.append(ch.Kind, NameType, []byte("btrfs"))
	if u, err := uuid.FromBytes(sb.FSUUID[:]); err == nil {
		p.values.append(ch.Kind, NameUUID, []byte(u.String()))
	}
	if label := trimNUL(sb.Label[:]); label != "" {
		p.values.append(ch.Kind, NameLabel, []byte(label))
	}
	if badCSum {
		p.values.append(ch.Kind, NameSBBadCSum, []byte("1"))
	}

	return true, nil
}
