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
	"github.com/blkidcore/blkid/lib/binstruct/binint"
)

const extMagic = 0xEF53

const (
	ext2FeatureCompatHasJournal   = 0x0004
	ext2FeatureIncompatExtents    = 0x0040
	ext2FeatureIncompat64Bit      = 0x0080
	ext2FeatureROCompatMetadataCS = 0x0400
)

// extSuperblock is the leading part of struct ext2_super_block, up to and
// including s_volume_name. binstruct requires every byte of the layout to
// be declared, so the fields identification does not use are covered by
// the Reserved padding arrays; everything after s_volume_name is not read.
type extSuperblock struct {
	InodesCount     binint.U32le `bin:"off=0x0,   siz=0x4"`
	BlocksCountLo   binint.U32le `bin:"off=0x4,   siz=0x4"`
	Reserved0       [0x10]byte   `bin:"off=0x8,   siz=0x10"`
	LogBlockSize    binint.U32le `bin:"off=0x18,  siz=0x4"`
	Reserved1       [0x1c]byte   `bin:"off=0x1c,  siz=0x1c"`
	Magic           binint.U16le `bin:"off=0x38,  siz=0x2"`
	State           binint.U16le `bin:"off=0x3a,  siz=0x2"`
	Reserved2       [0x20]byte   `bin:"off=0x3c,  siz=0x20"`
	FeatureCompat   binint.U32le `bin:"off=0x5c,  siz=0x4"`
	FeatureIncompat binint.U32le `bin:"off=0x60,  siz=0x4"`
	FeatureROCompat binint.U32le `bin:"off=0x64,  siz=0x4"`
	UUID            [16]byte     `bin:"off=0x68,  siz=0x10"`
	VolumeName      [16]byte     `bin:"off=0x78,  siz=0x10"`

	binstruct.End `bin:"off=0x88"`
}

func extIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "ext2",
		Usage:   UsageFS,
		Flags:   Magic,
		MinSize: 2048,
		Magics: []MagicDescriptor{
			{Bytes: []byte{0x53, 0xef}, KBOff: 1, SBOff: 0x38},
		},
		Probe: probeExt,
	}}
}

func probeExt(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	sbStart := match.Offset - 0x38
	size := binstruct.StaticSize(extSuperblock{})
	data, status, err := p.buffers.Read(ctx, sbStart, int64(size))
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	var sb extSuperblock
	if _, err := binstruct.Unmarshal(data, &sb); err != nil {
		return false, fmt.Errorf("blkid: ext: %w", err)
	}
	if uint16(sb.Magic) != extMagic {
		return false, nil
	}

	blockSize := int64(1024) << uint32(sb.LogBlockSize)
	fsSize := blockSize * int64(uint32(sb.BlocksCountLo))

	badCSum := false
	if uint32(sb.FeatureROCompat)&ext2FeatureROCompatMetadataCS != 0 {
		if ok, err := verifyExtChecksum(ctx, p, sbStart); err != nil {
			return false, err
		} else if !ok {
			if ch.Flags&BadCSumOK == 0 {
				return false, nil
			}
			badCSum = true
		}
	}

	secType := "ext2"
	switch {
	case uint32(sb.FeatureIncompat)&(ext2FeatureIncompatExtents|ext2FeatureIncompat64Bit) != 0:
		secType = "ext4"
	case uint32(sb.FeatureCompat)&ext2FeatureCompatHasJournal != 0:
		secType = "ext3"
	}

	p.values.append(ch.Kind, NameType, []byte(secType))
	p.values.appendf(ch.Kind, NameBlockSize, "%d", blockSize)
	p.values.appendf(ch.Kind, NameFSBlockSize, "%d", blockSize)
	p.values.appendf(ch.Kind, NameFSSize, "%d", fsSize)
	if badCSum {
		p.values.append(ch.Kind, NameSBBadCSum, []byte("1"))
	}

	if !allZero(sb.UUID[:]) {
		if u, err := uuid.FromBytes(sb.UUID[:]); err == nil {
			p.values.append(ch.Kind, NameUUID, []byte(u.String()))
		}
	}
	if label := trimNUL(sb.VolumeName[:]); label != "" {
		p.values.append(ch.Kind, NameLabel, []byte(label))
	}

	return true, nil
}

// verifyExtChecksum validates the ext4 metadata_csum superblock checksum:
// crc32c over the first 1020 bytes of the superblock, stored as the last
// 4 bytes of the 1024-byte structure.
func verifyExtChecksum(ctx context.Context, p *Probe, sbStart Addr) (bool, error) {
	data, status, err := p.buffers.Read(ctx, sbStart, 1024)
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}
	want := crc32.Checksum(data[:1020], crc32CastagnoliTable)
	got := uint32(data[1020]) | uint32(data[1021])<<8 | uint32(data[1022])<<16 | uint32(data[1023])<<24
	return want == got, nil
}

var crc32CastagnoliTable = crc32.MakeTable(crc32.Castagnoli)
