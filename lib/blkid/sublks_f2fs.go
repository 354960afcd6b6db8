// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/blkidcore/blkid/lib/binstruct"
	"github.com/blkidcore/blkid/lib/binstruct/binint"
)

const f2fsMagic = 0xF2F52010

// f2fsSuperblockSize is the on-disk size of struct f2fs_super_block; the
// checksum, when present, covers some prefix of these bytes no larger
// than this, so a corrupt checksum_offset field can't turn verification
// into an unbounded read.
const f2fsSuperblockSize = 4096

var f2fsCRCTable = crc32.MakeTable(crc32.Castagnoli)

// f2fsSuperblock is struct f2fs_super_block, trimmed to the fields
// identification needs.
type f2fsSuperblock struct {
	Magic          binint.U32le `bin:"off=0x0,  siz=0x4"`
	MajorVersion   binint.U16le `bin:"off=0x4,  siz=0x2"`
	MinorVersion   binint.U16le `bin:"off=0x6,  siz=0x2"`
	LogSectorSz    binint.U32le `bin:"off=0x8,  siz=0x4"`
	Reserved0      [0x4]byte    `bin:"off=0xc,  siz=0x4"`
	LogBlockSz     binint.U32le `bin:"off=0x10, siz=0x4"`
	Reserved1      [0x20]byte   `bin:"off=0x14, siz=0x20"`
	BlockCount     binint.U64le `bin:"off=0x34, siz=0x8"`
	Reserved2      [0x30]byte   `bin:"off=0x3c, siz=0x30"`
	UUID           [16]byte     `bin:"off=0x6c, siz=0x10"`
	// ChecksumOffset is the byte offset, within this superblock, of the
	// 4-byte checksum field itself; the checksum covers every byte
	// before it. Zero means the format predates checksummed superblocks.
	ChecksumOffset binint.U32le `bin:"off=0x7c, siz=0x4"`
	Reserved3      [0x4]byte    `bin:"off=0x80, siz=0x4"`
	VolumeName     [512]byte    `bin:"off=0x84, siz=0x200"` // UTF-16LE, 256 code units

	binstruct.End `bin:"off=0x284"`
}

func f2fsIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "f2fs",
		Usage:   UsageFS,
		Flags:   Magic,
		MinSize: 2 * 1024 * 1024,
		Magics: []MagicDescriptor{
			{Bytes: []byte{0x10, 0x20, 0xf5, 0xf2}, KBOff: 1, SBOff: 0},
		},
		Probe: probeF2FS,
	}}
}

func probeF2FS(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	sbStart := match.Offset
	size := binstruct.StaticSize(f2fsSuperblock{})
	data, status, err := p.buffers.Read(ctx, sbStart, int64(size))
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	var sb f2fsSuperblock
	if _, err := binstruct.Unmarshal(data, &sb); err != nil {
		return false, fmt.Errorf("blkid: f2fs: %w", err)
	}
	if uint32(sb.Magic) != f2fsMagic {
		return false, nil
	}

	badCSum := false
	if csumOffset := uint32(sb.ChecksumOffset); csumOffset != 0 {
		ok, err := verifyF2FSChecksum(ctx, p, sbStart, csumOffset)
		if err != nil {
			return false, err
		}
		if !ok {
			if ch.Flags&BadCSumOK == 0 {
				return false, nil
			}
			badCSum = true
		}
	}

	blockSize := int64(1) << uint32(sb.LogBlockSz)
	fsSize := blockSize * int64(uint64(sb.BlockCount))

	p.values.append(ch.Kind, NameType, []byte("f2fs"))
	p.values.appendf(ch.Kind, NameVersion, "%d.%d", uint16(sb.MajorVersion), uint16(sb.MinorVersion))
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
	if label := decodeUTF16LEVolumeName(sb.VolumeName[:]); label != "" {
		p.values.append(ch.Kind, NameLabel, []byte(label))
	}

	return true, nil
}

// verifyF2FSChecksum validates the superblock checksum f2fs writes when
// the checksum_offset field is non-zero: a CRC32-Castagnoli over the
// first checksumOffset bytes of the superblock, seeded with the
// superblock magic, compared against the 4-byte little-endian value
// stored at that same offset.
func verifyF2FSChecksum(ctx context.Context, p *Probe, sbStart Addr, checksumOffset uint32) (bool, error) {
	if checksumOffset == 0 || uint64(checksumOffset)+4 > f2fsSuperblockSize {
		return false, nil
	}
	data, status, err := p.buffers.Read(ctx, sbStart, int64(checksumOffset)+4)
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}
	want := crc32.Update(f2fsMagic, f2fsCRCTable, data[:checksumOffset])
	got := binary.LittleEndian.Uint32(data[checksumOffset : checksumOffset+4])
	return want == got, nil
}

// decodeUTF16LEVolumeName decodes a NUL-terminated UTF-16LE volume name,
// the encoding F2FS (like exFAT) stores labels in.
func decodeUTF16LEVolumeName(raw []byte) string {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(raw)
	if err != nil {
		return ""
	}
	return trimNUL(out)
}
