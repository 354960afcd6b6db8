// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blkidcore/blkid/lib/diskio"
)

// mdMagicLE is MD_SB_MAGIC as it appears on disk (little-endian 0xa92b4efc).
var mdMagicLE = []byte{0xfc, 0x4e, 0x2b, 0xa9}

// mdTrailerScanWindow is how far from the end of the device the 1.0
// superblock is searched for. The real offset depends on rounding the
// device size down to a 4KiB boundary and backing off 8KiB, which can
// land a few bytes either side of a fixed distance depending on the
// device's exact size; scanning the tail with a substring search is
// simpler than reimplementing that rounding rule exactly.
const mdTrailerScanWindow = 16 * 1024

// mdraidIdinfos recognizes the Linux software RAID (mdraid) 1.0 metadata
// format, whose superblock lives near the end of the member device
// rather than at a fixed offset from the start. It has no MagicDescriptor
// entry at all -- the probe callback does its own end-of-device scan --
// so it's wired in with an empty Magics list, which the generic engine
// treats as "always run".
func mdraidIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "mdraid",
		Usage:   UsageRAIDMember,
		MinSize: 2 * mdTrailerScanWindow,
		Probe:   probeMdraid,
	}}
}

func probeMdraid(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	winLen := int64(mdTrailerScanWindow)
	if winLen > int64(p.window.Size) {
		winLen = int64(p.window.Size)
	}
	winOff := p.window.Size - Addr(winLen)

	data, status, err := p.buffers.Read(ctx, winOff, winLen)
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	positions, err := diskio.FindAll(bytes.NewReader(data), mdMagicLE)
	if err != nil {
		return false, fmt.Errorf("blkid: mdraid: %w", err)
	}
	// 1.0 superblocks are written on a 4-byte boundary; the genuine
	// superblock, if any, is the one closest to the end of the device.
	var best int64 = -1
	for _, pos := range positions {
		if pos%4 == 0 && pos > best {
			best = pos
		}
	}
	if best < 0 {
		return false, nil
	}

	sbOff := winOff + Addr(best)
	hdr, status, err := p.buffers.Read(ctx, sbOff, 64)
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	majorVersion := le32(hdr[4:8])
	if majorVersion != 1 {
		return false, nil
	}

	setUUID := hdr[16:32]
	setName := hdr[32:64]

	p.values.append(ch.Kind, NameType, []byte("linux_raid_member"))
	p.values.append(ch.Kind, NameVersion, []byte("1.0"))
	if u, err := uuid.FromBytes(setUUID); err == nil {
		p.values.append(ch.Kind, NameUUID, []byte(u.String()))
	}
	if label := trimNUL(setName); label != "" {
		p.values.append(ch.Kind, NameLabel, []byte(label))
	}

	return true, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
