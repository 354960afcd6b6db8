// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blkidcore/blkid/lib/binstruct"
	"github.com/blkidcore/blkid/lib/binstruct/binint"
)

// swapPageSizes are the page sizes Linux has shipped on supported
// architectures; the swap signature sits in the last 10 bytes of
// whichever page size the swap area was formatted for.
var swapPageSizes = []int64{4096, 8192, 16384, 32768, 65536}

const (
	swapMagicV2 = "SWAPSPACE2"
	swapMagicV0 = "SWAP-SPACE"
)

// swapHeaderV1 is the fixed portion of struct swap_header_v1_2 that
// follows the 1024-byte boot sector reservation.
type swapHeaderV1 struct {
	Version    binint.U32le `bin:"off=0x0,  siz=0x4"`
	LastPage   binint.U32le `bin:"off=0x4,  siz=0x4"`
	NrBadPages binint.U32le `bin:"off=0x8,  siz=0x4"`
	UUID       [16]byte     `bin:"off=0xc,  siz=0x10"`
	Volume     [16]byte     `bin:"off=0x1c, siz=0x10"`

	binstruct.End `bin:"off=0x2c"`
}

func swapIdinfos() []*Idinfo {
	var magics []MagicDescriptor
	for _, ps := range swapPageSizes {
		magics = append(magics,
			MagicDescriptor{Bytes: []byte(swapMagicV2), SBOff: int(ps - 10)},
			MagicDescriptor{Bytes: []byte(swapMagicV0), SBOff: int(ps - 10)},
		)
	}
	return []*Idinfo{{
		Name:    "swap",
		Usage:   UsageOther,
		Flags:   Tolerant | Magic,
		MinSize: 10 * 4096,
		Magics:  magics,
		Probe:   probeSwap,
	}}
}

func probeSwap(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	sbOff := int64(match.Descriptor.SBOff)
	pageStart := match.Offset - Addr(sbOff)

	p.values.append(ch.Kind, NameType, []byte("swap"))

	if string(match.Descriptor.Bytes) == swapMagicV0 {
		// No embedded version/UUID/label in the original swap format.
		return true, nil
	}

	hdr := swapHeaderV1{}
	data, status, err := p.buffers.Read(ctx, pageStart+1024, int64(binstruct.StaticSize(hdr)))
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		// Magic matched but the fixed header didn't fit; treat as a
		// plain v0-style area rather than failing the whole probe.
		return true, nil
	}
	if _, err := binstruct.Unmarshal(data, &hdr); err != nil {
		return false, fmt.Errorf("blkid: swap: %w", err)
	}

	p.values.appendf(ch.Kind, NameVersion, "%d", uint32(hdr.Version))

	if !allZero(hdr.UUID[:]) {
		u, err := uuid.FromBytes(hdr.UUID[:])
		if err == nil {
			p.values.append(ch.Kind, NameUUID, []byte(u.String()))
		}
	}
	if label := trimNUL(hdr.Volume[:]); label != "" {
		p.values.append(ch.Kind, NameLabel, []byte(label))
	}

	return true, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
