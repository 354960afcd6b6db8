// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "context"

// mbrFallbackIdinfos registers the DOS boot signature as a SUBLKS-chain
// identifier too, not just a PARTS one. Real installations keep a
// catch-all like this in the superblock chain precisely so that a plain
// MBR partition table isn't silently invisible to "what filesystem is
// this" callers that never touch the PARTS chain -- and so that the
// wiper mechanism has something concrete to suppress in the scenario
// where an LVM2 PV label has since claimed the same sector.
func mbrFallbackIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "mbr_fallback",
		Usage:   UsageOther,
		Flags:   Tolerant,
		MinSize: 512,
		Magics: []MagicDescriptor{
			{Bytes: []byte{0x55, 0xaa}, KBOff: 0, SBOff: 510},
		},
		Probe: probeMBRFallback,
	}}
}

func probeMBRFallback(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	p.values.append(ch.Kind, NamePTType, []byte("dos"))
	return true, nil
}
