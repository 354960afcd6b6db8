// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

const (
	iso9660SectorSize  = 2048
	iso9660SystemArea  = 16 // first sector eligible to hold a volume descriptor
	iso9660MaxVDScan   = 32 // give up looking for a terminator/Joliet after this many sectors
	iso9660TypePrimary = 1
	iso9660TypeSupp    = 2
	iso9660TypeTerm    = 255
)

// Joliet supplementary volume descriptors announce themselves with one of
// these three escape sequences at byte offset 88 of the descriptor,
// indicating UCS-2 level 1/2/3.
var jolietEscapes = [][]byte{
	{0x25, 0x2f, 0x40},
	{0x25, 0x2f, 0x43},
	{0x25, 0x2f, 0x45},
}

func iso9660Idinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "iso9660",
		Usage:   UsageFS,
		Flags:   Magic,
		MinSize: (iso9660SystemArea + 1) * iso9660SectorSize,
		Magics: []MagicDescriptor{
			{Bytes: []byte("CD001"), KBOff: iso9660SystemArea * iso9660SectorSize / KiB, SBOff: 1},
		},
		Probe: probeISO9660,
	}}
}

func probeISO9660(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	vdStart := match.Offset - 1

	var primaryLabel, jolietLabel string
	foundPrimary := false

	for i := 0; i < iso9660MaxVDScan; i++ {
		off := vdStart + Addr(i*iso9660SectorSize)
		hdr, status, err := p.buffers.Read(ctx, off, 7)
		if err != nil {
			return false, err
		}
		if status != ReadOK {
			break
		}
		if string(hdr[1:6]) != "CD001" {
			continue
		}
		vdType := hdr[0]
		if vdType == iso9660TypeTerm {
			break
		}

		full, status, err := p.buffers.Read(ctx, off, 190)
		if err != nil {
			return false, err
		}
		if status != ReadOK {
			continue
		}

		switch vdType {
		case iso9660TypePrimary:
			primaryLabel = strings.TrimRight(string(full[40:72]), " ")
			foundPrimary = true
		case iso9660TypeSupp:
			if isJolietEscape(full[88:120]) {
				jolietLabel = decodeUTF16BELabel(full[40:72])
			}
		}
	}

	if !foundPrimary {
		return false, nil
	}

	p.values.append(ch.Kind, NameType, []byte("iso9660"))
	if jolietLabel != "" {
		p.values.append(ch.Kind, NameLabel, []byte(jolietLabel))
		p.values.append(ch.Kind, NameSecType, []byte("joliet"))
		p.values.append(ch.Kind, NameVersion, []byte("Joliet Extension"))
		if primaryLabel != "" {
			p.values.append(ch.Kind, NameLabelRaw, []byte(primaryLabel))
		}
	} else if primaryLabel != "" {
		p.values.append(ch.Kind, NameLabel, []byte(primaryLabel))
	}
	p.values.appendf(ch.Kind, NameBlockSize, "%d", iso9660SectorSize)
	p.values.appendf(ch.Kind, NameFSBlockSize, "%d", iso9660SectorSize)

	return true, nil
}

func isJolietEscape(field []byte) bool {
	for _, esc := range jolietEscapes {
		if len(field) >= len(esc) && string(field[:len(esc)]) == string(esc) {
			return true
		}
	}
	return false
}

func decodeUTF16BELabel(raw []byte) string {
	decoder := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(raw)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(out), " \x00")
}
