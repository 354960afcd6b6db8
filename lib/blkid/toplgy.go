// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
)

// toplgyDriver reports I/O topology facts about the bound device. Unlike
// SUBLKS/PARTS identifiers, the single TOPLGY entry has no on-disk
// signature to look for: it always runs, and always "hits" once per
// probe pass, contributing informational values rather than a TYPE.
func toplgyDriver() *driver {
	return &driver{
		name: "toplgy",
		idinfos: []*Idinfo{
			{
				Name:  "io_topology",
				Usage: UsageMisc,
				Probe: probeTopology,
			},
		},
	}
}

func probeTopology(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	logSect := p.sectorSize
	if logSect <= 0 {
		logSect = DefaultSectorSize
	}
	physSect := logSect

	p.values.appendf(ch.Kind, NameLogSectorSz, "%d", logSect)
	p.values.appendf(ch.Kind, NamePhysSectorSz, "%d", physSect)
	p.values.appendf(ch.Kind, NameMinIOSize, "%d", logSect)
	p.values.appendf(ch.Kind, NameOptIOSize, "%d", 0)
	p.values.appendf(ch.Kind, NameAlignOffset, "%d", 0)
	return true, nil
}
