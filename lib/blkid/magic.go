// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"bytes"
	"context"
)

// locateMagic tries every MagicDescriptor an identifier declares, in
// order, and returns the first one found.  found is false (with a nil
// error) when none of the descriptors matched; a non-nil error means a
// real I/O failure occurred while reading candidate offsets.
func locateMagic(ctx context.Context, p *Probe, idi *Idinfo) (MagicMatch, bool, error) {
	if len(idi.Magics) == 0 {
		// An identifier with no magic descriptors runs unconditionally
		// on every pass; the TOPLGY chain's entries work this way,
		// since topology facts aren't signed by an on-disk signature.
		return MagicMatch{}, true, nil
	}
	for i := range idi.Magics {
		md := &idi.Magics[i]

		if md.IsZoned && p.zoneSize == 0 {
			// Not a zoned device; this descriptor can never apply.
			continue
		}

		var off Addr
		switch {
		case md.HintName != "":
			hint := p.hints.Get(md.HintName)
			if !hint.OK {
				continue
			}
			off = Addr(hint.Val) + Addr(md.SBOff)
		case md.FromEnd:
			if p.window.Size == 0 {
				continue
			}
			off = p.window.Size - Addr(md.KBOff*KiB) - Addr(md.SBOff)
			if off < 0 {
				continue
			}
		case md.IsZoned:
			off = Addr(md.ZoneNum*p.zoneSize) + Addr(md.KBOff*KiB) + Addr(md.SBOff)
		default:
			off = Addr(md.KBOff*KiB) + Addr(md.SBOff)
		}

		data, status, err := p.buffers.Read(ctx, off, int64(len(md.Bytes)))
		if err != nil {
			return MagicMatch{}, false, err
		}
		if status != ReadOK {
			continue
		}
		if bytes.Equal(data, md.Bytes) {
			return MagicMatch{Descriptor: md, Offset: off}, true, nil
		}
	}
	return MagicMatch{}, false, nil
}
