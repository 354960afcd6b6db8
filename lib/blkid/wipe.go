// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"
)

// DoWipe erases the magic signature of the current chain's most recent
// hit, so a tool like "wipefs" can remove stale superblocks. It requires
// the chain to have a current SBMAGIC/SBMAGIC_OFFSET (or PTMAGIC/
// PTMAGIC_OFFSET, for the PARTS chain) value, which DoProbe/DoSafeProbe
// leaves behind on a hit.  With dryRun set, it reports what would be
// erased without touching the device.
func (p *Probe) DoWipe(ctx context.Context, dryRun bool) error {
	if p.dev == nil {
		return ErrNoSuchDevice
	}
	idx := p.curChainIdx
	if idx < 0 || idx >= len(p.chains) {
		return ErrNotWipeable
	}
	ch := p.chains[idx]

	magicName, offsetName := NameSBMagic, NameSBMagicOff
	if ch.Kind == ChainParts {
		magicName, offsetName = NamePTMagic, NamePTMagicOff
	}

	magic, ok := p.values.LookupChain(ch.Kind, magicName)
	if !ok {
		return ErrNotWipeable
	}
	offVal, ok := p.values.LookupChain(ch.Kind, offsetName)
	if !ok {
		return ErrNotWipeable
	}
	var off int64
	if _, err := fmt.Sscanf(offVal.String(), "%d", &off); err != nil {
		return fmt.Errorf("blkid: DoWipe: malformed %s value %q: %w", offsetName, offVal.String(), err)
	}

	size := len(magic.Bytes())
	abs := p.window.Off + Addr(off)

	if dryRun {
		dlog.Infof(ctx, "blkid: DoWipe(dry-run): would erase %d bytes at offset %d", size, abs)
		return nil
	}

	zero := make([]byte, size)
	if _, err := p.dev.WriteAt(zero, abs); err != nil {
		return fmt.Errorf("blkid: DoWipe: %w", err)
	}
	if p.file != nil {
		if err := p.file.Sync(); err != nil {
			dlog.Warnf(ctx, "blkid: DoWipe: fsync failed: %v", err)
		}
	}

	dlog.Infof(ctx, "blkid: DoWipe: erased %d bytes at offset %d", size, abs)
	p.StepBack(ctx)
	return nil
}
