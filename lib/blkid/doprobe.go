// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "context"

// DoProbe advances through the probe's chains in order (SUBLKS, TOPLGY,
// PARTS), resuming each chain from wherever it last left off, and returns
// as soon as one chain reports a hit.  Calling it again after a hit
// resumes the same chain from its next identifier, which is how a caller
// enumerates every filesystem signature found at the same offset (an
// overlay of an old ext2 under a newer btrfs, say) one at a time.
func (p *Probe) DoProbe(ctx context.Context) (StepResult, error) {
	if p.dev == nil && p.parent == nil {
		return 0, ErrNoSuchDevice
	}
	if p.flags&FlagNoScan != 0 {
		return StepNothing, nil
	}
	if p.curChainIdx < 0 {
		p.curChainIdx = 0
	}
	for p.curChainIdx < len(p.chains) {
		ch := p.chains[p.curChainIdx]
		if !ch.Enabled() || ch.exhausted() {
			p.curChainIdx++
			continue
		}
		res, err := ch.step(ctx, p)
		if err != nil {
			return 0, err
		}
		if res == StepHit {
			return StepHit, nil
		}
		p.curChainIdx++
	}
	return StepNothing, nil
}

// DoSafeProbe runs every identifier of every enabled chain from scratch
// and keeps, per chain, the single non-tolerant hit together with any
// tolerant hits, erroring out (via StepAmbivalent) if a chain produced
// more than one non-tolerant hit. The topology chain's values are kept,
// but its hit alone does not make the result StepHit. It
// is the right call for ordinary "tell me what this is" use, where a
// second candidate signature means the device's contents are genuinely
// unclear and guessing wrong would be worse than reporting nothing.
func (p *Probe) DoSafeProbe(ctx context.Context) (StepResult, error) {
	if p.dev == nil && p.parent == nil {
		return 0, ErrNoSuchDevice
	}
	if p.flags&FlagNoScan != 0 {
		return StepNothing, nil
	}
	overall := StepNothing
	for _, ch := range p.chains {
		if !ch.Enabled() {
			continue
		}
		res, err := ch.safeScan(ctx, p, false)
		if err != nil {
			return 0, err
		}
		switch res {
		case StepAmbivalent:
			return StepAmbivalent, nil
		case StepHit:
			if ch.Kind != ChainToplgy {
				overall = StepHit
			}
		}
	}
	return overall, nil
}

// DoFullProbe runs every identifier of every enabled chain from scratch
// and keeps every hit's values, with no ambivalence check.  Used by
// callers that want to see every signature present (e.g. a filesystem
// overlay scenario), understanding that more than one result for the same
// chain may appear.
func (p *Probe) DoFullProbe(ctx context.Context) (StepResult, error) {
	if p.dev == nil && p.parent == nil {
		return 0, ErrNoSuchDevice
	}
	if p.flags&FlagNoScan != 0 {
		return StepNothing, nil
	}
	overall := StepNothing
	for _, ch := range p.chains {
		if !ch.Enabled() {
			continue
		}
		res, err := ch.safeScan(ctx, p, true)
		if err != nil {
			return 0, err
		}
		if res == StepHit {
			overall = StepHit
		}
	}
	return overall, nil
}

// StepBack rewinds the most recently advanced chain by one identifier, so
// the next DoProbe call re-tries it.  If the buffer cache has not been
// modified (via HideRange) since the last read, the cache is dropped so
// the rewound identifier re-reads fresh bytes off the device (e.g. after
// DoWipe); a cache already carrying deliberately hidden content is left
// alone rather than clobbered.  The rewound chain's values and recorded
// wipe ranges are discarded, so the re-tried identifiers start clean.
func (p *Probe) StepBack(ctx context.Context) {
	idx := p.curChainIdx
	if idx < 0 {
		return
	}
	if idx >= len(p.chains) {
		idx = len(p.chains) - 1
	}
	ch := p.chains[idx]
	if ch.idx >= 0 {
		ch.idx--
	}
	p.curChainIdx = idx
	p.values.ResetChain(ch.Kind)
	kept := p.wiper.records[:0]
	for _, r := range p.wiper.records {
		if r.chain != ch.Kind {
			kept = append(kept, r)
		}
	}
	p.wiper.records = kept
	if !p.buffers.modified {
		p.buffers.Reset()
	}
}
