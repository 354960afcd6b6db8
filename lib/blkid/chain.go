// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "context"

// ChainKind identifies one of the three fixed chains a Probe walks.
type ChainKind int

const (
	// ChainSublks recognizes filesystems, RAID members, and crypto
	// containers: anything that owns the "superblock" at a device's
	// natural probing offsets.
	ChainSublks ChainKind = iota
	// ChainToplgy reports I/O topology hints (sector sizes, alignment);
	// it never emits TYPE and never participates in ambivalence.
	ChainToplgy
	// ChainParts recognizes partition tables and flattens their entries.
	ChainParts
)

func (k ChainKind) String() string {
	switch k {
	case ChainSublks:
		return "sublks"
	case ChainToplgy:
		return "toplgy"
	case ChainParts:
		return "parts"
	default:
		return "unknown"
	}
}

// ChainFlag carries per-chain policy switches, set via Chain.SetFlags.
type ChainFlag uint32

const (
	// BadCSumOK tells an identifier in this chain to accept a
	// checksum-mismatched superblock as a soft hit instead of rejecting
	// it outright.  Identifier probe callbacks are responsible for
	// consulting this flag themselves; the controller only carries it.
	BadCSumOK ChainFlag = 1 << iota
)

// driver is the chain-kind-agnostic scan algorithm shared by all three
// chains; only the Idinfo array and how its callbacks interpret "hit"
// differ between them.
type driver struct {
	name    string
	idinfos []*Idinfo
}

// Chain is one runtime chain instance bound to a Probe: its current scan
// position, its enable state, its filter, and any chain-scoped flags.
type Chain struct {
	Kind    ChainKind
	Flags   ChainFlag
	driver  *driver
	enabled bool
	binary  bool
	idx     int // -1 == not yet started
	filter  *Filter

	// data is opaque per-chain state a driver's identifiers may stash
	// between calls; the PARTS chain uses it to hold the PartitionTable
	// a hit produced, so a caller can walk entries after DoProbe returns.
	data any
}

func newChain(kind ChainKind, d *driver) *Chain {
	return &Chain{
		Kind:    kind,
		driver:  d,
		enabled: true,
		idx:     -1,
		filter:  newFilter(len(d.idinfos)),
	}
}

func (c *Chain) Name() string { return c.driver.name }

func (c *Chain) Idinfos() []*Idinfo { return c.driver.idinfos }

func (c *Chain) Enabled() bool { return c.enabled }

func (c *Chain) SetEnabled(v bool) { c.enabled = v }

// SetFlags replaces the chain's flags (e.g. BadCSumOK).
func (c *Chain) SetFlags(f ChainFlag) { c.Flags = f }

// Filter exposes the chain's identifier enable/disable bitmap.
func (c *Chain) Filter() *Filter { return c.filter }

// Data returns the opaque per-chain state left behind by the last hit,
// e.g. the *PartitionTable the PARTS chain's winning identifier built.
func (c *Chain) Data() any { return c.data }

func (c *Chain) setData(v any) { c.data = v }

func (c *Chain) resetPosition() {
	c.idx = -1
}

func (c *Chain) exhausted() bool {
	return c.idx >= len(c.driver.idinfos)
}

// emitMagic appends SBMAGIC/SBMAGIC_OFFSET (or, on the PARTS chain,
// PTMAGIC/PTMAGIC_OFFSET) for an identifier that opted in via the Magic
// flag, so a later DoWipe call knows exactly what to erase.
func emitMagic(p *Probe, kind ChainKind, idi *Idinfo, match MagicMatch) {
	if idi.Flags&Magic == 0 || match.Descriptor == nil {
		return
	}
	magicName, offsetName := NameSBMagic, NameSBMagicOff
	if kind == ChainParts {
		magicName, offsetName = NamePTMagic, NamePTMagicOff
	}
	p.values.append(kind, magicName, match.Descriptor.Bytes)
	p.values.appendf(kind, offsetName, "%d", int64(match.Offset))
}

// step runs driver.idinfos[c.idx+1:] forward until one of them reports a
// hit, the list is exhausted, or an I/O error occurs.  It is the engine
// behind DoProbe: only one winning hit per call, chain position retained
// across calls so StepBack and repeated DoProbe calls resume correctly.
func (c *Chain) step(ctx context.Context, p *Probe) (StepResult, error) {
	for c.idx++; c.idx < len(c.driver.idinfos); c.idx++ {
		if c.filter.Disabled(c.idx) {
			continue
		}
		idi := c.driver.idinfos[c.idx]
		if p.flags&FlagTiny != 0 && idi.MinSize > int64(p.window.Size) {
			continue
		}
		match, found, err := locateMagic(ctx, p, idi)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		mark := p.values.mark()
		hit, err := idi.Probe(ctx, p, c, match)
		if err != nil {
			return 0, err
		}
		if !hit {
			p.values.truncate(mark)
			continue
		}
		if p.wiper.coveredByOther(c.Kind, match.Offset) {
			p.values.truncate(mark)
			continue
		}
		emitMagic(p, c.Kind, idi, match)
		if idi.Wipe != nil {
			if off, size, ok := idi.Wipe(p, match); ok {
				p.wiper.record(c.Kind, idi.Name, off, size)
			}
		}
		return StepHit, nil
	}
	return StepNothing, nil
}

// safeScan runs every identifier from the beginning, classifying each hit
// as tolerant or not, and reports ambivalence when more than one
// non-tolerant identifier matches.  keepAll controls whether every hit's
// values are kept (DoFullProbe) or only the winning set (DoSafeProbe).
func (c *Chain) safeScan(ctx context.Context, p *Probe, keepAll bool) (StepResult, error) {
	c.resetPosition()

	type hit struct {
		idi   *Idinfo
		mark  int
		end   int
		match MagicMatch
	}
	var nonTolerant, tolerant []hit

	for i, idi := range c.driver.idinfos {
		if c.filter.Disabled(i) {
			continue
		}
		if p.flags&FlagTiny != 0 && idi.MinSize > int64(p.window.Size) {
			continue
		}
		match, found, err := locateMagic(ctx, p, idi)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		mark := p.values.mark()
		ok, err := idi.Probe(ctx, p, c, match)
		if err != nil {
			return 0, err
		}
		if !ok {
			p.values.truncate(mark)
			continue
		}
		if p.wiper.coveredByOther(c.Kind, match.Offset) {
			p.values.truncate(mark)
			continue
		}
		emitMagic(p, c.Kind, idi, match)
		if idi.Wipe != nil {
			if off, size, wok := idi.Wipe(p, match); wok {
				p.wiper.record(c.Kind, idi.Name, off, size)
			}
		}
		h := hit{idi: idi, mark: mark, end: p.values.mark(), match: match}
		if idi.tolerant() {
			tolerant = append(tolerant, h)
		} else {
			nonTolerant = append(nonTolerant, h)
		}
	}

	if keepAll {
		if len(nonTolerant) == 0 && len(tolerant) == 0 {
			return StepNothing, nil
		}
		return StepHit, nil
	}

	if len(nonTolerant) > 1 {
		p.values.ResetChain(c.Kind)
		return StepAmbivalent, nil
	}
	if len(nonTolerant) == 0 && len(tolerant) == 0 {
		return StepNothing, nil
	}
	if len(nonTolerant) == 1 {
		// Keep the winner's values plus every tolerant hit's, since
		// tolerant identifiers (e.g. partition signatures) merge
		// alongside a filesystem hit.
		return StepHit, nil
	}
	// Only tolerant hits: keep them all.
	return StepHit, nil
}
