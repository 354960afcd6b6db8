// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "context"

// Usage classifies what kind of thing an identifier recognizes.
type Usage int

const (
	UsageFS Usage = iota
	UsageRAIDMember
	UsageCryptoContainer
	UsageMisc
)

func (u Usage) String() string {
	switch u {
	case UsageFS:
		return UsageFilesystem
	case UsageRAIDMember:
		return UsageRaid
	case UsageCryptoContainer:
		return UsageCrypto
	default:
		return UsageOther
	}
}

// IdinfoFlag carries per-identifier behavioral switches.
type IdinfoFlag uint32

const (
	// Tolerant identifiers never contribute to ambivalence: a safe-probe
	// that finds a Tolerant hit alongside zero or one non-Tolerant hits
	// merges the Tolerant values in rather than erroring out.
	Tolerant IdinfoFlag = 1 << iota

	// Magic tells the engine to emit the winning magic's raw bytes and
	// byte offset (SBMAGIC/SBMAGIC_OFFSET, or PTMAGIC/PTMAGIC_OFFSET on
	// the PARTS chain) alongside whatever values the probe callback
	// appends. DoWipe requires these to know what to erase, so any
	// identifier meant to be wipeable must set this.
	Magic
)

// MagicDescriptor locates one candidate signature for an identifier.  An
// Idinfo may list several, tried in array order, the first FOUND wins.
type MagicDescriptor struct {
	// Bytes is the exact signature to match.
	Bytes []byte

	// KBOff is the kibibyte offset of the signature from the start of
	// the probe's window (or, when IsZoned, from the start of the zone
	// selected by ZoneNum), or, when FromEnd is set, from the end of
	// the window.
	KBOff int64

	// SBOff is the additional byte offset within the 1KiB-aligned block
	// that KBOff addresses; with FromEnd it is subtracted rather than
	// added, since it's still counted from the low side of that block.
	SBOff int

	// FromEnd anchors KBOff/SBOff to the end of the probe's window
	// instead of the start; used by superblocks that live at a fixed
	// distance from the end of a device, such as mdraid 1.0 and the
	// GPT backup header.
	FromEnd bool

	// IsZoned, when set, means KBOff is relative to zone ZoneNum rather
	// than to the window start; on a non-zoned device this descriptor
	// is skipped.
	IsZoned bool
	ZoneNum int64

	// HintName, when non-empty, names a hint whose value (in bytes from
	// the window start) replaces KBOff as the base offset; SBOff is still
	// added to it.
	// Used for CD-ROM multisession offsets.
	HintName string
}

// MagicMatch reports where a MagicDescriptor was found.
type MagicMatch struct {
	Descriptor *MagicDescriptor
	// Offset is the absolute byte offset within the probe's window
	// where the signature begins.
	Offset Addr
}

// ProbeFunc is the per-identifier callback invoked after its magic has
// been located.  It returns hit=true and nil error on a confirmed match
// (having appended any Values it wants to keep), hit=false and nil error
// when the magic was a false positive, and a non-nil error only for a
// genuine I/O failure that should abort the scan.
type ProbeFunc func(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (hit bool, err error)

// WipeFunc, when an identifier sets one, is invoked immediately after a
// successful probe to record the byte range that a later wipe operation
// (or a later identifier's stale-signature suppression) should treat as
// belonging to this hit.
type WipeFunc func(p *Probe, match MagicMatch) (offset Addr, size int64, ok bool)

// Idinfo describes one thing a chain knows how to recognize.
type Idinfo struct {
	Name    string
	Usage   Usage
	Flags   IdinfoFlag
	MinSize int64
	Magics  []MagicDescriptor
	Probe   ProbeFunc
	Wipe    WipeFunc
}

func (idi *Idinfo) tolerant() bool {
	return idi.Flags&Tolerant != 0
}
