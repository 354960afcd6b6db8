// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"

	"github.com/blkidcore/blkid/lib/diskio"
	"github.com/blkidcore/blkid/lib/fmtutil"
	"github.com/blkidcore/blkid/lib/linux"
)

// ProbeFlag carries device-scope classifications derived at BindDevice
// time; they're immutable for the life of the binding.
type ProbeFlag uint32

const (
	// FlagTiny marks a device too small to plausibly hold most
	// filesystems; identifiers with a MinSize above the device's size
	// are skipped rather than probed.
	FlagTiny ProbeFlag = 1 << iota
	// FlagCDROM marks optical media, enabling the tail-read clamp and
	// multisession hint lookup.
	FlagCDROM
	// FlagNoScan disables DoProbe entirely; used for devices an
	// operator has opted out of scanning (e.g. a locked Opal range).
	FlagNoScan
	// FlagPrivateFD means BindDevice was called with ownFD set, so the
	// probe owns the *os.File and End closes it.
	FlagPrivateFD
)

var probeFlagNames = []string{"TINY", "CDROM", "NOSCAN", "PRIVATE_FD"}

// String renders the set flags for a log line, e.g. "0x3(TINY|CDROM)".
func (f ProbeFlag) String() string {
	return fmtutil.BitfieldString(f, probeFlagNames, fmtutil.HexLower)
}

// TinyThreshold is the device size, in bytes, below which FlagTiny is set.
// It mirrors the historical floor below which most on-disk formats simply
// cannot fit a valid superblock.
const TinyThreshold = 64 * 1024

type window struct {
	Off  Addr
	Size Addr
}

// Probe is a probe controller bound to a single device or byte range
// within a device.  Zero value is not usable; construct with NewProbe.
type Probe struct {
	dev  diskio.File[Addr]
	file *os.File
	mode linux.StatMode

	flags      ProbeFlag
	sectorSize int
	zoneSize   int64

	window window

	chains      []*Chain
	curChainIdx int

	buffers *bufferCache
	values  *valueStore
	hints   *hintRegistry
	wiper   wiperState

	parent    *Probe
	wholeDisk *Probe
}

// NewProbe returns an unbound probe controller ready for BindDevice.
func NewProbe() *Probe {
	p := &Probe{
		sectorSize:  DefaultSectorSize,
		curChainIdx: -1,
		values:      newValueStore(),
		hints:       newHintRegistry(),
	}
	p.buffers = newBufferCache(p)
	p.chains = []*Chain{
		newChain(ChainSublks, sublksDriver()),
		newChain(ChainToplgy, toplgyDriver()),
		newChain(ChainParts, partsDriver()),
	}
	return p
}

// BindDevice attaches the probe to f, replacing any previously bound
// device.  If ownFD is true, End will close f.
func (p *Probe) BindDevice(ctx context.Context, f *os.File, ownFD bool) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("blkid: BindDevice: %w", err)
	}

	mode := rawStatMode(info)

	var size int64
	switch {
	case mode.IsBlockDevice():
		size, err = blockDeviceSize(f)
		if err != nil {
			dlog.Errorf(ctx, "blkid: BindDevice: %q: could not determine block device size: %v", f.Name(), err)
			size = info.Size()
		}
	case mode.IsCharDevice():
		size = 0
	default:
		size = info.Size()
	}

	p.file = f
	p.dev = &diskio.OSFile[Addr]{File: f}
	p.mode = mode
	p.window = window{Off: 0, Size: Addr(size)}

	p.sectorSize = DefaultSectorSize
	if mode.IsBlockDevice() {
		if s := blockDeviceSectorSize(f); s > 0 {
			p.sectorSize = s
		}
	}
	p.zoneSize = 0

	p.flags = 0
	if ownFD {
		p.flags |= FlagPrivateFD
	}
	if size > 0 && size < TinyThreshold {
		p.flags |= FlagTiny
	}
	if mode.IsBlockDevice() && isCDROM(f) {
		p.flags |= FlagCDROM
	}
	dlog.Debugf(ctx, "blkid: BindDevice: %q: size=%d flags=%v", f.Name(), size, p.flags)

	p.hints.Reset()
	if p.flags&FlagCDROM != 0 {
		if off, ok := cdromMultisessionOffset(f); ok {
			p.hints.Set("session_offset", uint64(off))
			dlog.Debugf(ctx, "blkid: BindDevice: %q: multisession offset %d", f.Name(), off)
		}
	}

	p.values = newValueStore()
	p.wiper.Reset()
	p.buffers.Reset()
	p.parent = nil
	p.wholeDisk = nil

	for _, ch := range p.chains {
		ch.resetPosition()
	}
	p.curChainIdx = -1

	return nil
}

// SetDimension narrows the probe's window to [off, off+size) relative to
// the bound device (or, for a cloned sub-probe, relative to its parent's
// window).  Values, wipe ranges, cached buffers and chain positions are
// reset.
func (p *Probe) SetDimension(off, size Addr) error {
	if p.dev == nil && p.parent == nil {
		return ErrNoSuchDevice
	}
	if p.parent != nil {
		off += p.parent.window.Off
	}
	p.window = window{Off: off, Size: size}
	p.values = newValueStore()
	p.wiper.Reset()
	p.buffers.Reset()
	for _, ch := range p.chains {
		ch.resetPosition()
	}
	p.curChainIdx = -1
	return nil
}

// Start begins a fresh scan pass: every chain's position is rewound, and
// the accumulated value store and buffer cache are cleared, but the bound
// device and window are retained.
func (p *Probe) Start() {
	p.values = newValueStore()
	p.wiper.Reset()
	p.buffers.Reset()
	for _, ch := range p.chains {
		ch.resetPosition()
	}
	p.curChainIdx = -1
}

// End releases the probe's device binding, closing it if BindDevice
// opened it.
func (p *Probe) End() error {
	var err error
	if p.flags&FlagPrivateFD != 0 && p.file != nil {
		err = p.file.Close()
	}
	p.dev = nil
	p.file = nil
	p.parent = nil
	p.wholeDisk = nil
	return err
}

// Values returns every NAME=value pair accumulated so far.
func (p *Probe) Values() []Value {
	return p.values.All()
}

// Lookup returns the most recent value with the given name.
func (p *Probe) Lookup(name string) (Value, bool) {
	return p.values.Lookup(name)
}

// Chain returns the runtime Chain instance for kind.
func (p *Probe) Chain(kind ChainKind) *Chain {
	for _, ch := range p.chains {
		if ch.Kind == kind {
			return ch
		}
	}
	return nil
}

// SetHint records a sideways hint an identifier may consult (e.g. a
// caller-supplied CD-ROM session offset).
func (p *Probe) SetHint(name string, val uint64) { p.hints.Set(name, val) }

// Size reports the probe's current window size in bytes.
func (p *Probe) Size() Addr { return p.window.Size }

// SectorSize reports the device's logical sector size.
func (p *Probe) SectorSize() int { return p.sectorSize }

// IsTiny reports whether the bound device is below TinyThreshold.
func (p *Probe) IsTiny() bool { return p.flags&FlagTiny != 0 }

// HideRange zeroes length bytes at offset (relative to the current
// window) in whichever cached buffer covers them.
func (p *Probe) HideRange(offset Addr, length int64) error {
	return p.buffers.HideRange(offset, length)
}

// Clone returns a new sub-probe sharing the same underlying device but
// scoped to [off, off+size) of the current probe's window, with reads
// that fall within the parent's already-cached buffers served straight
// from the parent instead of re-reading the device.  Probing the clone
// (inside one partition, say) leaves the parent's own scan state alone.
func (p *Probe) Clone(off, size Addr) *Probe {
	child := NewProbe()
	child.dev = p.dev
	child.file = p.file
	child.mode = p.mode
	child.sectorSize = p.sectorSize
	child.zoneSize = p.zoneSize
	child.window = window{Off: p.window.Off + off, Size: size}
	child.parent = p
	if p.wholeDisk != nil {
		child.wholeDisk = p.wholeDisk
	} else {
		child.wholeDisk = p
	}
	return child
}

// WholeDiskProbe returns the probe for the entire device that this probe
// was ultimately cloned from, or p itself if p already spans the whole
// device.
func (p *Probe) WholeDiskProbe() *Probe {
	if p.wholeDisk != nil {
		return p.wholeDisk
	}
	return p
}
