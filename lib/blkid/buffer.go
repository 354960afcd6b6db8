// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"errors"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/blkidcore/blkid/lib/containers"
)

// cdTailClamp is the size in bytes (12 sectors) of the trailing area of a
// CD-ROM-mode device within which a failed read is treated as a benign
// end-of-area rather than an I/O error; some drives misreport the last few
// sectors of the lead-out area.
const cdTailClamp = 12 * DefaultSectorSize

// bufferRecord is one cached, contiguous read result.
type bufferRecord struct {
	off  Addr
	data []byte
}

func (r *bufferRecord) covers(off Addr, length int64) bool {
	return off >= r.off && int64(off-r.off)+length <= int64(len(r.data))
}

// bufferCache is the range-coalesced read cache a Probe keeps over its
// bound device.  It is deliberately simple: the set of live ranges during
// a probe pass is small (tens of entries), so linear containment search
// is cheap and keeps the coalescing logic easy to reason about. Lookups
// go through records only, and records grows until Reset. The LRUCache
// mirrors the same records keyed by start offset and is purged together
// with them; nothing is evicted from records when the LRUCache evicts.
type bufferCache struct {
	p        *Probe
	records  []*bufferRecord
	lru      *containers.LRUCache[Addr, *bufferRecord]
	modified bool
}

func newBufferCache(p *Probe) *bufferCache {
	return &bufferCache{
		p:   p,
		lru: containers.NewLRUCache[Addr, *bufferRecord](4096),
	}
}

func (c *bufferCache) find(off Addr, length int64) *bufferRecord {
	for _, r := range c.records {
		if r.covers(off, length) {
			return r
		}
	}
	return nil
}

func (c *bufferCache) add(rec *bufferRecord) {
	c.records = append(c.records, rec)
	c.lru.Add(rec.off, rec)
}

// Read returns length bytes starting at offset, relative to the probe's
// current window.  A ReadEndOfArea status means the request ran past the
// window (or, for a real device, the media) and no data was read; this is
// expected and identifiers should simply treat it as "magic not found".
func (c *bufferCache) Read(ctx context.Context, offset Addr, length int64) ([]byte, ReadStatus, error) {
	if length <= 0 {
		return nil, ReadInvalid, nil
	}
	p := c.p

	if p.window.Size > 0 && int64(offset)+length > int64(p.window.Size) {
		if !p.mode.IsCharDevice() {
			return nil, ReadEndOfArea, nil
		}
	}

	if rec := c.find(offset, length); rec != nil {
		start := int64(offset - rec.off)
		return rec.data[start : start+length], ReadOK, nil
	}

	if p.parent != nil {
		parentOff := p.window.Off - p.parent.window.Off + offset
		if parentOff >= 0 {
			return p.parent.buffers.Read(ctx, parentOff, length)
		}
	}

	abs := p.window.Off + offset
	buf := make([]byte, length)
	n, err := p.dev.ReadAt(buf, abs)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ReadEndOfArea, nil
		}
		if p.flags&FlagCDROM != 0 && p.window.Size > 0 &&
			int64(p.window.Size)-int64(offset) <= cdTailClamp {
			dlog.Debugf(ctx, "blkid: read error in CD-ROM tail clamp at offset %d treated as end of area: %v", abs, err)
			return nil, ReadEndOfArea, nil
		}
		return nil, ReadInvalid, err
	}

	rec := &bufferRecord{off: offset, data: buf[:n]}
	c.add(rec)
	return rec.data, ReadOK, nil
}

// ReadSector is a convenience wrapper reading one DefaultSectorSize-sized
// sector at logical sector index n.
func (c *bufferCache) ReadSector(ctx context.Context, n int64) ([]byte, ReadStatus, error) {
	return c.Read(ctx, Addr(n*DefaultSectorSize), DefaultSectorSize)
}

// HideRange zeroes length bytes at offset within whichever cached record
// currently covers them, and marks the cache as modified so a later
// StepBack keeps the buffers (and the hidden bytes) instead of re-reading
// the device.  It is how an identifier suppresses a stale signature
// without touching the underlying device; DoWipe writes to the device
// instead and does not use it.
func (c *bufferCache) HideRange(offset Addr, length int64) error {
	rec := c.find(offset, length)
	if rec == nil {
		return errors.New("blkid: HideRange: no cached buffer covers the given range")
	}
	start := int64(offset - rec.off)
	for i := int64(0); i < length; i++ {
		rec.data[start+i] = 0
	}
	c.modified = true
	return nil
}

// Reset discards every cached buffer, forcing subsequent reads to hit the
// device again.  Called on BindDevice, and on StepBack when the cache was
// not modified through HideRange (a modified cache is kept so the hidden
// bytes stay hidden).
func (c *bufferCache) Reset() {
	c.records = nil
	c.lru.Purge()
	c.modified = false
}
