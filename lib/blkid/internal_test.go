// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkidcore/blkid/lib/diskio"
)

// memFile is a fixed-size in-memory diskio.File, used by the tests in this
// package to drive the buffer cache and magic locator without going through
// a real *os.File.
type memFile struct {
	name string
	buf  []byte
}

func (f *memFile) Name() string { return f.name }
func (f *memFile) Size() Addr   { return Addr(len(f.buf)) }
func (f *memFile) Close() error { return nil }
func (f *memFile) ReadAt(p []byte, off Addr) (int, error) {
	if int64(off) >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
func (f *memFile) WriteAt(p []byte, off Addr) (int, error) {
	need := int64(off) + int64(len(p))
	if need > int64(len(f.buf)) {
		grown := make([]byte, need)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[off:], p)
	return len(p), nil
}

var _ diskio.File[Addr] = (*memFile)(nil)

func newTestProbe(buf []byte) *Probe {
	p := NewProbe()
	p.dev = &memFile{name: "test", buf: buf}
	p.window = window{Off: 0, Size: Addr(len(buf))}
	p.sectorSize = DefaultSectorSize
	return p
}

func TestValueStoreMarkTruncate(t *testing.T) {
	s := newValueStore()
	s.append(ChainSublks, NameType, []byte("ext4"))
	mark := s.mark()
	s.append(ChainSublks, NameLabel, []byte("root"))
	s.append(ChainSublks, NameUUID, []byte("abc-123"))

	since := s.since(mark)
	require.Len(t, since, 2)
	assert.Equal(t, "root", since[0].String())

	s.truncate(mark)
	assert.Len(t, s.All(), 1)
	v, ok := s.Lookup(NameType)
	require.True(t, ok)
	assert.Equal(t, "ext4", v.String())

	_, ok = s.Lookup(NameLabel)
	assert.False(t, ok, "truncate should have discarded the rolled-back value")
}

func TestValueStoreLookupChainAndReset(t *testing.T) {
	s := newValueStore()
	s.append(ChainSublks, NameType, []byte("ext4"))
	s.append(ChainParts, NamePTType, []byte("dos"))
	s.append(ChainSublks, NameLabel, []byte("root"))

	v, ok := s.LookupChain(ChainSublks, NameType)
	require.True(t, ok)
	assert.Equal(t, "ext4", v.String())

	_, ok = s.LookupChain(ChainParts, NameLabel)
	assert.False(t, ok)

	s.ResetChain(ChainSublks)
	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, NamePTType, all[0].Name)
}

func TestValueBytesExcludesTrailingNUL(t *testing.T) {
	v := newValue(ChainSublks, NameLabel, []byte("MYVOL"))
	assert.Equal(t, []byte("MYVOL"), v.Bytes())
	assert.Equal(t, "MYVOL", v.String())
}

func TestFilterEnableDisableInvert(t *testing.T) {
	f := newFilter(3)
	assert.False(t, f.Disabled(0))
	f.Disable(1)
	assert.True(t, f.Disabled(1))
	assert.False(t, f.Disabled(0))

	f.Invert()
	assert.True(t, f.Disabled(0))
	assert.False(t, f.Disabled(1))
	assert.True(t, f.Disabled(2))

	f.Clear()
	for i := 0; i < 3; i++ {
		assert.False(t, f.Disabled(i))
	}
}

func TestFilterSetByNamesOnlyAndExclude(t *testing.T) {
	idinfos := []*Idinfo{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	f := newFilter(len(idinfos))

	require.NoError(t, f.setByNames(idinfos, []string{"b"}, true))
	assert.True(t, f.Disabled(0))
	assert.False(t, f.Disabled(1))
	assert.True(t, f.Disabled(2))

	f.Clear()
	require.NoError(t, f.setByNames(idinfos, []string{"b"}, false))
	assert.False(t, f.Disabled(0))
	assert.True(t, f.Disabled(1))
	assert.False(t, f.Disabled(2))

	err := f.setByNames(idinfos, []string{"nope"}, true)
	assert.Error(t, err)
}

func TestWiperCoveredByOther(t *testing.T) {
	var w wiperState
	w.record(ChainSublks, "lvm2_pv", 0, 512)

	assert.True(t, w.coveredByOther(ChainSublks, 0))
	assert.True(t, w.coveredByOther(ChainSublks, 511))
	assert.False(t, w.coveredByOther(ChainSublks, 512))
	assert.False(t, w.coveredByOther(ChainParts, 0), "wipe ranges are per-chain")

	w.Reset()
	assert.False(t, w.coveredByOther(ChainSublks, 0))
}

func TestBufferCacheReadCachesAndCoalesces(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	p := newTestProbe(data)
	ctx := context.Background()

	got, status, err := p.buffers.Read(ctx, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, ReadOK, status)
	assert.Equal(t, data[:16], got)
	require.Len(t, p.buffers.records, 1)

	// A second read fully inside the first cached record must not add a
	// new record; it should be served straight out of the cache.
	got2, status2, err := p.buffers.Read(ctx, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, ReadOK, status2)
	assert.Equal(t, data[4:12], got2)
	assert.Len(t, p.buffers.records, 1)
}

func TestBufferCacheReadEndOfArea(t *testing.T) {
	p := newTestProbe(make([]byte, 64))
	ctx := context.Background()

	_, status, err := p.buffers.Read(ctx, 60, 16)
	require.NoError(t, err)
	assert.Equal(t, ReadEndOfArea, status)
}

func TestBufferCacheHideRangeAndReset(t *testing.T) {
	data := []byte("LABELONE-stale-signature")
	p := newTestProbe(data)
	ctx := context.Background()

	_, _, err := p.buffers.Read(ctx, 0, int64(len(data)))
	require.NoError(t, err)

	require.NoError(t, p.buffers.HideRange(0, 8))
	got, _, err := p.buffers.Read(ctx, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), got, "HideRange should zero the cached bytes in place")
	assert.True(t, p.buffers.modified)

	p.buffers.Reset()
	assert.Empty(t, p.buffers.records)
	assert.False(t, p.buffers.modified)

	got2, _, err := p.buffers.Read(ctx, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("LABELONE"), got2, "Reset must force a fresh read from the underlying device")
}

func TestHideRangeErrorsWithoutACachedRecord(t *testing.T) {
	p := newTestProbe(make([]byte, 64))
	err := p.buffers.HideRange(0, 8)
	assert.Error(t, err)
}

func TestStepBackDropsBuffersOnlyWhenNotModified(t *testing.T) {
	ctx := context.Background()

	p := newTestProbe([]byte("unmodified-bytes"))
	p.curChainIdx = 0
	p.chains[0].idx = 2
	_, _, err := p.buffers.Read(ctx, 0, 8)
	require.NoError(t, err)
	require.False(t, p.buffers.modified)

	p.StepBack(ctx)
	assert.Equal(t, 1, p.chains[0].idx)
	assert.Empty(t, p.buffers.records, "StepBack must drop cached buffers when the cache was never modified")

	p2 := newTestProbe([]byte("will-be-hidden!!"))
	p2.curChainIdx = 0
	p2.chains[0].idx = 2
	_, _, err = p2.buffers.Read(ctx, 0, 8)
	require.NoError(t, err)
	require.NoError(t, p2.buffers.HideRange(0, 8))
	require.True(t, p2.buffers.modified)

	p2.StepBack(ctx)
	assert.Equal(t, 1, p2.chains[0].idx)
	assert.NotEmpty(t, p2.buffers.records, "StepBack must preserve a HideRange'd cache rather than clobbering it")
	got, _, err := p2.buffers.Read(ctx, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), got, "the hidden bytes must still read as zero after StepBack")
}

func TestLocateMagicKBOffAndSBOff(t *testing.T) {
	data := make([]byte, 4096)
	copy(data[1024+0x38:], []byte{0x53, 0xef})
	p := newTestProbe(data)

	idi := &Idinfo{
		Magics: []MagicDescriptor{
			{Bytes: []byte{0x53, 0xef}, KBOff: 1, SBOff: 0x38},
		},
	}
	match, found, err := locateMagic(context.Background(), p, idi)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Addr(1024+0x38), match.Offset)
}

func TestLocateMagicFromEnd(t *testing.T) {
	data := make([]byte, 8192)
	tailOff := len(data) - 8
	copy(data[tailOff:], []byte("mdmagic!"))
	p := newTestProbe(data)

	idi := &Idinfo{
		Magics: []MagicDescriptor{
			{Bytes: []byte("mdmagic!"), FromEnd: true, KBOff: 0, SBOff: 8},
		},
	}
	match, found, err := locateMagic(context.Background(), p, idi)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Addr(tailOff), match.Offset)
}

func TestLocateMagicHintName(t *testing.T) {
	data := make([]byte, 4096)
	copy(data[2048+16:], []byte("CD001"))
	p := newTestProbe(data)
	p.hints.Set("session_offset", 2048)

	idi := &Idinfo{
		Magics: []MagicDescriptor{
			{Bytes: []byte("CD001"), HintName: "session_offset", SBOff: 16},
		},
	}
	match, found, err := locateMagic(context.Background(), p, idi)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Addr(2048+16), match.Offset)

	// With the hint absent, the descriptor never applies.
	p.hints.Reset()
	_, found, err = locateMagic(context.Background(), p, idi)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocateMagicSkipsZonedOnNonZonedDevice(t *testing.T) {
	p := newTestProbe(make([]byte, 4096))
	idi := &Idinfo{
		Magics: []MagicDescriptor{
			{Bytes: []byte("nope"), IsZoned: true, ZoneNum: 1},
		},
	}
	_, found, err := locateMagic(context.Background(), p, idi)
	require.NoError(t, err)
	assert.False(t, found, "a zoned descriptor must be skipped when the device has no zone size")
}

func TestLocateMagicNoDescriptorsAlwaysRuns(t *testing.T) {
	p := newTestProbe(make([]byte, 16))
	idi := &Idinfo{}
	match, found, err := locateMagic(context.Background(), p, idi)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, match.Descriptor)
}

// TestChainSafeScanAmbivalence exercises the ambivalence rule directly
// against a synthetic chain, since ambivalence between two real on-disk
// formats can't be provoked from the production driver without two distinct
// images claiming the exact same bytes.
func TestChainSafeScanAmbivalence(t *testing.T) {
	always := func(name string) *Idinfo {
		return &Idinfo{
			Name: name,
			Probe: func(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
				p.values.append(ch.Kind, NameType, []byte(name))
				return true, nil
			},
		}
	}
	d := &driver{name: "test", idinfos: []*Idinfo{always("fs-a"), always("fs-b")}}
	ch := newChain(ChainSublks, d)
	p := newTestProbe(make([]byte, 4096))

	res, err := ch.safeScan(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, StepAmbivalent, res)
	assert.Empty(t, p.values.All(), "ambivalent result must not leave any chain's values behind")
}

func TestChainSafeScanTolerantMergesAlongsideSingleWinner(t *testing.T) {
	fs := &Idinfo{
		Name: "fs",
		Probe: func(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
			p.values.append(ch.Kind, NameType, []byte("ext4"))
			return true, nil
		},
	}
	tolerant := &Idinfo{
		Name:  "mbr_fallback",
		Flags: Tolerant,
		Probe: func(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
			p.values.append(ch.Kind, NamePTType, []byte("dos"))
			return true, nil
		},
	}
	d := &driver{name: "test", idinfos: []*Idinfo{fs, tolerant}}
	ch := newChain(ChainSublks, d)
	p := newTestProbe(make([]byte, 4096))

	res, err := ch.safeScan(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, StepHit, res)

	_, ok := p.values.Lookup(NameType)
	assert.True(t, ok)
	_, ok = p.values.Lookup(NamePTType)
	assert.True(t, ok, "a Tolerant hit should merge in alongside the single non-tolerant winner")
}

func TestChainSafeScanNoHits(t *testing.T) {
	never := &Idinfo{
		Name: "never",
		Magics: []MagicDescriptor{
			{Bytes: []byte("nope"), KBOff: 0, SBOff: 0},
		},
	}
	d := &driver{name: "test", idinfos: []*Idinfo{never}}
	ch := newChain(ChainSublks, d)
	p := newTestProbe(make([]byte, 4096))

	res, err := ch.safeScan(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, StepNothing, res)
}

func TestEmitMagicRequiresFlag(t *testing.T) {
	p := newTestProbe(make([]byte, 16))
	md := &MagicDescriptor{Bytes: []byte{0xAA, 0xBB}}
	match := MagicMatch{Descriptor: md, Offset: 4}

	emitMagic(p, ChainSublks, &Idinfo{Flags: 0}, match)
	_, ok := p.values.Lookup(NameSBMagic)
	assert.False(t, ok, "emitMagic must do nothing without the Magic flag")

	emitMagic(p, ChainSublks, &Idinfo{Flags: Magic}, match)
	v, ok := p.values.Lookup(NameSBMagic)
	require.True(t, ok)
	assert.Equal(t, md.Bytes, v.Bytes())
	off, ok := p.values.Lookup(NameSBMagicOff)
	require.True(t, ok)
	assert.Equal(t, "4", off.String())
}

func TestEmitMagicUsesPartsNamesOnPartsChain(t *testing.T) {
	p := newTestProbe(make([]byte, 16))
	md := &MagicDescriptor{Bytes: []byte{0x55, 0xaa}}
	match := MagicMatch{Descriptor: md, Offset: 510}

	emitMagic(p, ChainParts, &Idinfo{Flags: Magic}, match)
	_, ok := p.values.Lookup(NameSBMagic)
	assert.False(t, ok)
	v, ok := p.values.Lookup(NamePTMagic)
	require.True(t, ok)
	assert.Equal(t, md.Bytes, v.Bytes())
}
