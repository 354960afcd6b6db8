// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid_test

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkidcore/blkid/lib/blkid"
)

// openImage writes data to a fresh temp file and returns a Probe bound to
// it; t.Cleanup takes care of closing and removing the file.
func openImage(t *testing.T, data []byte) *blkid.Probe {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	p := blkid.NewProbe()
	require.NoError(t, p.BindDevice(context.Background(), f, false))
	return p
}

func lookupString(t *testing.T, p *blkid.Probe, name string) string {
	t.Helper()
	v, ok := p.Lookup(name)
	require.True(t, ok, "expected a %s value", name)
	return v.String()
}

func putU16LE(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func putU32LE(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func putU64LE(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

// --- ext4 -------------------------------------------------------------

func buildExt4Image(t *testing.T) []byte {
	t.Helper()
	img := make([]byte, 8192)
	sb := 1024

	putU32LE(img, sb+0x18, 2)          // s_log_block_size -> 4096-byte blocks
	putU32LE(img, sb+0x4, 10)          // s_blocks_count_lo
	putU16LE(img, sb+0x38, 0xef53)     // s_magic
	putU32LE(img, sb+0x60, 0x0040)     // s_feature_incompat: EXTENTS -> ext4
	copy(img[sb+0x68:sb+0x78], []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	})
	copy(img[sb+0x78:sb+0x88], []byte("rootfs"))
	return img
}

func TestExt4Identification(t *testing.T) {
	p := openImage(t, buildExt4Image(t))
	res, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	assert.Equal(t, "ext4", lookupString(t, p, blkid.NameType))
	assert.Equal(t, "4096", lookupString(t, p, blkid.NameBlockSize))
	assert.Equal(t, "rootfs", lookupString(t, p, blkid.NameLabel))
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", lookupString(t, p, blkid.NameUUID))

	// The ext identifier declares the Magic flag, so a winning hit must
	// also leave SBMAGIC/SBMAGIC_OFFSET behind for DoWipe to use later.
	assert.Equal(t, "1080", lookupString(t, p, blkid.NameSBMagicOff))
}

// --- exFAT --------------------------------------------------------------

func buildExfatImage(t *testing.T) []byte {
	t.Helper()
	const (
		sectorSizeLog2  = 9 // 512-byte sectors
		sectorsPerClLog = 3 // 8 sectors/cluster -> 4096-byte clusters
		heapOffSectors  = 256
	)
	sectorSize := int64(1) << sectorSizeLog2
	clusterSize := sectorSize << sectorsPerClLog
	heapOffset := heapOffSectors * sectorSize
	dirOffset := heapOffset // root dir cluster 2, first cluster in the heap

	img := make([]byte, dirOffset+int64(clusterSize))

	copy(img[0x3:0xb], []byte("EXFAT   "))
	putU64LE(img, 0x48, 800)                 // VolumeLength, in sectors
	putU32LE(img, 0x58, heapOffSectors)       // ClusterHeapOffset, in sectors
	putU32LE(img, 0x60, 2)                    // RootDirCluster
	putU32LE(img, 0x64, 0x12345678)           // VolumeSerialNumber
	putU16LE(img, 0x68, 0x0100)               // FileSystemRevision 1.0
	img[0x6c] = sectorSizeLog2
	img[0x6d] = sectorsPerClLog

	label := []byte{'M', 0, 'Y', 0, 'V', 0, 'O', 0, 'L', 0}
	img[dirOffset] = 0x83 // volume label entry
	img[dirOffset+1] = 5  // 5 UTF-16 code units
	copy(img[dirOffset+2:], label)

	// grow the image past MinSize (512*512 bytes)
	if int64(len(img)) < 512*512 {
		grown := make([]byte, 512*512)
		copy(grown, img)
		img = grown
	}
	return img
}

func TestExfatLabelExtraction(t *testing.T) {
	p := openImage(t, buildExfatImage(t))
	res, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	assert.Equal(t, "exfat", lookupString(t, p, blkid.NameType))
	assert.Equal(t, "MYVOL", lookupString(t, p, blkid.NameLabel))
	assert.Equal(t, "1.0", lookupString(t, p, blkid.NameVersion))
}

// --- ISO9660 + Joliet -----------------------------------------------------

func buildISO9660JolietImage(t *testing.T) []byte {
	t.Helper()
	const sectorSize = 2048
	img := make([]byte, (16+3)*sectorSize)

	writeVD := func(sector int, vdType byte, labelOff int, label string, escape []byte) {
		off := sector * sectorSize
		img[off] = vdType
		copy(img[off+1:off+6], []byte("CD001"))
		copy(img[off+labelOff:off+labelOff+len(label)], []byte(label))
		if escape != nil {
			copy(img[off+88:off+88+len(escape)], escape)
		}
	}

	// Primary volume descriptor at sector 16; the 32-byte label field is
	// space-padded, not NUL-terminated, so it must be filled out exactly
	// (probeISO9660 only trims trailing spaces, not NULs, from it).
	primary := make([]byte, 32)
	for i := range primary {
		primary[i] = ' '
	}
	copy(primary, "ISOIMAGE")
	writeVD(16, 1, 40, string(primary), nil)

	// Joliet supplementary descriptor at sector 17, label in UTF-16BE.
	jolietName := []byte{0, 'J', 0, 'o', 0, 'l', 0, 'i', 0, 'e', 0, 't'}
	off := 17 * sectorSize
	img[off] = 2
	copy(img[off+1:off+6], []byte("CD001"))
	copy(img[off+88:off+91], []byte{0x25, 0x2f, 0x40})
	copy(img[off+40:off+40+len(jolietName)], jolietName)

	// Terminator at sector 18.
	writeVD(18, 255, 0, "", nil)

	return img
}

func TestISO9660JolietIdentification(t *testing.T) {
	p := openImage(t, buildISO9660JolietImage(t))
	res, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	assert.Equal(t, "iso9660", lookupString(t, p, blkid.NameType))
	assert.Equal(t, "Joliet", lookupString(t, p, blkid.NameLabel))
	assert.Equal(t, "joliet", lookupString(t, p, blkid.NameSecType))
	assert.Equal(t, "Joliet Extension", lookupString(t, p, blkid.NameVersion))
	assert.Equal(t, "ISOIMAGE", lookupString(t, p, blkid.NameLabelRaw))
}

// --- F2FS, including the checksummed-superblock / BADCSUM contract -----

const f2fsChecksumOffset = 0xf0

// buildF2FSImage writes a minimal f2fs superblock at KB offset 1 with a
// correct seeded CRC32-Castagnoli checksum; corruptChecksum flips a byte
// of the stored checksum so callers can exercise the BADCSUM path.
func buildF2FSImage(t *testing.T, corruptChecksum bool) []byte {
	t.Helper()
	img := make([]byte, 2*1024*1024)
	sb := 1024

	putU32LE(img, sb+0x0, 0xf2f52010) // magic
	putU16LE(img, sb+0x4, 1)          // major_version
	putU16LE(img, sb+0x6, 14)         // minor_version
	putU32LE(img, sb+0x10, 12)        // log_blocksize -> 4096-byte blocks
	putU32LE(img, sb+0x7c, f2fsChecksumOffset)
	putU64LE(img, sb+0x34, 100) // block_count
	copy(img[sb+0x6c:sb+0x7c], []byte{
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
		0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20,
	})

	table := crc32.MakeTable(crc32.Castagnoli)
	crc := crc32.Update(0xf2f52010, table, img[sb:sb+f2fsChecksumOffset])
	putU32LE(img, sb+f2fsChecksumOffset, crc)

	if corruptChecksum {
		img[sb+f2fsChecksumOffset] ^= 0xff
	}
	return img
}

func TestF2FSIdentification(t *testing.T) {
	p := openImage(t, buildF2FSImage(t, false))
	res, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	assert.Equal(t, "f2fs", lookupString(t, p, blkid.NameType))
	assert.Equal(t, "4096", lookupString(t, p, blkid.NameBlockSize))
	assert.Equal(t, "4096", lookupString(t, p, blkid.NameFSBlockSize))
	_, hasBadCSum := p.Lookup(blkid.NameSBBadCSum)
	assert.False(t, hasBadCSum)
}

func TestF2FSBadChecksumRejectedByDefault(t *testing.T) {
	p := openImage(t, buildF2FSImage(t, true))
	res, err := p.DoSafeProbe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blkid.StepNothing, res)
	_, hasType := p.Lookup(blkid.NameType)
	assert.False(t, hasType)
}

func TestF2FSBadChecksumSoftAcceptedWithBadCSumFlag(t *testing.T) {
	p := openImage(t, buildF2FSImage(t, true))
	p.Chain(blkid.ChainSublks).SetFlags(blkid.BadCSumOK)

	res, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	assert.Equal(t, "f2fs", lookupString(t, p, blkid.NameType))
	assert.Equal(t, "1", lookupString(t, p, blkid.NameSBBadCSum))
}

// --- DOS partition table, including one level of EBR nesting -----------

func buildDOSImage(t *testing.T) []byte {
	t.Helper()
	img := make([]byte, 64*512)

	writeEntry := func(sector []byte, idx int, boot, typ byte, lbaStart, sectors uint32) {
		e := sector[0x1be+idx*16 : 0x1be+(idx+1)*16]
		e[0] = boot
		e[4] = typ
		putU32LE(e, 8, lbaStart)
		putU32LE(e, 12, sectors)
	}

	mbr := img[0:512]
	writeEntry(mbr, 0, 0x80, 0x83, 2048, 2048)  // primary Linux partition
	writeEntry(mbr, 1, 0x00, 0x05, 10, 20)      // extended partition (CHS), starts at LBA 10
	mbr[510], mbr[511] = 0x55, 0xaa

	ebr := img[10*512 : 11*512]
	writeEntry(ebr, 0, 0x00, 0x83, 2, 8) // first logical partition, relative to the EBR
	ebr[510], ebr[511] = 0x55, 0xaa

	return img
}

func TestDOSPartitionTableWithEBR(t *testing.T) {
	p := openImage(t, buildDOSImage(t))
	// DoProbe would stop at the first chain to report a hit, and the
	// SUBLKS chain's tolerant mbr_fallback entry matches this image's
	// boot signature too; DoSafeProbe runs every chain so the PARTS
	// chain's own table actually gets built.
	res, err := p.DoSafeProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	ch := p.Chain(blkid.ChainParts)
	require.NotNil(t, ch)
	table, ok := ch.Data().(*blkid.PartitionTable)
	require.True(t, ok)
	assert.Equal(t, "dos", table.Scheme)

	flat := table.Flatten()
	require.Len(t, flat, 3, "one primary, one extended container, one logical partition")
	assert.Equal(t, blkid.Addr(2048*512), flat[0].Offset)
	assert.Equal(t, "05", flat[1].Type)
	assert.Len(t, flat[1].Children, 1)
}

// --- LVM2 PV label wiping a stale MBR signature -------------------------

func buildLVM2Image(t *testing.T) []byte {
	t.Helper()
	img := make([]byte, 4*512+512)

	// A stale DOS boot signature at offset 0, as if this disk used to be
	// a plain MBR disk before pvcreate claimed it.
	img[510], img[511] = 0x55, 0xaa

	label := img[0:512]
	copy(label[0:8], []byte("LABELONE"))
	putU32LE(label, 20, 32) // header offset
	copy(label[24:32], []byte("LVM2 001"))
	copy(label[32:64], []byte("a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"))

	return img
}

func TestLVM2WipesStaleMBRSignature(t *testing.T) {
	p := openImage(t, buildLVM2Image(t))
	res, err := p.DoSafeProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	assert.Equal(t, "LVM2_member", lookupString(t, p, blkid.NameType))
	_, hasPTType := p.Lookup(blkid.NamePTType)
	assert.False(t, hasPTType, "the stale MBR signature should have been suppressed by the LVM2 wipe record")
}

func TestDoWipeErasesWinningMagicAndStepBackRetries(t *testing.T) {
	p := openImage(t, buildLVM2Image(t))
	res, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)
	assert.Equal(t, "LVM2_member", lookupString(t, p, blkid.NameType))

	ctx := context.Background()
	require.NoError(t, p.DoWipe(ctx, false))

	// DoWipe only erases the 8 "LABELONE" bytes SBMAGIC/SBMAGIC_OFFSET
	// pointed at, not the whole label area, so the stale boot signature at
	// 510/511 survives on disk. DoWipe's own StepBack call (it never sets
	// the buffer cache's "modified" flag, since it writes straight to the
	// device rather than through HideRange) drops the cached buffers on
	// its own, so the very next DoProbe already re-reads the device and
	// sees the erased label: the lvm2 identifier no longer matches, and
	// with no PV label left to claim the sector, mbr_fallback wins instead.
	res, err = p.DoProbe(ctx)
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)
	_, hasType := p.Lookup(blkid.NameType)
	assert.False(t, hasType, "the erased LVM2 label must no longer be identified")
	assert.Equal(t, "dos", lookupString(t, p, blkid.NamePTType))
}

func TestDoWipeDryRunDoesNotTouchDevice(t *testing.T) {
	data := buildLVM2Image(t)
	p := openImage(t, data)
	res, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	require.NoError(t, p.DoWipe(context.Background(), true))

	p.Start()
	res, err = p.DoProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)
	assert.Equal(t, "LVM2_member", lookupString(t, p, blkid.NameType), "dry-run must leave the on-disk label intact")
}

// --- GPT -----------------------------------------------------------------

func buildGPTImage(t *testing.T) []byte {
	t.Helper()
	const sectorSize = 512
	img := make([]byte, 40*sectorSize)

	// Protective MBR.
	img[450] = 0xee
	img[510], img[511] = 0x55, 0xaa

	hdr := img[sectorSize : 2*sectorSize]
	copy(hdr[0:8], []byte("EFI PART"))
	putU32LE(hdr, 12, 92) // header size
	putU64LE(hdr, 72, 4)  // partition entry LBA
	putU32LE(hdr, 80, 1)  // number of entries
	putU32LE(hdr, 84, 128)

	entries := img[4*sectorSize : 4*sectorSize+128]
	copy(entries[0:16], []byte{ // a nonzero type GUID
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
	})
	putU64LE(entries, 32, 10) // start LBA
	putU64LE(entries, 40, 20) // end LBA

	entriesCRC := crc32.ChecksumIEEE(entries[:128])
	putU32LE(hdr, 88, entriesCRC)

	hdrCRC := crc32.ChecksumIEEE(hdr[:92])
	putU32LE(hdr, 16, hdrCRC)

	return img
}

func TestGPTIdentification(t *testing.T) {
	p := openImage(t, buildGPTImage(t))
	res, err := p.DoSafeProbe(context.Background())
	require.NoError(t, err)
	require.Equal(t, blkid.StepHit, res)

	assert.Equal(t, "gpt", lookupString(t, p, blkid.NamePTType))

	ch := p.Chain(blkid.ChainParts)
	table, ok := ch.Data().(*blkid.PartitionTable)
	require.True(t, ok)
	require.Len(t, table.Entries, 1)
	assert.Equal(t, blkid.Addr(10*512), table.Entries[0].Offset)
}

// --- Controller-level behavior -------------------------------------------

func TestDoSafeProbeErrorsOnNoDevice(t *testing.T) {
	p := blkid.NewProbe()
	_, err := p.DoSafeProbe(context.Background())
	assert.ErrorIs(t, err, blkid.ErrNoSuchDevice)
}

func TestDoWipeWithoutAMagicValueIsNotWipeable(t *testing.T) {
	p := openImage(t, make([]byte, 4096))
	_, err := p.DoProbe(context.Background())
	require.NoError(t, err)
	err = p.DoWipe(context.Background(), false)
	assert.ErrorIs(t, err, blkid.ErrNotWipeable)
}

func TestCloneServesReadsFromParentCache(t *testing.T) {
	data := buildExt4Image(t)
	p := openImage(t, data)
	_, err := p.DoProbe(context.Background())
	require.NoError(t, err)

	child := p.Clone(0, p.Size())
	res, err := child.DoProbe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blkid.StepHit, res)
	assert.Same(t, p, child.WholeDiskProbe())
}
