// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"fmt"

	"github.com/blkidcore/blkid/lib/binstruct"
	"github.com/blkidcore/blkid/lib/binstruct/binint"
)

const (
	exfatDirEntrySize = 32
	// exfatMaxDirSize bounds how much of the root directory's cluster
	// chain probeExfat is willing to scan looking for a volume label
	// entry; a corrupt cluster chain must not turn this into an
	// unbounded walk.
	exfatMaxDirSize = 64 * 1024

	exfatEntryTypeEOD         = 0x00
	exfatEntryTypeVolumeLabel = 0x83
)

var exfatMagicBytes = [8]byte{'E', 'X', 'F', 'A', 'T', ' ', ' ', ' '}

// exfatBootSector is the start of the exFAT main boot sector.
type exfatBootSector struct {
	JumpBoot           [0x3]byte    `bin:"off=0x0,  siz=0x3"`
	FileSystemName     [8]byte      `bin:"off=0x3,  siz=0x8"`
	MustBeZero         [0x35]byte   `bin:"off=0xb,  siz=0x35"`
	PartitionOffset    binint.U64le `bin:"off=0x40, siz=0x8"`
	VolumeLength       binint.U64le `bin:"off=0x48, siz=0x8"`
	FatOffset          binint.U32le `bin:"off=0x50, siz=0x4"`
	FatLength          binint.U32le `bin:"off=0x54, siz=0x4"`
	ClusterHeapOffset  binint.U32le `bin:"off=0x58, siz=0x4"`
	ClusterCount       binint.U32le `bin:"off=0x5c, siz=0x4"`
	RootDirCluster     binint.U32le `bin:"off=0x60, siz=0x4"`
	VolumeSerialNumber binint.U32le `bin:"off=0x64, siz=0x4"`
	FileSystemRevision binint.U16le `bin:"off=0x68, siz=0x2"`
	VolumeFlags        binint.U16le `bin:"off=0x6a, siz=0x2"`
	BytesPerSectorLog2 byte         `bin:"off=0x6c, siz=0x1"`
	SectorsPerClusterLog2 byte      `bin:"off=0x6d, siz=0x1"`

	binstruct.End `bin:"off=0x6e"`
}

func exfatIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "exfat",
		Usage:   UsageFS,
		Flags:   Magic,
		MinSize: 512 * 512,
		Magics: []MagicDescriptor{
			{Bytes: exfatMagicBytes[:], KBOff: 0, SBOff: 0x3},
		},
		Probe: probeExfat,
	}}
}

func probeExfat(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	sbStart := match.Offset - 0x3
	size := binstruct.StaticSize(exfatBootSector{})
	data, status, err := p.buffers.Read(ctx, sbStart, int64(size))
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	var bs exfatBootSector
	if _, err := binstruct.Unmarshal(data, &bs); err != nil {
		return false, fmt.Errorf("blkid: exfat: %w", err)
	}

	sectorSize := int64(1) << bs.BytesPerSectorLog2
	fsSize := sectorSize * int64(uint64(bs.VolumeLength))

	p.values.append(ch.Kind, NameType, []byte("exfat"))
	p.values.appendf(ch.Kind, NameVersion, "%d.%d", uint16(bs.FileSystemRevision)>>8, uint16(bs.FileSystemRevision)&0xff)
	p.values.appendf(ch.Kind, NameBlockSize, "%d", sectorSize)
	p.values.appendf(ch.Kind, NameFSBlockSize, "%d", sectorSize)
	p.values.appendf(ch.Kind, NameFSSize, "%d", fsSize)
	if serial := uint32(bs.VolumeSerialNumber); serial != 0 {
		p.values.appendf(ch.Kind, NameUUID, "%04X-%04X", serial>>16, serial&0xffff)
	}

	if label := findExfatLabel(ctx, p, sbStart, bs); label != "" {
		p.values.append(ch.Kind, NameLabel, []byte(label))
	}

	return true, nil
}

// findExfatLabel locates the root directory's first cluster from the
// boot sector's geometry fields and scans it for a volume label
// directory entry (type 0x83). It only looks at the root directory's
// first cluster: the label entry is always written there by mkexfatfs,
// and following the FAT's cluster chain for a directory that spans more
// than one cluster isn't needed for identification.
func findExfatLabel(ctx context.Context, p *Probe, volumeStart Addr, bs exfatBootSector) string {
	rootCluster := uint32(bs.RootDirCluster)
	if rootCluster < 2 {
		return ""
	}
	sectorSize := int64(1) << bs.BytesPerSectorLog2
	clusterSize := sectorSize << bs.SectorsPerClusterLog2
	heapOffset := int64(uint32(bs.ClusterHeapOffset)) * sectorSize
	dirOffset := volumeStart + Addr(heapOffset) + Addr(int64(rootCluster-2)*clusterSize)

	scanLen := clusterSize
	if scanLen > exfatMaxDirSize {
		scanLen = exfatMaxDirSize
	}
	maxEntries := scanLen / exfatDirEntrySize

	for i := int64(0); i < maxEntries; i++ {
		entry, status, err := p.buffers.Read(ctx, dirOffset+Addr(i*exfatDirEntrySize), exfatDirEntrySize)
		if err != nil || status != ReadOK {
			return ""
		}
		switch entry[0] {
		case exfatEntryTypeEOD:
			return ""
		case exfatEntryTypeVolumeLabel:
			count := int(entry[1])
			if count > 11 {
				count = 11
			}
			return decodeUTF16LEVolumeName(entry[2 : 2+2*count])
		}
	}
	return ""
}
