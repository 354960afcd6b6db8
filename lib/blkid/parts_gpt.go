// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/blkidcore/blkid/lib/containers"
)

const gptHeaderSig = "EFI PART"

var ieeeTable = crc32.MakeTable(crc32.IEEE)

// gptScratchPool supplies the short-lived scratch copy probeGPT needs to
// zero out the header's own checksum field before recomputing it; every
// GPT probe allocates and discards one, so pooling keeps a corrupt image
// that triggers repeated re-probes (StepBack) from re-allocating on each
// pass.
var gptScratchPool containers.SlicePool[byte]

func gptPartsIdinfos() []*Idinfo {
	return []*Idinfo{{
		Name:    "gpt",
		Usage:   UsageOther,
		Flags:   Magic,
		MinSize: 3 * DefaultSectorSize,
		Magics: []MagicDescriptor{
			{Bytes: []byte(gptHeaderSig), KBOff: 0, SBOff: DefaultSectorSize},
		},
		Probe: probeGPT,
	}}
}

func probeGPT(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	hdr, status, err := p.buffers.Read(ctx, match.Offset, 92)
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}

	headerSize := le32(hdr[12:16])
	storedCRC := le32(hdr[16:20])
	entryLBA := le64(hdr[72:80])
	numEntries := le32(hdr[80:84])
	entrySize := le32(hdr[84:88])
	entriesCRC := le32(hdr[88:92])
	// A GPT entry is at least 128 bytes; anything smaller is corrupt.
	if entrySize < 128 {
		return false, nil
	}

	full, status, err := p.buffers.Read(ctx, match.Offset, int64(headerSize))
	if err != nil {
		return false, err
	}
	badCSum := false
	if status == ReadOK {
		check := gptScratchPool.Get(len(full))
		copy(check, full)
		check[16], check[17], check[18], check[19] = 0, 0, 0, 0
		csumOK := crc32.Checksum(check, ieeeTable) == storedCRC
		gptScratchPool.Put(check)
		if !csumOK {
			if ch.Flags&BadCSumOK == 0 {
				return false, nil
			}
			badCSum = true
		}
	}

	diskGUID := hdr[56:72]

	table := &PartitionTable{Scheme: "gpt", UUID: guidFromGPTBytes(diskGUID)}

	entriesData, status, err := p.buffers.Read(ctx, Addr(entryLBA)*DefaultSectorSize, int64(numEntries)*int64(entrySize))
	if err == nil && status == ReadOK {
		if crc32.Checksum(entriesData, ieeeTable) != entriesCRC {
			if ch.Flags&BadCSumOK == 0 {
				return false, nil
			}
			badCSum = true
			// Entry-array corruption is more serious than a header
			// checksum mismatch with BADCSUM set elsewhere; still
			// report the disk GUID, but don't claim to know its
			// partitions.
			ch.setData(table)
			p.values.append(ch.Kind, NamePTType, []byte("gpt"))
			p.values.appendf(ch.Kind, NamePTUUID, "%s", table.UUID)
			p.values.append(ch.Kind, NameSBBadCSum, []byte("1"))
			return true, nil
		}
		number := 1
		for i := uint32(0); i < numEntries; i++ {
			rec := entriesData[int64(i)*int64(entrySize) : int64(i)*int64(entrySize)+int64(entrySize)]
			typeGUID := rec[0:16]
			if allZero(typeGUID) {
				continue
			}
			startLBA := le64(rec[32:40])
			endLBA := le64(rec[40:48])
			attrs := le64(rec[48:56])
			name := decodeUTF16LEVolumeName(rec[56:128])

			table.Entries = append(table.Entries, &PartitionEntry{
				Number: number,
				Offset: Addr(startLBA) * DefaultSectorSize,
				Size:   (int64(endLBA) - int64(startLBA) + 1) * DefaultSectorSize,
				Type:   guidFromGPTBytes(typeGUID),
				UUID:   guidFromGPTBytes(rec[16:32]),
				Name:   name,
				Flags:  attrs,
			})
			number++
		}
	}

	ch.setData(table)
	table.emitValues(p.values, ch.Kind)
	p.values.append(ch.Kind, NamePTType, []byte("gpt"))
	p.values.appendf(ch.Kind, NamePTUUID, "%s", table.UUID)
	if badCSum {
		p.values.append(ch.Kind, NameSBBadCSum, []byte("1"))
	}

	return true, nil
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// guidFromGPTBytes converts the mixed-endian Microsoft GUID encoding GPT
// stores on disk (the first three fields little-endian, the last two
// big-endian) into the big-endian RFC 4122 byte order uuid.FromBytes
// expects, then renders it as a canonical string.
func guidFromGPTBytes(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	var re [16]byte
	re[0], re[1], re[2], re[3] = b[3], b[2], b[1], b[0]
	re[4], re[5] = b[5], b[4]
	re[6], re[7] = b[7], b[6]
	copy(re[8:], b[8:16])
	u, err := uuid.FromBytes(re[:])
	if err != nil {
		return ""
	}
	return u.String()
}
