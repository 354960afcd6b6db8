// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"
	"fmt"
)

const lvm2LabelSize = 512

// lvm2Idinfos recognizes an LVM2 physical volume label. pvcreate writes
// the label into one of the device's first four sectors (historically to
// allow growing the label area), so all four are tried.
func lvm2Idinfos() []*Idinfo {
	var magics []MagicDescriptor
	for sector := int64(0); sector < 4; sector++ {
		magics = append(magics, MagicDescriptor{
			Bytes: []byte("LABELONE"),
			KBOff: sector * lvm2LabelSize / KiB,
			SBOff: int(sector*lvm2LabelSize) % KiB,
		})
	}
	return []*Idinfo{{
		Name:    "lvm2_pv",
		Usage:   UsageRAIDMember,
		Flags:   Magic,
		MinSize: 4 * lvm2LabelSize,
		Magics:  magics,
		Probe:   probeLVM2,
		Wipe:    wipeLVM2,
	}}
}

func probeLVM2(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	label, status, err := p.buffers.Read(ctx, match.Offset, lvm2LabelSize)
	if err != nil {
		return false, err
	}
	if status != ReadOK {
		return false, nil
	}
	if string(label[24:32]) != "LVM2 001" {
		return false, nil
	}

	hdrOff := le32(label[20:24])
	if int(hdrOff)+32 > len(label) {
		return true, nil
	}
	pvUUIDRaw := label[hdrOff : hdrOff+32]

	p.values.append(ch.Kind, NameType, []byte("LVM2_member"))
	p.values.append(ch.Kind, NameVersion, []byte("LVM2 001"))
	p.values.append(ch.Kind, NameUUID, []byte(formatLVMUUID(pvUUIDRaw)))

	return true, nil
}

// wipeLVM2 claims the device's first 8 KiB on behalf of the PV label.
// pvcreate always overwrites any boot-sector signature that used to live
// there as part of establishing the PV, so a stale DOS MBR magic still
// readable there afterward belongs to the format this disk used to have,
// not the one it has now.
func wipeLVM2(p *Probe, match MagicMatch) (Addr, int64, bool) {
	return 0, 8 * 1024, true
}

// formatLVMUUID renders LVM2's 32-character raw PV UUID into its
// conventional 6-4-4-4-4-4-6 dashed grouping.
func formatLVMUUID(raw []byte) string {
	s := string(raw)
	if len(s) != 32 {
		return s
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s-%s-%s",
		s[0:6], s[6:10], s[10:14], s[14:18], s[18:22], s[22:26], s[26:32])
}
