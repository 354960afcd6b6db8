// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "context"

// bitlockerVariants are the boot-sector signatures a BitLocker-encrypted
// volume can carry: the steady-state signature, and the one used while a
// volume is mid-conversion (encrypting or decrypting in place).
var bitlockerVariants = []string{"-FVE-FS-", "-EOW-FS-"}

func bitlockerIdinfos() []*Idinfo {
	var magics []MagicDescriptor
	for _, sig := range bitlockerVariants {
		magics = append(magics, MagicDescriptor{Bytes: []byte(sig), KBOff: 0, SBOff: 3})
	}
	return []*Idinfo{{
		Name:    "bitlocker",
		Usage:   UsageCryptoContainer,
		Flags:   Magic,
		MinSize: 512,
		Magics:  magics,
		Probe:   probeBitlocker,
	}}
}

func probeBitlocker(ctx context.Context, p *Probe, ch *Chain, match MagicMatch) (bool, error) {
	p.values.append(ch.Kind, NameType, []byte("BitLocker"))
	if string(match.Descriptor.Bytes) == "-EOW-FS-" {
		p.values.append(ch.Kind, NameSecType, []byte("encrypt-on-write"))
	}
	// The volume GUID and encryption metadata live in a separate FVE
	// metadata block whose location varies across Windows versions;
	// recognizing the container doesn't require locating it.
	return true, nil
}
