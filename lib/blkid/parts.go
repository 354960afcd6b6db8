// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

// partsDriver assembles the PARTS chain's identifier array. GPT is tried
// before DOS since a GPT disk always carries a protective MBR at LBA 0
// that would otherwise be mistaken for a real DOS partition table.
func partsDriver() *driver {
	var idinfos []*Idinfo
	idinfos = append(idinfos, gptPartsIdinfos()...)
	idinfos = append(idinfos, dosPartsIdinfos()...)
	return &driver{name: "parts", idinfos: idinfos}
}
