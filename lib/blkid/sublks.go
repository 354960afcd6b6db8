// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

// sublksDriver assembles the SUBLKS chain's identifier array. Order
// matters for two reasons: it's the order DoProbe steps through on
// repeated calls, and it's the order safeScan/DoWipe's wiper bookkeeping
// sees identifiers in (an earlier entry's wipe hint can suppress a later
// entry's otherwise-valid-looking hit).
func sublksDriver() *driver {
	var idinfos []*Idinfo
	idinfos = append(idinfos, lvm2Idinfos()...)
	idinfos = append(idinfos, mdraidIdinfos()...)
	idinfos = append(idinfos, bitlockerIdinfos()...)
	idinfos = append(idinfos, swapIdinfos()...)
	idinfos = append(idinfos, extIdinfos()...)
	idinfos = append(idinfos, btrfsIdinfos()...)
	idinfos = append(idinfos, f2fsIdinfos()...)
	idinfos = append(idinfos, exfatIdinfos()...)
	idinfos = append(idinfos, iso9660Idinfos()...)
	idinfos = append(idinfos, udfIdinfos()...)
	idinfos = append(idinfos, mbrFallbackIdinfos()...)
	return &driver{name: "sublks", idinfos: idinfos}
}
