// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package blkid implements a block device content identification core:
// a probe controller that walks chains of filesystem, RAID-member,
// partition-table and crypto-container identifiers over a bound device
// or image file, extracting their canonical attributes.
package blkid

// Addr is a byte offset, either absolute within a bound device or
// relative to a probe's current window, depending on context.
type Addr int64

const (
	// KiB is the unit that magic offsets are traditionally expressed in.
	KiB = 1024

	// DefaultSectorSize is assumed for devices that cannot report their
	// own logical sector size (plain image files, for instance).
	DefaultSectorSize = 512
)
