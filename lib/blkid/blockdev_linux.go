// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package blkid

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/blkidcore/blkid/lib/linux"
)

// rawStatMode extracts the POSIX st_mode bits Go's os.FileInfo normally
// hides behind fs.FileMode, which is the only reliable way to tell a
// block device apart from a character device.
func rawStatMode(fi os.FileInfo) linux.StatMode {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return linux.StatMode(fi.Mode().Perm())
	}
	return linux.StatMode(st.Mode)
}

// blockDeviceSize asks the kernel for the exact size of a block device via
// BLKGETSIZE64; the ordinary stat/seek-to-end path does not report a
// useful size for block special files on Linux.
func blockDeviceSize(f *os.File) (int64, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}

// blockDeviceSectorSize returns the logical sector size reported by the
// kernel, or 0 if it cannot be determined.
func blockDeviceSectorSize(f *os.File) int {
	n, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// The CDROM ioctls below aren't all exposed as named constants by
// golang.org/x/sys/unix, so the request codes are taken straight from
// <linux/cdrom.h>; they're part of the stable Linux ioctl ABI.
const (
	ioctlCDROMGetCapability = 0x5331
	ioctlCDROMMultisession  = 0x5310
	cdromAddrLBA            = 0x01
)

// cdromMultisession mirrors struct cdrom_multisession from <linux/cdrom.h>
// with addr_format fixed to CDROM_LBA, so addr is a plain little-endian
// logical block address.
type cdromMultisessionLBA struct {
	addr       int32
	xaFlag     uint8
	addrFormat uint8
	_          [2]byte // struct padding
}

// isCDROM reports whether f refers to a device that answers the CDROM
// capability ioctl; failure (ENOTTY on a non-optical device) is the
// common, expected case and is not an error worth surfacing.
func isCDROM(f *os.File) bool {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(ioctlCDROMGetCapability), 0)
	return errno == 0
}

// cdromMultisessionOffset reads the multisession redirection offset (in
// sectors) from the drive, converting it to a byte offset.  It returns
// ok=false whenever the ioctl isn't supported or the device isn't a
// multisession disc, which callers should treat as "no hint available"
// rather than an error.
func cdromMultisessionOffset(f *os.File) (off int64, ok bool) {
	ms := cdromMultisessionLBA{addrFormat: cdromAddrLBA}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(ioctlCDROMMultisession), uintptr(unsafe.Pointer(&ms)))
	if errno != 0 || ms.xaFlag == 0 {
		return 0, false
	}
	return int64(ms.addr) * DefaultSectorSize, true
}
