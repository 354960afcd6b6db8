// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !linux

package blkid

import (
	"io"
	"io/fs"
	"os"

	"github.com/blkidcore/blkid/lib/linux"
)

// rawStatMode approximates POSIX st_mode from fs.FileMode; it cannot
// distinguish every device class as precisely as the Linux syscall form,
// but block/char/dir/regular is enough for this platform's fallback.
func rawStatMode(fi os.FileInfo) linux.StatMode {
	m := fi.Mode()
	switch {
	case m&fs.ModeDevice != 0 && m&fs.ModeCharDevice != 0:
		return linux.ModeFmtCharDevice
	case m&fs.ModeDevice != 0:
		return linux.ModeFmtBlockDevice
	case m.IsDir():
		return linux.ModeFmtDir
	default:
		return linux.ModeFmtRegular
	}
}

// blockDeviceSize falls back to seek-to-end, which is correct for plain
// files and the best this platform can offer for a block special file.
func blockDeviceSize(f *os.File) (int64, error) {
	return f.Seek(0, io.SeekEnd)
}

func blockDeviceSectorSize(f *os.File) int {
	return 0
}

func isCDROM(f *os.File) bool {
	return false
}

func cdromMultisessionOffset(f *os.File) (off int64, ok bool) {
	return 0, false
}
