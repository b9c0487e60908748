// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package fs

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// RenameWithFallback renames src to dst, falling back to a copy-then-
// delete when the two paths live on different devices (the staging
// cache and vendor/ are not guaranteed to share a filesystem). Windows
// reports the cross-device case with its own errno rather than
// syscall.EXDEV, so that check is duplicated here instead of shared
// with the non-Windows path.
func RenameWithFallback(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "cannot stat %s", src)
	}

	if dstInfo, err := os.Stat(dst); srcInfo.IsDir() && err == nil && dstInfo.IsDir() {
		return errors.Errorf("cannot rename directory %s to existing dst %s", src, dst)
	}

	err = os.Rename(src, dst)
	if err == nil {
		return nil
	}

	linkErr, ok := err.(*os.LinkError)
	if !ok {
		return err
	}

	if linkErr.Err != syscall.EXDEV {
		// 0x11 (ERROR_NOT_SAME_DEVICE) is the errno Windows actually
		// surfaces for a cross-device rename in most configurations.
		// See https://msdn.microsoft.com/en-us/library/cc231199.aspx
		errno, ok := linkErr.Err.(syscall.Errno)
		if ok && errno != 0x11 {
			return errors.Wrapf(linkErr, "link error: cannot rename %s to %s", src, dst)
		}
	}

	var copyErr error
	if dir, _ := IsDir(src); dir {
		copyErr = CopyDir(src, dst)
	} else {
		copyErr = copyFile(src, dst)
	}
	if copyErr != nil {
		return errors.Wrapf(copyErr, "second attempt failed: cannot rename %s to %s", src, dst)
	}

	return errors.Wrapf(os.RemoveAll(src), "cannot delete %s", src)
}
