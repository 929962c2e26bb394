// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package cmd

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"grimm.is/portgate/internal/errors"
)

// SetProcessName sets the kernel comm name shown by ps and top. Names
// longer than 15 bytes are truncated by the kernel.
func SetProcessName(name string) error {
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "invalid process name")
	}
	if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0); err != nil {
		return errors.Wrap(err, errors.KindPermission, "prctl(PR_SET_NAME) failed")
	}
	return nil
}
