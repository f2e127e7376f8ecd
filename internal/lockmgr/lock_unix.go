// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package lockmgr

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var errLocked = errors.New("advisory lock held by another process")

// platformLock takes a non-blocking exclusive flock(2) on f. Unix has no
// portable atomic open-and-lock syscall, so callers must open the file
// first and lock it as a second step — the inode-verification check in
// tryAcquire exists precisely to close the gap that separation opens.
func platformLock(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if err == unix.EWOULDBLOCK {
		return errLocked
	}
	return err
}

func platformUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// sameInode compares the inode backing the open descriptor f to the
// inode currently found by statting path, detecting an unlink+recreate
// race on the lock path.
func sameInode(f *os.File, path string) (bool, error) {
	var fstat, pstat unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &fstat); err != nil {
		return false, err
	}
	if err := unix.Stat(path, &pstat); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fstat.Ino == pstat.Ino && fstat.Dev == pstat.Dev, nil
}
