// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// errStateLocked means another daemon holds the state directory.
var errStateLocked = errors.New("state directory is in use by another lockvaultd")

// acquireStateLock takes an exclusive, non-blocking flock on path. The
// lock lives as long as the returned file stays open.
func acquireStateLock(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening state lock %s: %w", path, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", errStateLocked, path)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return file, nil
}
