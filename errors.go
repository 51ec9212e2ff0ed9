// errors.go: sentinel error values for the key/value core
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	goerrors "github.com/agilira/go-errors"
)

// Recoverable errors: returned to a caller, safe to inspect with errors.Is.
var (
	// ErrDuplicateKey is returned by Insert when the key already has an entry.
	ErrDuplicateKey = goerrors.New("MNEME_DUPLICATE_KEY", "key already present")

	// ErrMapFull is returned when a probe walked the entire capacity without
	// finding an empty slot or the key. The core keeps load factor below the
	// grow trigger so this should not occur in normal operation; it exists
	// as a defensive probe-length cap.
	ErrMapFull = goerrors.New("MNEME_MAP_FULL", "probe exhausted capacity without finding a slot")

	// ErrBadArgs is returned by command-line argument validation.
	ErrBadArgs = goerrors.New("MNEME_BAD_ARGS", "invalid arguments")
)

// Fatal errors: never retried. ErrAllocFailed is passed to Server.OnFault
// immediately before the process terminates; ErrMapFailed is returned by
// OpenSharedMemory, and mneme-server reports it and exits non-zero.
var (
	// ErrAllocFailed marks an allocation failure during grow.
	ErrAllocFailed = goerrors.New("MNEME_ALLOC_FAILED", "allocation failed during grow")

	// ErrMapFailed marks a failure to map the shared-memory region.
	ErrMapFailed = goerrors.New("MNEME_MAP_FAILED", "failed to map shared memory region")
)
