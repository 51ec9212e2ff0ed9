// shm.go: shared-memory file mapping
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SharedMemory is a read-write mapping of an externally-created
// shared-memory file. The core never creates or resizes the file: its size
// is taken from the file's length at open time. Creation, sizing and the
// client-side mapping of the same file are the external collaborator's
// responsibility; this type only performs the server's half of the mmap
// contract.
type SharedMemory struct {
	file *os.File
	mem  []byte
}

// OpenSharedMemory opens path read-write and maps its full current length.
// Mapping failure is unrecoverable; it is returned wrapping ErrMapFailed
// and the caller decides how it is surfaced (mneme-server prints it and
// exits non-zero).
func OpenSharedMemory(path string) (*SharedMemory, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMapFailed, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrMapFailed, path, err)
	}
	size := info.Size()
	if size <= 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s has zero length", ErrMapFailed, path)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrMapFailed, path, err)
	}

	return &SharedMemory{file: f, mem: mem}, nil
}

// Bytes returns the mapped region. Offsets into it (ring header, request
// descriptors, response slots) follow the wire layout this package and its
// external client agree on.
func (s *SharedMemory) Bytes() []byte { return s.mem }

// Close unmaps the region and closes the underlying file descriptor.
func (s *SharedMemory) Close() error {
	var err error
	if s.mem != nil {
		err = unix.Munmap(s.mem)
		s.mem = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
