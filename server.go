// server.go: server context — packages the active table, migration state,
// ring transport and background workers into one value instead of process
// globals.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	"sync/atomic"
	"time"

	timecache "github.com/agilira/go-timecache"
	"github.com/go-kit/log"
)

// Server is the packaged context value for one running key/value core: the
// Active Table Pointer, the Migration Flag and its barrier, the ring
// transport and the dispatcher pool all live here instead of as
// package-level globals, and are constructed once at startup.
type Server struct {
	table     atomic.Pointer[Table]
	migrating atomic.Bool
	barrier   *migrationBarrier
	workers   int

	shm  *SharedMemory
	mem  []byte
	ring *Ring

	timeCache *timecache.TimeCache
	logger    log.Logger

	// OnFault is invoked for a fatal allocation failure during grow
	// immediately before the process exits. Mapping failure happens before
	// a Server exists and is reported by OpenSharedMemory's returned error.
	OnFault func(op string, err error)

	dispatcher *Dispatcher
}

// NewServer builds a Server with the given initial capacity and worker
// count. shm, when non-nil, is the mapped shared-memory region backing the
// request ring; a nil shm is only valid for tests that exercise the table
// and grow coordinator without a ring, or that install their own ring.
func NewServer(cfg Config, shm *SharedMemory, logger log.Logger) *Server {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	s := &Server{
		workers:   workers,
		barrier:   newMigrationBarrier(),
		timeCache: timecache.NewWithResolution(time.Millisecond),
		logger:    logger,
		shm:       shm,
	}
	s.table.Store(newTable(cfg.Capacity))

	if shm != nil {
		s.mem = shm.Bytes()
		s.ring = newRing(s.mem, cfg.RingSize)
	}
	s.dispatcher = newDispatcher(s, workers)
	return s
}

// Ring exposes the request transport so an external bootstrapper (or a
// test) can Submit descriptors into it.
func (s *Server) Ring() *Ring { return s.ring }

// Dispatcher exposes the worker pool for Run/Wait/Stats.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Close stops the time cache and unmaps shared memory, if any. It does not
// stop the dispatcher workers; cancel the context passed to
// Dispatcher().Run for that (tests do so on teardown, mneme-server on
// SIGINT/SIGTERM). The wire protocol itself has no shutdown message.
func (s *Server) Close() error {
	if s.timeCache != nil {
		s.timeCache.Stop()
	}
	if s.shm != nil {
		return s.shm.Close()
	}
	return nil
}
