// dispatcher.go: request dispatcher worker pool
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Offsets of the fields of a response slot, laid out as a descriptor: only
// v and ready are meaningful to the client for a response.
const (
	respValueOffset = 8
	respReadyOffset = 16
)

// WorkerStats is a snapshot of one dispatcher worker's counters: a plain
// value copied out of atomics, never a live pointer into worker state.
type WorkerStats struct {
	Served         uint64
	Duplicate      uint64
	NotFound       uint64
	LastLatencyNs  uint64
	TotalLatencyNs uint64
}

type workerCounters struct {
	served         atomic.Uint64
	duplicate      atomic.Uint64
	notFound       atomic.Uint64
	lastLatencyNs  atomic.Uint64
	totalLatencyNs atomic.Uint64
}

// Dispatcher runs a pool of worker goroutines, each taking request
// descriptors from the server's ring and serving them against the hash
// table core.
type Dispatcher struct {
	server *Server
	n      int
	stats  []workerCounters
	wg     sync.WaitGroup
}

func newDispatcher(s *Server, n int) *Dispatcher {
	if n < 1 {
		n = 1
	}
	return &Dispatcher{server: s, n: n, stats: make([]workerCounters, n)}
}

// Run starts n worker goroutines and returns. Each runs an unbounded loop
// until ctx is canceled; the dispatcher does not shut itself down on its
// own. Tests cancel ctx on teardown, and mneme-server cancels it on
// SIGINT/SIGTERM.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.n; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	if d.server.logger != nil {
		_ = d.server.logger.Log("event", "dispatcher_started", "workers", d.n)
	}
}

// Wait blocks until every worker goroutine has returned (only happens after
// ctx passed to Run is canceled).
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Stats returns a snapshot of every worker's counters.
func (d *Dispatcher) Stats() []WorkerStats {
	out := make([]WorkerStats, len(d.stats))
	for i := range d.stats {
		out[i] = WorkerStats{
			Served:         d.stats[i].served.Load(),
			Duplicate:      d.stats[i].duplicate.Load(),
			NotFound:       d.stats[i].notFound.Load(),
			LastLatencyNs:  d.stats[i].lastLatencyNs.Load(),
			TotalLatencyNs: d.stats[i].totalLatencyNs.Load(),
		}
	}
	return out
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	ring := d.server.ring
	counters := &d.stats[id]

	for {
		req, ok := ring.TakeContext(ctx)
		if !ok {
			return
		}

		start := d.server.timeCache.CachedTime()

		switch req.ReqType {
		case ReqGet:
			v, found := d.server.Lookup(req.K)
			if !found {
				counters.notFound.Add(1)
			}
			d.writeResponse(req.ResOff, v, true)
		case ReqPut:
			err := d.server.Insert(req.K, req.V)
			if errors.Is(err, ErrDuplicateKey) {
				counters.duplicate.Add(1)
			}
			d.writeResponse(req.ResOff, 0, false)
		}

		latencyNs := d.server.timeCache.CachedTime().Sub(start).Nanoseconds()
		if latencyNs < 0 {
			latencyNs = 0 // protect against clock skew
		}
		counters.lastLatencyNs.Store(uint64(latencyNs))
		counters.totalLatencyNs.Add(uint64(latencyNs))
		counters.served.Add(1)
	}
}

// writeResponse locates the response slot at shared_memory_base + resOff
// and, for a GET, overwrites its v field with the looked-up value. The
// ready flag is always set last, with a release fence preceding it, so a
// client observing ready==1 is guaranteed to observe the correct v.
func (d *Dispatcher) writeResponse(resOff uint32, value uint32, withValue bool) {
	mem := d.server.mem
	off := uintptr(resOff)

	if withValue {
		atomic.StoreUint32((*uint32)(unsafe.Pointer(&mem[off+respValueOffset])), value)
	}
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&mem[off+respReadyOffset])), 1)
}
