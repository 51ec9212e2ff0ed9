// dispatcher_test.go: request dispatcher integration tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	"context"
	"encoding/binary"
	"testing"
	"time"
)

// newTestServerWithRing builds a Server over an in-process byte slice
// standing in for the mapped shared-memory region, with room for a ring
// plus a handful of response slots right after it.
func newTestServerWithRing(capacity uint32, workers int, ringSize uint32, extraBytes int) (*Server, []byte) {
	mem := make([]byte, ringBytes(ringSize)+extraBytes)
	cfg := Config{Workers: workers, Capacity: capacity, RingSize: ringSize}
	s := NewServer(cfg, nil, nil)
	s.mem = mem
	s.ring = newRing(mem, ringSize)
	s.dispatcher = newDispatcher(s, workers)
	return s, mem
}

// PUT key=5 value=42 via the ring, with res_off pointing at a zeroed
// response slot; after some bounded time the response slot's ready flag
// is 1.
func TestDispatcherPutSetsReadyFlag(t *testing.T) {
	const ringSize = 8
	respOff := ringBytes(ringSize)
	s, mem := newTestServerWithRing(4, 2, ringSize, descriptorSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Dispatcher().Run(ctx)

	s.Ring().Submit(RequestDescriptor{ReqType: ReqPut, K: 5, V: 42, ResOff: uint32(respOff)})

	deadline := time.After(2 * time.Second)
	for {
		ready := binary.LittleEndian.Uint32(mem[respOff+respReadyOffset : respOff+respReadyOffset+4])
		if ready == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("response ready flag never set")
		case <-time.After(time.Millisecond):
		}
	}

	v, ok := s.Lookup(5)
	if !ok || v != 42 {
		t.Fatalf("Lookup(5) = (%d,%v), want (42,true)", v, ok)
	}
}

func TestDispatcherGetWritesValueBeforeReady(t *testing.T) {
	const ringSize = 8
	respOff := ringBytes(ringSize)
	s, mem := newTestServerWithRing(4, 2, ringSize, descriptorSize)

	if err := s.Insert(7, 99); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Dispatcher().Run(ctx)

	s.Ring().Submit(RequestDescriptor{ReqType: ReqGet, K: 7, ResOff: uint32(respOff)})

	deadline := time.After(2 * time.Second)
	for {
		ready := binary.LittleEndian.Uint32(mem[respOff+respReadyOffset : respOff+respReadyOffset+4])
		if ready == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("response ready flag never set")
		case <-time.After(time.Millisecond):
		}
	}

	v := binary.LittleEndian.Uint32(mem[respOff+respValueOffset : respOff+respValueOffset+4])
	if v != 99 {
		t.Fatalf("response v field = %d, want 99", v)
	}
}

func TestDispatcherStatsTracksDuplicatesAndMisses(t *testing.T) {
	const ringSize = 8
	respOff := ringBytes(ringSize)
	s, _ := newTestServerWithRing(8, 2, ringSize, descriptorSize*2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Dispatcher().Run(ctx)

	s.Ring().Submit(RequestDescriptor{ReqType: ReqPut, K: 1, V: 1, ResOff: uint32(respOff)})
	s.Ring().Submit(RequestDescriptor{ReqType: ReqPut, K: 1, V: 2, ResOff: uint32(respOff)})
	s.Ring().Submit(RequestDescriptor{ReqType: ReqGet, K: 999, ResOff: uint32(respOff)})

	deadline := time.After(2 * time.Second)
	for {
		total := uint64(0)
		for _, st := range s.Dispatcher().Stats() {
			total += st.Served
		}
		if total >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dispatcher did not process all submitted requests in time")
		case <-time.After(time.Millisecond):
		}
	}

	var dup, miss uint64
	for _, st := range s.Dispatcher().Stats() {
		dup += st.Duplicate
		miss += st.NotFound
	}
	if dup != 1 {
		t.Fatalf("duplicate count = %d, want 1", dup)
	}
	if miss != 1 {
		t.Fatalf("not-found count = %d, want 1", miss)
	}
}

// Each served request leaves behind a non-negative latency measurement,
// and TotalLatencyNs accumulates across requests served by the same worker.
func TestDispatcherStatsTracksLatency(t *testing.T) {
	const ringSize = 8
	respOff := ringBytes(ringSize)
	s, _ := newTestServerWithRing(8, 1, ringSize, descriptorSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Dispatcher().Run(ctx)

	s.Ring().Submit(RequestDescriptor{ReqType: ReqPut, K: 1, V: 1, ResOff: uint32(respOff)})
	s.Ring().Submit(RequestDescriptor{ReqType: ReqPut, K: 2, V: 2, ResOff: uint32(respOff)})

	deadline := time.After(2 * time.Second)
	for {
		total := uint64(0)
		for _, st := range s.Dispatcher().Stats() {
			total += st.Served
		}
		if total >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dispatcher did not process both requests in time")
		case <-time.After(time.Millisecond):
		}
	}

	stats := s.Dispatcher().Stats()
	if len(stats) != 1 {
		t.Fatalf("len(stats) = %d, want 1 (single worker)", len(stats))
	}
	// LastLatencyNs is a measurement of real elapsed time and is always
	// representable as a non-negative duration; it is not asserted > 0
	// since a fast CachedTime resolution can legitimately read back equal
	// timestamps for a sub-resolution operation.
	if stats[0].TotalLatencyNs < stats[0].LastLatencyNs {
		t.Fatalf("TotalLatencyNs (%d) < LastLatencyNs (%d) after 2 requests",
			stats[0].TotalLatencyNs, stats[0].LastLatencyNs)
	}
}
