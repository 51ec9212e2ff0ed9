// table.go: lock-free open-addressed hash table core
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	"sync/atomic"
)

// notFoundValue is the sentinel returned by Lookup when a key is absent.
// It is indistinguishable on the wire from a stored value of 0; see doc.go.
const notFoundValue uint32 = 0

// growLoadFactor is the size/capacity ratio that triggers a grow.
const growLoadFactor = 0.5

// Entry is an immutable key/value pair. Once published into a slot its key
// never changes and its value is never mutated by the core.
type Entry struct {
	Key   uint32
	Value uint32
}

// slot holds either nil (empty) or a published *Entry. The only legal
// transition is empty -> occupied; it is never reversed and never
// repointed to a different entry.
type slot struct {
	entry atomic.Pointer[Entry]
}

// Table is the (backing array, size, capacity) triple. Growth produces a
// new Table; capacity of an existing Table never changes.
type Table struct {
	slots    []slot
	capacity uint32
	size     atomic.Uint32
}

func newTable(capacity uint32) *Table {
	if capacity == 0 {
		capacity = 1
	}
	return &Table{slots: make([]slot, capacity), capacity: capacity}
}

// hash is the fixed, externally-defined hash function h(key, capacity) ->
// [0, capacity). It is pure and does not depend on Table state. Fibonacci
// multiplicative hashing keeps the distribution reasonable for any
// capacity, not just powers of two, unlike the ring which requires one.
func hash(key, capacity uint32) uint32 {
	if capacity == 0 {
		return 0
	}
	return uint32((uint64(key) * 2654435769) % uint64(capacity))
}

// Lookup returns the value published for key, or (0, false) if absent.
// Never blocks; wait-free under lookup-only workloads.
func (s *Server) Lookup(key uint32) (uint32, bool) {
	for {
		t := s.table.Load()
		v, found := lookupIn(t, key)

		// Confirm the active table pointer is still t. An observed "empty"
		// slot may have raced a publication carried into a newer table by
		// a concurrent grow; since growth never erases entries, reading an
		// older snapshot to completion is safe, but only a re-run against
		// the fresh table closes that race.
		if s.table.Load() != t {
			continue
		}
		return v, found
	}
}

// lookupIn walks t from h(key, t.capacity).
func lookupIn(t *Table, key uint32) (value uint32, found bool) {
	i := hash(key, t.capacity)
	for probes := uint32(0); probes <= t.capacity; probes++ {
		idx := i % t.capacity
		e := t.slots[idx].entry.Load()
		if e == nil {
			return 0, false
		}
		if e.Key == key {
			return e.Value, true
		}
		i++
	}
	return 0, false
}

// Insert publishes (key, value) if key is absent. Returns ErrDuplicateKey if
// an entry with that key already exists. May block briefly while a grow is
// in progress.
func (s *Server) Insert(key, value uint32) error {
	for {
		s.waitUntilIdle()

		t := s.table.Load()
		inserted, restart, err := s.tryInsert(t, key, value)
		if err != nil {
			return err
		}
		if restart {
			continue
		}
		if inserted {
			s.maybeTriggerGrow(t)
		}
		return nil
	}
}

// tryInsert runs one pass of the probe-and-publish loop against t. restart
// is true if a migration started mid-walk and the caller must discard its
// attempt and retry from the top; Insert models this as a retry loop rather
// than a goto, with no cap on the number of retries.
func (s *Server) tryInsert(t *Table, key, value uint32) (inserted bool, restart bool, err error) {
	entry := &Entry{Key: key, Value: value}
	i := hash(key, t.capacity)

	for probes := uint32(0); probes <= t.capacity; probes++ {
		if s.migrating.Load() {
			return false, true, nil
		}
		idx := i % t.capacity
		sl := &t.slots[idx]
		cur := sl.entry.Load()
		if cur == nil {
			if sl.entry.CompareAndSwap(nil, entry) {
				t.size.Add(1)
				return true, false, nil
			}
			// CAS lost the race for this slot; re-read without advancing.
			continue
		}
		if cur.Key == key {
			return false, false, ErrDuplicateKey
		}
		i++
	}
	return false, false, ErrMapFull
}

// maybeTriggerGrow checks the load factor after a successful insert and,
// if crossed, attempts to become the migration leader. The loser returns
// immediately; the winner runs the grow protocol before returning.
func (s *Server) maybeTriggerGrow(t *Table) {
	if float64(t.size.Load()) <= float64(t.capacity)*growLoadFactor {
		return
	}
	if !s.migrating.CompareAndSwap(false, true) {
		return
	}
	// t may be stale: this goroutine could have been descheduled between
	// its own insert and this check while another leader already grew t
	// into the active table. Growing t again here would stomp the newer
	// table and silently drop every entry inserted since. Re-confirm t is
	// still active before touching it at all.
	if s.table.Load() != t {
		s.migrating.Store(false)
		s.barrier.broadcast()
		return
	}
	s.runGrow(t)
}
