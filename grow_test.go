// grow_test.go: migration barrier tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A waiter that checks the flag, then loses the scheduler to the broadcaster
// before reaching cond.Wait(), must still be woken: the check and the wait
// have to be atomic with respect to the broadcast, not just ordered.
func TestMigrationBarrierNoLostWakeup(t *testing.T) {
	const rounds = 500

	for i := 0; i < rounds; i++ {
		b := newMigrationBarrier()
		var migrating atomic.Bool
		migrating.Store(true)

		woken := make(chan struct{})
		go func() {
			b.waitWhile(migrating.Load)
			close(woken)
		}()

		// Give the waiter a chance to reach the lock before clearing the
		// flag and broadcasting, to exercise the narrow race window rather
		// than just the uncontended path.
		time.Sleep(time.Microsecond)
		migrating.Store(false)
		b.broadcast()

		select {
		case <-woken:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: waiter never woke up (lost wakeup)", i)
		}
	}
}

// Many waiters parked on the same barrier are all released by one broadcast.
func TestMigrationBarrierBroadcastWakesAll(t *testing.T) {
	const n = 16
	b := newMigrationBarrier()
	var migrating atomic.Bool
	migrating.Store(true)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.waitWhile(migrating.Load)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	time.Sleep(time.Millisecond)
	migrating.Store(false)
	b.broadcast()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every waiter was woken by one broadcast")
	}
}
