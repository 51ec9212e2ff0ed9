// ring.go: shared-memory request ring — MPMC circular buffer of request
// descriptors, wait-free head-claiming with CAS-serialized publication.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mneme

import (
	"context"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// Request types fixed by the wire protocol.
const (
	ReqPut uint32 = 0
	ReqGet uint32 = 1
)

// descriptorSize is the byte stride of one buffer_descriptor on the wire:
// four uint32 fields (req_type, k, v, res_off) followed by a fifth uint32
// carrying the ready flag in its low byte. Widening ready to a full word
// keeps every field 4-byte aligned for atomic access into mapped memory.
const descriptorSize = 20

// ringHeaderSize is the byte size of the four cursor words preceding the
// descriptor array: p_head, p_tail, c_head, c_tail.
const ringHeaderSize = 16

// RequestDescriptor is the decoded form of one ring slot or response slot.
type RequestDescriptor struct {
	ReqType uint32
	K       uint32
	V       uint32
	ResOff  uint32
	Ready   uint32
}

// Ring is the shared-memory circular buffer transporting requests between
// an external client and the dispatcher pool. It operates directly on a
// mapped byte region so cursors and descriptors are visible to the client
// process sharing the same mapping.
type Ring struct {
	mem  []byte
	size uint32
}

// newRing wraps mem (the full shared-memory mapping, header at offset 0)
// as a ring of `size` descriptor slots. size must be a power of two so
// `% size` may be implemented as masking; semantics are defined under true
// modulo regardless.
func newRing(mem []byte, size uint32) *Ring {
	return &Ring{mem: mem, size: size}
}

func (r *Ring) word(offset uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.mem[offset]))
}

func (r *Ring) pHead() *uint32 { return r.word(0) }
func (r *Ring) pTail() *uint32 { return r.word(4) }
func (r *Ring) cHead() *uint32 { return r.word(8) }
func (r *Ring) cTail() *uint32 { return r.word(12) }

func (r *Ring) slotOffset(i uint32) uintptr {
	return ringHeaderSize + uintptr(i)*descriptorSize
}

func encodeDescriptor(buf []byte, d RequestDescriptor) {
	words := (*[5]uint32)(unsafe.Pointer(&buf[0]))
	words[0] = d.ReqType
	words[1] = d.K
	words[2] = d.V
	words[3] = d.ResOff
	words[4] = d.Ready
}

func decodeDescriptor(buf []byte) RequestDescriptor {
	words := (*[5]uint32)(unsafe.Pointer(&buf[0]))
	return RequestDescriptor{
		ReqType: words[0],
		K:       words[1],
		V:       words[2],
		ResOff:  words[3],
		Ready:   words[4],
	}
}

// Submit blocks until a slot is available, then publishes d. Safe under
// concurrent producers.
func (r *Ring) Submit(d RequestDescriptor) {
	var claimed, next uint32
	for {
		claimed = atomic.LoadUint32(r.pHead())
		next = (claimed + 1) % r.size
		if next == atomic.LoadUint32(r.cTail()) {
			runtime.Gosched()
			continue
		}
		if atomic.CompareAndSwapUint32(r.pHead(), claimed, next) {
			break
		}
	}

	off := r.slotOffset(claimed)
	encodeDescriptor(r.mem[off:off+descriptorSize], d)

	// Serializes publication order among producers: p_tail only advances
	// one slot at a time, in claim order, so a consumer observing
	// p_tail >= slot+1 is guaranteed to see the fully-written descriptor.
	for !atomic.CompareAndSwapUint32(r.pTail(), claimed, next) {
		runtime.Gosched()
	}
}

// Take blocks until a descriptor is available, then consumes one. Safe
// under concurrent consumers; the mirror image of Submit.
func (r *Ring) Take() RequestDescriptor {
	d, _ := r.take(context.Background())
	return d
}

// TakeContext is a supplementary, non-protocol addition used by the
// dispatcher and by tests to unblock a consumer on shutdown. It is not part
// of the wire contract — it only lets a caller stop polling the ring
// between yields; ok is false if ctx was canceled before a descriptor
// arrived.
func (r *Ring) TakeContext(ctx context.Context) (RequestDescriptor, bool) {
	return r.take(ctx)
}

func (r *Ring) take(ctx context.Context) (RequestDescriptor, bool) {
	var claimed, next uint32
	for {
		claimed = atomic.LoadUint32(r.cHead())
		for claimed == atomic.LoadUint32(r.pTail()) {
			select {
			case <-ctx.Done():
				return RequestDescriptor{}, false
			default:
			}
			runtime.Gosched()
			claimed = atomic.LoadUint32(r.cHead())
		}
		next = (claimed + 1) % r.size
		if atomic.CompareAndSwapUint32(r.cHead(), claimed, next) {
			break
		}
	}

	off := r.slotOffset(claimed)
	d := decodeDescriptor(r.mem[off : off+descriptorSize])

	for !atomic.CompareAndSwapUint32(r.cTail(), claimed, next) {
		runtime.Gosched()
	}
	return d, true
}

// ringBytes returns the total mapping size needed for a ring of the given
// number of slots: the four-word header plus size descriptor slots.
func ringBytes(size uint32) int {
	return ringHeaderSize + int(size)*descriptorSize
}
