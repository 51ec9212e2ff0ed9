// Package mneme implements a concurrent, in-process key/value core for a
// shared-memory request server: a lock-free open-addressed hash table with
// linear probing, a cooperative online grow protocol that parallelizes
// rehash across helper goroutines while pausing writers but never readers,
// and a shared-memory ring transport that carries request descriptors
// across the process boundary with wait-free head-claiming.
//
// The shared-memory file itself is created and sized by an external client
// process; mneme only opens and maps it (shm.go) and agrees on the byte
// layout of the ring header and request/response descriptors (ring.go).
//
// Known limitation: the wire response format has no explicit "absent" flag,
// so a stored value of 0 and "key not found" are indistinguishable to a
// client reading the response slot. This mirrors the original protocol and
// is not fixed here; see notFoundValue in table.go for the sentinel used
// internally.
package mneme
