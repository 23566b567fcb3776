// Package block implements the reference-counted, pool-backed buffer
// that flows between chain stages.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package block

import "sync/atomic"

// refcount is the shared, atomically-updated reference count for one
// pool-owned allocation. Go has no destructors, so callers must call
// Block.Release explicitly when they are done with a value returned by
// Get, Retain, or Sub — this is the Go-idiomatic substitute for the
// original's copy-constructor/destructor pair (see DESIGN.md).
type refcount struct {
	n    int32
	pool *Blockpool
	full []byte // full-capacity allocation, as handed back to the pool
}

// Block is a contiguous byte region sharing pool-owned storage with
// every other Block derived from the same allocation via Retain or Sub.
type Block struct {
	buf []byte
	rc  *refcount
}

func newBlock(full []byte, pool *Blockpool) Block {
	return Block{buf: full, rc: &refcount{n: 1, pool: pool, full: full}}
}

// Bytes exposes the block's current view. Callers must not retain the
// slice past a Release.
func (b Block) Bytes() []byte { return b.buf }

// Len is the exposed length (<= underlying capacity).
func (b Block) Len() int { return len(b.buf) }

// Cap is the underlying allocation's capacity.
func (b Block) Cap() int { return cap(b.rc.full) }

// Valid reports whether this is a non-zero Block (vs. a zero value
// returned on error paths).
func (b Block) Valid() bool { return b.rc != nil }

// Retain increments the refcount and returns a Block aliasing the same
// storage. Use this when handing the same bytes to two independent
// consumers that will each call Release.
func (b Block) Retain() Block {
	atomic.AddInt32(&b.rc.n, 1)
	return b
}

// Release decrements the refcount; when it reaches zero the storage
// returns to its owning pool. Calling Release more times than a Block
// was retained is a programming error (the storage may be reused by
// another Get concurrently).
func (b Block) Release() {
	if atomic.AddInt32(&b.rc.n, -1) == 0 {
		b.rc.pool.put(b.rc.full)
	}
}

// Sub returns a sub-block sharing the same refcount; it counts as an
// additional reference and must be Released independently of the
// parent. offset+length must not exceed Len().
func (b Block) Sub(offset, length int) Block {
	if offset < 0 || length < 0 || offset+length > len(b.buf) {
		panic("block: sub range out of bounds")
	}
	atomic.AddInt32(&b.rc.n, 1)
	return Block{buf: b.buf[offset : offset+length : cap(b.buf)], rc: b.rc}
}

// Resize shrinks (or grows back up to capacity) the exposed length in
// place. It does not allocate and does not touch the refcount: it is a
// new view of the same logical handle, not a second reference.
func (b Block) Resize(newLen int) Block {
	if newLen < 0 || newLen > cap(b.buf) {
		panic("block: resize exceeds capacity")
	}
	return Block{buf: b.buf[:newLen], rc: b.rc}
}
