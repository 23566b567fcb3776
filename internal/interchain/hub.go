// Package interchain implements the broadcast registry that lets a
// second chain snoop a first chain's output stream. Per Design Notes §9
// it is modeled as an explicitly constructed BroadcastHub owned by the
// runtime and injected into the stages that need it, rather than as a
// hidden process-global singleton.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package interchain

import (
	"sync"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"github.com/jive5ge/jive5ge/internal/block"
)

// Handle identifies a registered interchain queue.
type Handle string

// Tagged carries a block together with the sequence field stages use to
// correlate multiple broadcast inputs explicitly (queues themselves make
// no cross-queue ordering promise).
type Tagged struct {
	Seq      uint64
	Checksum uint64
	B        block.Block
}

// queue is the minimal surface Hub needs from a bqueue.Bqueue[Tagged];
// declared as an interface so tests can substitute fakes without
// importing the generic queue type twice.
type queue interface {
	Push(Tagged) bool
	TryPush(Tagged) bool
	Disable()
}

// Hub is a process-wide registry of bqueues receiving copies of one
// producer's output. A single lock covers both registration churn and
// individual pushes, because registration is rare (per §4.3 and the
// original's interchain.h) — this keeps Push/TryPush simple and avoids a
// second lock order to reason about.
type Hub struct {
	mu     sync.Mutex
	queues map[Handle]queue
	seq    uint64
}

func NewHub() *Hub {
	return &Hub{queues: make(map[Handle]queue)}
}

// RequestQueue registers q under a freshly generated handle.
func (h *Hub) RequestQueue(q queue) Handle {
	id, err := shortid.Generate()
	if err != nil {
		// shortid's only failure mode is a misconfigured generator;
		// fall back to a counter-derived handle rather than erroring a
		// registration path that spec.md treats as infallible.
		h.mu.Lock()
		id = ""
		for {
			id = shortidFallback(h.seq)
			if _, exists := h.queues[Handle(id)]; !exists {
				break
			}
			h.seq++
		}
		h.mu.Unlock()
	}
	handle := Handle(id)
	h.mu.Lock()
	h.queues[handle] = q
	h.mu.Unlock()
	return handle
}

func shortidFallback(n uint64) string {
	const digits = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n == 0 {
		return "q0"
	}
	b := make([]byte, 0, 8)
	for n > 0 {
		b = append(b, digits[n%uint64(len(digits))])
		n /= uint64(len(digits))
	}
	return "q" + string(b)
}

// RemoveQueue unregisters and disables h, so a consumer blocked in Pop
// is woken rather than orphaned.
func (h *Hub) RemoveQueue(handle Handle) {
	h.mu.Lock()
	q, ok := h.queues[handle]
	delete(h.queues, handle)
	h.mu.Unlock()
	if ok {
		q.Disable()
	}
}

func (h *Hub) tag(b block.Block) Tagged {
	seq := atomic.AddUint64(&h.seq, 1)
	return Tagged{Seq: seq, Checksum: xxhash.Checksum64(b.Bytes()), B: b}
}

// Push performs a blocking push on every registered queue and returns
// true iff all pushes succeeded. Each subscriber gets its own retained
// reference to b; the caller's own reference is untouched.
func (h *Hub) Push(b block.Block) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.queues) == 0 {
		return true
	}
	tagged := h.tag(b)
	var g errgroup.Group
	var allOK int32 = 1
	for _, q := range h.queues {
		q := q
		copyT := tagged
		copyT.B = b.Retain()
		g.Go(func() error {
			if !q.Push(copyT) {
				atomic.StoreInt32(&allOK, 0)
				copyT.B.Release()
			}
			return nil
		})
	}
	_ = g.Wait()
	return atomic.LoadInt32(&allOK) == 1
}

// TryPush is the non-blocking variant: it drops the copy destined for
// any queue that is currently full, instead of waiting.
func (h *Hub) TryPush(b block.Block) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.queues) == 0 {
		return
	}
	tagged := h.tag(b)
	for _, q := range h.queues {
		copyT := tagged
		copyT.B = b.Retain()
		if !q.TryPush(copyT) {
			copyT.B.Release()
		}
	}
}

// DisableAll disables every registered queue, used at chain teardown.
func (h *Hub) DisableAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, q := range h.queues {
		q.Disable()
	}
}

// Len reports the number of currently registered queues.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues)
}
