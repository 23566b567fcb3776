// Package chain implements the cancellable linear pipeline runtime:
// stages connected by bqueues, started consumer-first, torn down either
// by a graceful drain or by cancellation, with per-stage byte counters
// and exception capture into an error ring.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/teris-io/shortid"

	"github.com/jive5ge/jive5ge/internal/bqueue"
	"github.com/jive5ge/jive5ge/internal/errs"
)

// defaultQueueCapacity is used when a stage's queueReaderArgs doesn't
// specify one.
const defaultQueueCapacity = 8

// runState is the chain's own lifecycle, distinct from each queue's
// bqueue.State.
type runState int

const (
	stateConfigured runState = iota
	stateRunning
	stateStopping
	stateJoined
)

// Chain is an ordered pipeline of stages of element type T, connected by
// bounded queues. It is immutable once Run starts.
type Chain[T any] struct {
	mu    sync.Mutex
	id    string
	state runState

	stages []*stage[T]
	queues []*bqueue.Bqueue[T] // len(stages)-1 inter-stage queues

	stats          *ChainStats
	errRing        *errs.Ring
	chainFinalizer func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an empty chain. errRing may be nil, in which case stage
// panics/errors are dropped: they are neither recorded nor logged.
func New(errRing *errs.Ring) *Chain[any] {
	return NewTyped[any](errRing)
}

// NewTyped is New with an explicit element type, for callers that want a
// chain of block.Block or another concrete type instead of any.
func NewTyped[T any](errRing *errs.Ring) *Chain[T] {
	id, err := shortid.Generate()
	if err != nil {
		id = "chain"
	}
	return &Chain[T]{id: id, errRing: errRing, stats: newChainStats()}
}

// ID returns the chain's generated identifier.
func (c *Chain[T]) ID() string { return c.id }

// Stats returns the chain's byte-counter table.
func (c *Chain[T]) Stats() *ChainStats { return c.stats }

// AttachMetrics wires sink to receive this chain's per-stage byte
// counters as they update, labelled with this chain's id.
func (c *Chain[T]) AttachMetrics(sink MetricsSink) { c.stats.Attach(sink, c.id) }

// Add appends a stage. The first call creates S0 with no inbound queue;
// every subsequent call allocates the previous stage's outbound queue
// using capacity from args (or defaultQueueCapacity if args is nil).
func (c *Chain[T]) Add(id string, fn StageFunc[T], args queueReaderArgs) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConfigured {
		return fmt.Errorf("chain: cannot Add after Run has started")
	}
	if len(c.stages) > 0 {
		cap := defaultQueueCapacity
		switch a := args.(type) {
		case FifoQueueReaderArgs:
			if a.Capacity > 0 {
				cap = a.Capacity
			}
		case InterchainQueueReaderArgs:
			if a.Capacity > 0 {
				cap = a.Capacity
			}
		}
		c.queues = append(c.queues, bqueue.New[T](cap))
	}
	c.stages = append(c.stages, &stage[T]{id: id, fn: fn, args: args, sync: newSyncRecord()})
	return nil
}

// SetFinalizer installs the chain-wide finalizer invoked once, after
// every stage's own finalizer, during teardown.
func (c *Chain[T]) SetFinalizer(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chainFinalizer = fn
}

// SetStageFinalizer installs a finalizer for the stage at index i.
func (c *Chain[T]) SetStageFinalizer(i int, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.stages) {
		return fmt.Errorf("chain: stage index %d out of range", i)
	}
	c.stages[i].finalizer = fn
	return nil
}

// queueFor returns the inq/outq for stage index i (nil at either end).
func (c *Chain[T]) queueFor(i int) (inq, outq *bqueue.Bqueue[T]) {
	if i > 0 {
		inq = c.queues[i-1]
	}
	if i < len(c.queues) {
		outq = c.queues[i]
	}
	return
}

// Run starts every stage's goroutine in reverse-topological (consumer
// first) order and returns immediately; use Wait to block until
// teardown completes. Startup failure (a stage fn returning before
// ready is not distinguishable in this model, so Run itself cannot
// fail once stage bodies are valid funcs) is modeled as: if ctx is
// already cancelled, Run disables every queue and returns ctx's error
// without starting any stage.
func (c *Chain[T]) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateConfigured {
		c.mu.Unlock()
		return fmt.Errorf("chain: Run called twice")
	}
	if len(c.stages) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("chain: cannot run an empty chain")
	}
	if err := ctx.Err(); err != nil {
		for _, q := range c.queues {
			q.Disable()
		}
		c.state = stateStopping
		c.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = stateRunning
	stages := append([]*stage[T](nil), c.stages...)
	c.mu.Unlock()

	for i := len(stages) - 1; i >= 0; i-- {
		i := i
		st := stages[i]
		inq, outq := c.queueFor(i)
		c.wg.Add(1)
		go c.runStage(runCtx, i, st, inq, outq)
	}
	return nil
}

// runStage executes one stage's body with panic/error capture, and on
// any failure or the stage's own normal return drives this chain's
// teardown.
func (c *Chain[T]) runStage(ctx context.Context, idx int, st *stage[T], inq, outq *bqueue.Bqueue[T]) {
	err := c.invoke(ctx, st, inq, outq)
	if st.finalizer != nil {
		st.finalizer()
	}
	// Mark this goroutine joined before possibly calling TeardownCancel,
	// which blocks on every stage's wg slot: a failing stage must not
	// wait on its own completion.
	c.wg.Done()

	if err != nil {
		c.recordFailure(err)
		c.TeardownCancel()
		return
	}
	// Normal stage completion: delayed-disable this stage's outbound
	// queue so downstream stages drain what's already queued.
	if outq != nil {
		outq.DelayedDisable()
	}
}

// invoke calls st.fn, converting a panic into an error the same way the
// original's exception handler converts a C++ exception escaping a
// stage body.
func (c *Chain[T]) invoke(ctx context.Context, st *stage[T], inq, outq *bqueue.Bqueue[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chain: stage %q panicked: %v", st.id, r)
		}
	}()
	return st.fn(ctx, inq, outq, st.sync)
}

func (c *Chain[T]) recordFailure(err error) {
	if c.errRing != nil {
		c.errRing.Push(errs.Wrap(errs.KindInternal, err, "chain %s failed", c.id))
	}
}

// TeardownGraceful is the normal-completion path: delayed-disable the
// head queue so the drain propagates stage by stage, then wait for every
// stage to join.
func (c *Chain[T]) TeardownGraceful() {
	c.mu.Lock()
	if c.state == stateJoined {
		c.mu.Unlock()
		return
	}
	c.state = stateStopping
	if len(c.queues) > 0 {
		c.queues[0].DelayedDisable()
	}
	c.mu.Unlock()
	c.Wait()
}

// TeardownCancel is the cancelled path: disable every queue immediately
// and cancel the stage context (the Go equivalent of pthread_kill with a
// no-op SIGUSR1 handler — it only exists to unblock a stage stuck in a
// context-aware I/O call), then wait for every stage to join.
func (c *Chain[T]) TeardownCancel() {
	c.mu.Lock()
	if c.state == stateJoined {
		c.mu.Unlock()
		return
	}
	c.state = stateStopping
	for _, q := range c.queues {
		q.Disable()
	}
	for _, st := range c.stages {
		st.sync.Cancel()
	}
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.Wait()
}

// Wait blocks until every stage goroutine has returned, then runs the
// chain-wide finalizer exactly once.
func (c *Chain[T]) Wait() {
	c.wg.Wait()
	c.mu.Lock()
	already := c.state == stateJoined
	c.state = stateJoined
	fin := c.chainFinalizer
	c.mu.Unlock()
	if !already && fin != nil {
		fin()
	}
}
