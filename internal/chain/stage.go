package chain

import (
	"context"
	"sync"

	"github.com/jive5ge/jive5ge/internal/bqueue"
)

// SyncRecord is the per-stage synchronisation state the original carries
// as a mutex + condvar + cancelled flag + nthread counter. context.Context
// cancellation plays the role of the original's SIGUSR1-interrupts-a-
// syscall trick; Cond is kept for stages that want to wait on an
// in-process condition rather than a blocking I/O call.
type SyncRecord struct {
	mu        sync.Mutex
	cond      *sync.Cond
	cancelled bool
	nthread   int
}

func newSyncRecord() *SyncRecord {
	s := &SyncRecord{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Cancel marks the record cancelled and wakes any goroutine waiting on
// the condvar.
func (s *SyncRecord) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Cancelled reports whether Cancel has been called.
func (s *SyncRecord) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// StageFunc is the body of one pipeline stage. S0 is called with inq
// nil; the last stage is called with outq nil. Stages must not hold any
// queue's internal lock across a blocking I/O call (bqueue itself
// upholds that for push/pop; callers doing file/socket I/O must release
// any of their own locks similarly).
type StageFunc[T any] func(ctx context.Context, inq, outq *bqueue.Bqueue[T], sync *SyncRecord) error

// queueReaderArgs is deliberately not unified across the two producer
// shapes a stage can have: a stage reading from its chain-local fifo
// queue and a stage reading from an interchain broadcast queue are
// different enough (different backing registries, different
// registration/teardown calls) that forcing one argument type produces
// an interface with half its fields unused either way. See DESIGN.md.
type queueReaderArgs interface{ isQueueReaderArgs() }

// FifoQueueReaderArgs configures a stage that reads its inbound queue as
// an ordinary chain-local Bqueue.
type FifoQueueReaderArgs struct {
	// Capacity is the bounded queue size between this stage and its
	// predecessor; zero means "inherit the chain default."
	Capacity int
}

func (FifoQueueReaderArgs) isQueueReaderArgs() {}

// InterchainQueueReaderArgs configures a stage that reads from a queue
// registered with an interchain.Hub instead of from the chain's own
// pipeline — e.g. a snooper chain attached to another chain's output.
type InterchainQueueReaderArgs struct {
	Capacity int
}

func (InterchainQueueReaderArgs) isQueueReaderArgs() {}

// stage is the chain's internal bookkeeping record for one added stage.
type stage[T any] struct {
	id        string
	fn        StageFunc[T]
	args      queueReaderArgs
	sync      *SyncRecord
	finalizer func()
}
