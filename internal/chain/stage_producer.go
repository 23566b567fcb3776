package chain

import (
	"context"

	"github.com/jive5ge/jive5ge/internal/block"
	"github.com/jive5ge/jive5ge/internal/bqueue"
	"github.com/jive5ge/jive5ge/internal/interchain"
)

// BroadcastProducerArgs configures NewBroadcastProducerStage.
type BroadcastProducerArgs struct {
	Hub *interchain.Hub
	// Blocking selects Hub.Push (wait for every subscriber to have
	// room) over Hub.TryPush (drop the copy destined for any subscriber
	// that doesn't), mirroring the original's distinction between a
	// lossless snoop and a best-effort one.
	Blocking bool
}

// NewBroadcastProducerStage returns a stage body that relays every block
// from inq to outq unchanged and, once outq has its own copy, forwards a
// second copy to every queue registered on args.Hub — the interchain
// fan-out spec.md §2 item 4 requires ("broadcast producers additionally
// push to all registered interchain queues"). Grounded on the
// original's push-then-forward ordering in
// original_source/src/threadfns/do_push_block.h and the forking stage
// declared in original_source/evlbi5a/interchainfns.h's queue_forker:
// the outq push happens first, so each block reaches the chain's own
// pipeline before the broadcast, and the two destinations each get their
// own reference. With Blocking set, a subscriber queue that is full
// still holds up the relay of the next block until it has room.
func NewBroadcastProducerStage(args BroadcastProducerArgs) StageFunc[block.Block] {
	return func(ctx context.Context, inq, outq *bqueue.Bqueue[block.Block], sync *SyncRecord) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			b, ok := inq.Pop()
			if !ok {
				return nil
			}

			if outq != nil {
				if !outq.Push(b.Retain()) {
					b.Release()
					return nil
				}
			}
			if args.Hub != nil {
				if args.Blocking {
					args.Hub.Push(b)
				} else {
					args.Hub.TryPush(b)
				}
			}
			b.Release()
		}
	}
}

// NewInterchainReaderStage returns the S0 body of a chain snooping
// another chain's broadcast output: it registers a fresh queue on hub,
// relays every block it receives to outq until cancelled or hub tears
// the queue down, and unregisters on the way out. This gives
// InterchainQueueReaderArgs (see stage.go) its stage body — a snooper
// chain's first stage reads from the hub instead of from a chain-local
// fifo queue.
func NewInterchainReaderStage(hub *interchain.Hub, capacity int) StageFunc[block.Block] {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return func(ctx context.Context, inq, outq *bqueue.Bqueue[block.Block], sync *SyncRecord) error {
		q := bqueue.New[interchain.Tagged](capacity)
		handle := hub.RequestQueue(q)
		defer hub.RemoveQueue(handle)

		// Wake a Pop blocked on the hub queue when ctx is cancelled.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				q.Disable()
			case <-done:
			}
		}()

		for {
			select {
			case <-ctx.Done():
				q.Disable()
			default:
			}

			tagged, ok := q.Pop()
			if !ok {
				return nil
			}
			if outq != nil {
				if !outq.Push(tagged.B) {
					tagged.B.Release()
					return nil
				}
			} else {
				tagged.B.Release()
			}
		}
	}
}
