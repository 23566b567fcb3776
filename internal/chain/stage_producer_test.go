package chain

import (
	"context"
	"testing"
	"time"

	"github.com/jive5ge/jive5ge/internal/block"
	"github.com/jive5ge/jive5ge/internal/bqueue"
	"github.com/jive5ge/jive5ge/internal/interchain"
)

// TestBroadcastProducerForwardsToHubAndOutq covers spec.md §2 item 4: a
// broadcast producer stage must deliver every block both to its own
// chain's outq and to every queue registered on the interchain hub.
func TestBroadcastProducerForwardsToHubAndOutq(t *testing.T) {
	pool := block.NewBlockpool(8, 4, 8)
	hub := interchain.NewHub()
	snoop := bqueue.New[interchain.Tagged](4)
	handle := hub.RequestQueue(snoop)
	defer hub.RemoveQueue(handle)

	c := NewTyped[block.Block](nil)
	_ = c.Add("source", func(ctx context.Context, inq, outq *bqueue.Bqueue[block.Block], sync *SyncRecord) error {
		b, err := pool.Get(context.Background())
		if err != nil {
			return err
		}
		outq.Push(b)
		return nil
	}, nil)
	_ = c.Add("broadcast", NewBroadcastProducerStage(BroadcastProducerArgs{Hub: hub, Blocking: true}), nil)
	_ = c.Add("sink", func(ctx context.Context, inq, outq *bqueue.Bqueue[block.Block], sync *SyncRecord) error {
		for {
			b, ok := inq.Pop()
			if !ok {
				return nil
			}
			b.Release()
		}
	}, nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	tagged, ok := snoop.Pop()
	if !ok {
		t.Fatal("expected the broadcast hub to have delivered a block to the snooper queue")
	}
	tagged.B.Release()
}

// TestInterchainReaderStageRelaysBroadcasts covers the read side: a
// snooper chain's S0 reads from the hub and relays to its own outq.
func TestInterchainReaderStageRelaysBroadcasts(t *testing.T) {
	pool := block.NewBlockpool(8, 4, 8)
	hub := interchain.NewHub()

	received := make(chan struct{}, 1)
	c := NewTyped[block.Block](nil)
	_ = c.Add("interchain-in", NewInterchainReaderStage(hub, 4), InterchainQueueReaderArgs{Capacity: 4})
	_ = c.Add("sink", func(ctx context.Context, inq, outq *bqueue.Bqueue[block.Block], sync *SyncRecord) error {
		b, ok := inq.Pop()
		if !ok {
			return nil
		}
		b.Release()
		received <- struct{}{}
		return nil
	}, nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Give the reader stage time to register before broadcasting.
	time.Sleep(20 * time.Millisecond)
	b, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	hub.Push(b)
	b.Release()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the interchain reader stage to relay a broadcast block")
	}
	c.TeardownCancel()
}
