package chain

import (
	"context"
	"testing"
	"time"

	"github.com/jive5ge/jive5ge/internal/bqueue"
	"github.com/jive5ge/jive5ge/internal/errs"
)

func TestThreeStagePipelineMovesAllItems(t *testing.T) {
	c := NewTyped[int](nil)
	const n = 50
	received := make(chan int, n)

	_ = c.Add("source", func(ctx context.Context, inq, outq *bqueue.Bqueue[int], sync *SyncRecord) error {
		for i := 0; i < n; i++ {
			if !outq.Push(i) {
				return nil
			}
			c.Stats().AddBytes("source", 1)
		}
		return nil
	}, FifoQueueReaderArgs{Capacity: 4})

	_ = c.Add("double", func(ctx context.Context, inq, outq *bqueue.Bqueue[int], sync *SyncRecord) error {
		for {
			v, ok := inq.Pop()
			if !ok {
				return nil
			}
			if !outq.Push(v * 2) {
				return nil
			}
		}
	}, FifoQueueReaderArgs{Capacity: 4})

	_ = c.Add("sink", func(ctx context.Context, inq, outq *bqueue.Bqueue[int], sync *SyncRecord) error {
		for {
			v, ok := inq.Pop()
			if !ok {
				close(received)
				return nil
			}
			received <- v
		}
	}, nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	count := 0
	for v := range received {
		if v%2 != 0 {
			t.Fatalf("expected only doubled (even) values, got %d", v)
		}
		count++
	}
	if count != n {
		t.Fatalf("received %d items, want %d", count, n)
	}
}

func TestStagePanicTriggersCancelTeardownAndRecordsError(t *testing.T) {
	ring := errs.NewRing(4)
	c := NewTyped[int](ring)

	_ = c.Add("source", func(ctx context.Context, inq, outq *bqueue.Bqueue[int], sync *SyncRecord) error {
		<-ctx.Done()
		return nil
	}, nil)
	_ = c.Add("boom", func(ctx context.Context, inq, outq *bqueue.Bqueue[int], sync *SyncRecord) error {
		panic("simulated stage failure")
	}, nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	if ring.Len() == 0 {
		t.Fatal("expected the panic to be recorded in the error ring")
	}
}

func TestTeardownCancelUnblocksPendingPush(t *testing.T) {
	c := NewTyped[int](nil)
	_ = c.Add("source", func(ctx context.Context, inq, outq *bqueue.Bqueue[int], sync *SyncRecord) error {
		for {
			if !outq.Push(1) {
				return nil
			}
		}
	}, FifoQueueReaderArgs{Capacity: 1})
	_ = c.Add("sink", func(ctx context.Context, inq, outq *bqueue.Bqueue[int], sync *SyncRecord) error {
		<-ctx.Done()
		return nil
	}, nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		c.TeardownCancel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TeardownCancel did not unblock a stage stuck pushing")
	}
}
