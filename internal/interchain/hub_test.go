package interchain

import (
	"context"
	"testing"

	"github.com/jive5ge/jive5ge/internal/bqueue"
	"github.com/jive5ge/jive5ge/internal/block"
)

func mustBlock(t *testing.T, p *block.Blockpool) block.Block {
	t.Helper()
	b, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestFanOutToTwoSnoopers(t *testing.T) {
	pool := block.NewBlockpool(8, 2, 8)
	hub := NewHub()

	q1 := bqueue.New[Tagged](4)
	q2 := bqueue.New[Tagged](4)
	h1 := hub.RequestQueue(q1)
	h2 := hub.RequestQueue(q2)
	defer hub.RemoveQueue(h1)
	defer hub.RemoveQueue(h2)

	b := mustBlock(t, pool)
	copy(b.Bytes(), []byte("abcdefgh"))

	if !hub.Push(b) {
		t.Fatal("expected push to succeed with two subscribers")
	}
	b.Release()

	t1, ok := q1.Pop()
	if !ok || string(t1.B.Bytes()) != "abcdefgh" {
		t.Fatalf("snooper 1 did not receive the expected block")
	}
	t1.B.Release()

	t2, ok := q2.Pop()
	if !ok || string(t2.B.Bytes()) != "abcdefgh" {
		t.Fatalf("snooper 2 did not receive the expected block")
	}
	t2.B.Release()
}

func TestRemovingOneSnooperDoesNotAffectOther(t *testing.T) {
	pool := block.NewBlockpool(8, 2, 8)
	hub := NewHub()

	q1 := bqueue.New[Tagged](4)
	q2 := bqueue.New[Tagged](4)
	h1 := hub.RequestQueue(q1)
	h2 := hub.RequestQueue(q2)
	hub.RemoveQueue(h1)
	defer hub.RemoveQueue(h2)

	b := mustBlock(t, pool)
	if !hub.Push(b) {
		t.Fatal("expected push to succeed after removing one snooper")
	}
	b.Release()

	if _, ok := q1.Pop(); ok {
		t.Fatal("expected removed queue to be disabled and drained")
	}
	if _, ok := q2.Pop(); !ok {
		t.Fatal("expected remaining queue to still receive data")
	}
}

func TestTryPushDropsOnFullQueue(t *testing.T) {
	pool := block.NewBlockpool(8, 2, 8)
	hub := NewHub()
	q := bqueue.New[Tagged](1)
	h := hub.RequestQueue(q)
	defer hub.RemoveQueue(h)

	b1 := mustBlock(t, pool)
	b2 := mustBlock(t, pool)

	hub.TryPush(b1) // fills the capacity-1 queue
	hub.TryPush(b2) // should be dropped, not block

	b1.Release()
	b2.Release()

	if q.Len() != 1 {
		t.Fatalf("expected exactly 1 queued item, got %d", q.Len())
	}
	tg, _ := q.Pop()
	tg.B.Release()
}
