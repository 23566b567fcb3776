package bqueue

import (
	"sync"
	"testing"
	"time"
)

func TestFIFOOrderSingleProducerConsumer(t *testing.T) {
	q := New[int](4)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if !q.Push(i) {
				t.Errorf("push %d failed unexpectedly", i)
			}
		}
		q.DelayedDisable()
	}()

	got := make([]int, 0, 1000)
	for {
		x, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, x)
	}
	wg.Wait()

	if len(got) != 1000 {
		t.Fatalf("expected 1000 items, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order violated at index %d: got %d", i, v)
		}
	}
}

func TestPushFailsWhenDisabled(t *testing.T) {
	q := New[int](4)
	q.Disable()
	if q.Push(1) {
		t.Fatal("expected push to fail on disabled queue")
	}
}

func TestPopDrainsBeforeFailingOnDisable(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Disable()

	if x, ok := q.Pop(); !ok || x != 1 {
		t.Fatalf("expected to drain 1, got %d ok=%v", x, ok)
	}
	if x, ok := q.Pop(); !ok || x != 2 {
		t.Fatalf("expected to drain 2, got %d ok=%v", x, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected pop to fail once drained and disabled")
	}
}

func TestDisableUnblocksWaitersWithinBoundedTime(t *testing.T) {
	q := New[int](1)
	q.Push(1) // fill it

	done := make(chan struct{})
	go func() {
		q.Push(2) // blocks: full and enabled
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Disable()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push did not unblock within bounded time after Disable")
	}
}

func TestDisableUnblocksBlockedPop(t *testing.T) {
	q := New[int](1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Disable()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected pop on empty disabled queue to return false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not unblock within bounded time after Disable")
	}
}

func TestCancelDropsPending(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Cancel()

	if _, ok := q.Pop(); ok {
		t.Fatal("expected cancel to drop pending items")
	}
}

func TestResizeEnablePreservesOrKeepsNewest(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Push(4)
	q.DelayedDisable()
	q.ResizeEnable(2)

	x, ok := q.Pop()
	if !ok || x != 3 {
		t.Fatalf("expected oldest items discarded, first pop = %d", x)
	}
	x, ok = q.Pop()
	if !ok || x != 4 {
		t.Fatalf("expected 4 next, got %d", x)
	}
}

func TestMultiProducerPerProducerOrderPreserved(t *testing.T) {
	q := New[[2]int](16)
	const perProducer = 500
	const producers = 4
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([2]int{p, i})
			}
		}(p)
	}
	go func() {
		wg.Wait()
		q.DelayedDisable()
	}()

	lastSeen := make([]int, producers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}
	count := 0
	for {
		x, ok := q.Pop()
		if !ok {
			break
		}
		count++
		if x[1] <= lastSeen[x[0]] {
			t.Fatalf("producer %d order violated: saw %d after %d", x[0], x[1], lastSeen[x[0]])
		}
		lastSeen[x[0]] = x[1]
	}
	if count != perProducer*producers {
		t.Fatalf("expected %d items, got %d", perProducer*producers, count)
	}
}
