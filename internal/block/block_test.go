package block

import (
	"context"
	"sync"
	"testing"
)

func TestGetReturnsExactSize(t *testing.T) {
	p := NewBlockpool(1024, 4, 16)
	b, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 1024 {
		t.Fatalf("expected len 1024, got %d", b.Len())
	}
	b.Release()
}

func TestSubAliasesStorage(t *testing.T) {
	p := NewBlockpool(16, 1, 4)
	b, _ := p.Get(context.Background())
	copy(b.Bytes(), []byte("0123456789abcdef"))

	sub := b.Sub(4, 4)
	if string(sub.Bytes()) != "4567" {
		t.Fatalf("unexpected sub contents: %q", sub.Bytes())
	}
	sub.Bytes()[0] = 'X'
	if b.Bytes()[4] != 'X' {
		t.Fatalf("expected sub to alias parent storage")
	}
	sub.Release()
	b.Release()
}

func TestResizeSharesHandle(t *testing.T) {
	p := NewBlockpool(64, 1, 4)
	b, _ := p.Get(context.Background())
	r := b.Resize(10)
	if r.Len() != 10 {
		t.Fatalf("expected len 10, got %d", r.Len())
	}
	r.Release() // only one release needed: Resize doesn't add a reference
}

func TestOutstandingNeverExceedsAllocated(t *testing.T) {
	p := NewBlockpool(8, 2, 8)
	var blocks []Block
	for i := 0; i < 8; i++ {
		b, err := p.Get(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, b)
	}
	if p.Outstanding() > p.Allocated() {
		t.Fatalf("outstanding %d > allocated %d", p.Outstanding(), p.Allocated())
	}
	if p.Allocated() > p.MaxItems() {
		t.Fatalf("allocated %d exceeds cap %d", p.Allocated(), p.MaxItems())
	}
	for _, b := range blocks {
		b.Release()
	}
	if p.Outstanding() != 0 {
		t.Fatalf("expected 0 outstanding after releasing all, got %d", p.Outstanding())
	}
}

func TestGetBlocksAtCapacityUntilRelease(t *testing.T) {
	p := NewBlockpool(8, 1, 1)
	b, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	got := make(chan Block, 1)
	go func() {
		defer wg.Done()
		nb, err := p.Get(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		got <- nb
	}()

	// release the only block; the blocked Get should now complete.
	b.Release()
	wg.Wait()
	nb := <-got
	nb.Release()
}

func TestGetRespectsContextCancellation(t *testing.T) {
	p := NewBlockpool(8, 1, 1)
	b, _ := p.Get(context.Background())
	defer b.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Get(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
