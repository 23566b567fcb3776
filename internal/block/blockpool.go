package block

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// MetricsSink receives a pool's occupancy gauges whenever they change
// (e.g. for export to a Prometheus registry). Declared here rather than
// imported so a reporting package can implement it without this package
// depending on one.
type MetricsSink interface {
	SetBlockpoolGauges(name string, outstanding, allocated int64)
}

// Blockpool is a fixed-item-size free list with a high-water mark: Get
// blocks once `maxItems` buffers are outstanding. A buffer, once
// allocated, stays on the pool's free list when released; the pool has
// no Destroy method and never hands storage back itself.
type Blockpool struct {
	itemSize   int
	chunkItems int
	maxItems   int

	sem *semaphore.Weighted // total weight == maxItems; one unit per outstanding Block

	mu        sync.Mutex
	free      [][]byte
	allocated int

	name string
	sink MetricsSink
}

// NewBlockpool creates a pool of buffers of itemSize bytes, pre-allocated
// in chunks of chunkItems to amortise allocation, growing lazily up to
// maxItems outstanding buffers.
func NewBlockpool(itemSize, chunkItems, maxItems int) *Blockpool {
	if chunkItems < 1 {
		chunkItems = 1
	}
	if maxItems < chunkItems {
		maxItems = chunkItems
	}
	return &Blockpool{
		itemSize:   itemSize,
		chunkItems: chunkItems,
		maxItems:   maxItems,
		sem:        semaphore.NewWeighted(int64(maxItems)),
	}
}

// Get returns a fresh Block of exactly ItemSize bytes, blocking while the
// pool is exhausted and at capacity, until ctx is cancelled or a Block is
// released back to the pool.
func (p *Blockpool) Get(ctx context.Context) (Block, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Block{}, err
	}

	p.mu.Lock()
	if len(p.free) == 0 {
		grow := p.chunkItems
		if p.allocated+grow > p.maxItems {
			grow = p.maxItems - p.allocated
		}
		if grow < 1 {
			grow = 1
		}
		for i := 0; i < grow; i++ {
			p.free = append(p.free, make([]byte, p.itemSize))
			p.allocated++
		}
	}
	n := len(p.free)
	buf := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()

	p.reportGauges()
	return newBlock(buf[:p.itemSize], p), nil
}

func (p *Blockpool) put(buf []byte) {
	p.mu.Lock()
	p.free = append(p.free, buf[:cap(buf)])
	p.mu.Unlock()
	p.sem.Release(1)
	p.reportGauges()
}

// AttachMetrics wires sink to receive this pool's occupancy gauges,
// labelled with name, on every subsequent Get/Release.
func (p *Blockpool) AttachMetrics(sink MetricsSink, name string) {
	p.mu.Lock()
	p.sink = sink
	p.name = name
	p.mu.Unlock()
	p.reportGauges()
}

func (p *Blockpool) reportGauges() {
	p.mu.Lock()
	sink, name := p.sink, p.name
	outstanding := int64(p.allocated - len(p.free))
	allocated := int64(p.allocated)
	p.mu.Unlock()
	if sink != nil {
		sink.SetBlockpoolGauges(name, outstanding, allocated)
	}
}

// ItemSize is the fixed size of buffers this pool vends.
func (p *Blockpool) ItemSize() int { return p.itemSize }

// MaxItems is the high-water mark.
func (p *Blockpool) MaxItems() int { return p.maxItems }

// Outstanding reports how many items are currently checked out. It is a
// best-effort snapshot, useful for tests and status reporting.
func (p *Blockpool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated - len(p.free)
}

// Allocated reports the total number of buffers the pool has ever
// allocated, bounded by MaxItems.
func (p *Blockpool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}
