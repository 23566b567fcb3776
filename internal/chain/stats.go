package chain

import "sync"

// MetricsSink receives per-stage byte deltas for external reporting
// (e.g. a Prometheus registry). Declared here rather than imported so
// that a reporting package can implement it without this package having
// to depend on one.
type MetricsSink interface {
	AddChainBytes(chainName, stageID string, n uint64)
}

// ChainStats tracks per-stage byte counters. Per the original's counter
// convention ("we don't care if they incidentally get clobbered"),
// updates are plain, unsynchronised uint64 increments — a torn read
// during a concurrent write is an acceptable statistics artifact, not a
// correctness bug, in contrast with block's atomic refcount.
type ChainStats struct {
	mu    sync.Mutex // guards only the map's key set, not the counters
	bytes map[string]*uint64

	sink      MetricsSink
	chainName string
}

func newChainStats() *ChainStats {
	return &ChainStats{bytes: make(map[string]*uint64)}
}

// Attach wires sink to receive every subsequent AddBytes call, labelled
// with chainName. Passing a nil sink detaches.
func (cs *ChainStats) Attach(sink MetricsSink, chainName string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.sink = sink
	cs.chainName = chainName
}

func (cs *ChainStats) counter(stageID string) *uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.bytes[stageID]
	if !ok {
		c = new(uint64)
		cs.bytes[stageID] = c
	}
	return c
}

// AddBytes increments stageID's byte counter by n. Safe to call
// concurrently with Snapshot, but not linearisable with it.
func (cs *ChainStats) AddBytes(stageID string, n uint64) {
	c := cs.counter(stageID)
	*c += n

	cs.mu.Lock()
	sink, chainName := cs.sink, cs.chainName
	cs.mu.Unlock()
	if sink != nil {
		sink.AddChainBytes(chainName, stageID, n)
	}
}

// Snapshot copies the current counter values. Because counters update
// without a lock, a snapshot taken mid-transfer may be inconsistent
// across stages by a few bytes; this is accepted for statistics.
func (cs *ChainStats) Snapshot() map[string]uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make(map[string]uint64, len(cs.bytes))
	for k, v := range cs.bytes {
		out[k] = *v
	}
	return out
}
