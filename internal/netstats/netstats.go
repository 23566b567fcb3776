// Package netstats implements the per-sender UDP statistics table:
// sequence-number tracking, loss/reorder counting, and periodic NACK
// generation, keyed by the sending (address, port) pair.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package netstats

import (
	"fmt"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// SenderKey identifies one UDP sender.
type SenderKey struct {
	Addr string
	Port uint16
}

// psnWindowSize is the circular packet-sequence-number window size used
// to detect reordering and duplicates beyond the cuckoo filter's
// probabilistic fast path.
const psnWindowSize = 1024

// defaultAckPeriod mirrors the original's ackperiod default: emit a NACK
// summary every this-many packets.
const defaultAckPeriod = 100

// SenderStats is one sender's running statistics, named after the
// fields threadfns/per_sender.h tracks.
type SenderStats struct {
	ExpectedSeq uint64
	MaxSeq      uint64
	MinSeq      uint64
	LossCount   uint64
	PktCount    uint64
	OOOCount    uint64
	OOOSum      uint64
	Ack         uint64
	LastAck     uint64
	OldAck      uint64

	window    [psnWindowSize]bool
	windowLo  uint64
	ackPeriod uint64
}

// MetricsSink receives per-sender counter deltas as they accrue (e.g.
// for export to a Prometheus registry). Declared here rather than
// imported so a reporting package can implement it without this package
// depending on one.
type MetricsSink interface {
	AddSenderCounters(sender string, lossDelta, pktDelta uint64)
}

// SenderTable holds one SenderStats per observed sender, with a cuckoo
// filter consulted ahead of the exact window. A filter hit is confirmed
// against the window; every packet is still checked against the window,
// so the filter does not let any packet skip that check.
type SenderTable struct {
	mu      sync.Mutex
	senders map[SenderKey]*SenderStats
	dedup   *cuckoo.Filter
	sink    MetricsSink
}

// NewSenderTable builds an empty table sized for an expected number of
// distinct senders (used only to size the cuckoo filter).
func NewSenderTable(expectedSenders uint) *SenderTable {
	return &SenderTable{
		senders: make(map[SenderKey]*SenderStats),
		dedup:   cuckoo.NewFilter(expectedSenders * psnWindowSize),
	}
}

// Attach wires sink to receive every subsequent Observe's counter
// deltas. Passing a nil sink detaches.
func (t *SenderTable) Attach(sink MetricsSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

func senderLabel(k SenderKey) string {
	return fmt.Sprintf("%s:%d", k.Addr, k.Port)
}

func (t *SenderTable) dedupKey(k SenderKey, seq uint64) []byte {
	b := make([]byte, 0, len(k.Addr)+10)
	b = append(b, k.Addr...)
	b = append(b, byte(k.Port), byte(k.Port>>8))
	for i := 0; i < 8; i++ {
		b = append(b, byte(seq>>(8*i)))
	}
	return b
}

// NackEvent is returned from Observe when ackPeriod packets have been
// seen since the last one, signalling the caller should emit a NACK
// summarising losses since the previous event.
type NackEvent struct {
	Key       SenderKey
	LossCount uint64
	Ack       uint64
	LastAck   uint64
}

// Observe records one received packet with sequence number seq from
// sender k, returning (stats, nackEvent, isDuplicate).
func (t *SenderTable) Observe(k SenderKey, seq uint64) (*SenderStats, *NackEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.senders[k]
	if !ok {
		s = &SenderStats{ExpectedSeq: seq, MinSeq: seq, MaxSeq: seq, ackPeriod: defaultAckPeriod}
		t.senders[k] = s
	}

	dk := t.dedupKey(k, seq)
	if t.dedup.Lookup(dk) {
		if t.isDuplicateExact(s, seq) {
			return s, nil, true
		}
		// cuckoo false positive: fall through to the exact window check.
	} else {
		t.dedup.Insert(dk)
	}

	if t.isDuplicateExact(s, seq) {
		return s, nil, true
	}

	// A packet is out-of-order relative to the running high-water mark,
	// not to the contiguous-received cursor: both the packet that opens
	// a gap (arrives ahead of the run) and the packet that later fills
	// it count as reordering events. Whether the gap ever closes — i.e.
	// whether it becomes permanent loss — is decided separately by the
	// PSN window below, once a slot ages out still unseen.
	first := s.PktCount == 0
	prevMax := s.MaxSeq

	s.PktCount++
	if seq > s.MaxSeq {
		s.MaxSeq = seq
	}
	if seq < s.MinSeq {
		s.MinSeq = seq
	}
	if !first && seq != prevMax+1 {
		s.OOOCount++
		if seq > prevMax {
			s.OOOSum += seq - prevMax
		} else {
			s.OOOSum += prevMax - seq
		}
	}

	lossDelta := t.markSeen(s, seq)
	s.LossCount += lossDelta
	if t.sink != nil {
		t.sink.AddSenderCounters(senderLabel(k), lossDelta, 1)
	}
	if s.ExpectedSeq < s.windowLo {
		s.ExpectedSeq = s.windowLo
	}
	for s.ExpectedSeq < s.windowLo+psnWindowSize && s.window[s.ExpectedSeq%psnWindowSize] {
		s.ExpectedSeq++
	}

	var event *NackEvent
	if s.PktCount%s.ackPeriod == 0 {
		s.OldAck = s.LastAck
		s.LastAck = s.Ack
		s.Ack = s.ExpectedSeq
		event = &NackEvent{Key: k, LossCount: s.LossCount, Ack: s.Ack, LastAck: s.LastAck}
	}
	return s, event, false
}

// isDuplicateExact checks the circular PSN window for an exact repeat.
func (t *SenderTable) isDuplicateExact(s *SenderStats, seq uint64) bool {
	if seq < s.windowLo {
		return true // too old to still be tracked precisely; treat as seen
	}
	if seq >= s.windowLo+psnWindowSize {
		return false
	}
	return s.window[seq%psnWindowSize]
}

// markSeen records seq as received in the circular PSN window, sliding
// the window forward if seq lies beyond it. A slot evicted by that
// slide which was never marked seen represents a packet that is now
// permanently unrecoverable; markSeen returns how many such slots this
// call evicted, which the caller folds into LossCount.
func (t *SenderTable) markSeen(s *SenderStats, seq uint64) uint64 {
	var evicted uint64
	if seq >= s.windowLo+psnWindowSize {
		newLo := seq - psnWindowSize + 1
		for l := s.windowLo; l < newLo; l++ {
			if !s.window[l%psnWindowSize] {
				evicted++
			}
			s.window[l%psnWindowSize] = false
		}
		s.windowLo = newLo
	}
	if seq >= s.windowLo {
		s.window[seq%psnWindowSize] = true
	}
	return evicted
}

// Stats returns a copy of the current stats for k, or false if k has
// never been observed.
func (t *SenderTable) Stats(k SenderKey) (SenderStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.senders[k]
	if !ok {
		return SenderStats{}, false
	}
	cp := *s
	return cp, true
}
