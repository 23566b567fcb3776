// Package headersearch implements the stateful sync-word tracker used to
// avoid dropping chunks that contain frame-header bytes when the network
// stage is forced to shed load.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package headersearch

// Format names the supported VLBI frame formats; the matching logic
// itself is format-agnostic (it only needs a sync word and a frame
// length) but callers select defaults via these constants.
type Format int

const (
	FormatMark4 Format = iota
	FormatMark5B
	FormatVDIF
)

// Known sync-word patterns. Mark4 uses the all-ones sync pattern
// replicated per track; Mark5B uses a fixed 32-bit magic; VDIF frames
// carry no fixed sync word, so a caller-supplied pattern (often derived
// from the invariant bits of the VDIF header) is required instead.
var (
	Mark4SyncWord  = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	Mark5BSyncWord = []byte{0xed, 0xde, 0xad, 0xab}
)

// Tracker keeps search state between calls: callers are expected to feed
// sequential, non-overlapping chunks from one stream. It resynchronizes
// whenever a header isn't found where predicted.
type Tracker struct {
	syncWord []byte
	frameLen int
	nrTracks int

	bytesToNext int // countdown to the next expected header start
	bytesFound  int // sync-word bytes matched so far at the current candidate position
}

// New creates a tracker for the given sync word and frame length
// (the stride, in bytes, between consecutive header starts).
func New(syncWord []byte, frameLen, nrTracks int) *Tracker {
	sw := make([]byte, len(syncWord))
	copy(sw, syncWord)
	return &Tracker{syncWord: sw, frameLen: frameLen, nrTracks: nrTracks}
}

// Reset reconfigures the tracker for a (possibly new) number of tracks
// and drops any in-progress synchronisation state.
func (t *Tracker) Reset(nrTracks int) {
	t.nrTracks = nrTracks
	t.bytesToNext = 0
	t.bytesFound = 0
}

// NrTracks reports the configured track count.
func (t *Tracker) NrTracks() int { return t.nrTracks }

// ContainsHeader returns true if buf contains all or part of a frame
// header, carrying state across calls so a sync word split across a
// buffer boundary is still recognised. On a mismatch it resynchronises
// by scanning forward for the sync word instead of trusting the stale
// prediction.
func (t *Tracker) ContainsHeader(buf []byte) bool {
	found := false
	// pending is set while this buffer holds bytes of a sync-word match
	// that is neither completed nor refuted yet (it may finish in the
	// next buffer).
	pending := false
	n := len(buf)
	i := 0
	for i < n {
		if t.bytesToNext > 0 {
			skip := t.bytesToNext
			if skip > n-i {
				skip = n - i
			}
			i += skip
			t.bytesToNext -= skip
			continue
		}
		if buf[i] == t.syncWord[t.bytesFound] {
			t.bytesFound++
			i++
			pending = true
			if t.bytesFound == len(t.syncWord) {
				found = true
				pending = false
				t.bytesFound = 0
				t.bytesToNext = t.frameLen - len(t.syncWord)
				if t.bytesToNext < 0 {
					t.bytesToNext = 0
				}
			}
			continue
		}
		if t.bytesFound > 0 {
			// lost sync mid-match; retry the match at the same byte.
			t.bytesFound = 0
			pending = false
			continue
		}
		i++
	}
	return found || pending
}
