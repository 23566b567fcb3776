package vbs

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// StripeWriter splits a block of bytes into dataShards data shards plus
// parityShards parity shards, one per mountpoint, so a recording written
// across the mountpoints Init/Init2 established can tolerate the loss of
// up to parityShards mountpoints. Striping is independent of Init/Init2,
// which only establish the mountpoint set; a caller writing a striped
// recording picks shard placement itself. This is an enrichment beyond
// the base VBS layer (see DESIGN.md): spec.md's chunk model assumes
// reliable disks.
type StripeWriter struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

// NewStripeWriter builds a StripeWriter for the given shard counts.
func NewStripeWriter(dataShards, parityShards int) (*StripeWriter, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("vbs: constructing reed-solomon encoder: %w", err)
	}
	return &StripeWriter{enc: enc, dataShards: dataShards, parityShards: parityShards}, nil
}

// Split encodes block into dataShards+parityShards equal-length shards
// ready to be written one-per-mountpoint.
func (w *StripeWriter) Split(block []byte) ([][]byte, error) {
	shards, err := w.enc.Split(block)
	if err != nil {
		return nil, fmt.Errorf("vbs: splitting block into shards: %w", err)
	}
	if err := w.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("vbs: encoding parity shards: %w", err)
	}
	return shards, nil
}

// Reconstruct fills in any nil shards in place, given at least
// dataShards non-nil entries.
func (w *StripeWriter) Reconstruct(shards [][]byte) error {
	ok, err := w.enc.Verify(shards)
	if err == nil && ok {
		return nil
	}
	if err := w.enc.Reconstruct(shards); err != nil {
		return fmt.Errorf("vbs: reconstructing missing shards: %w", err)
	}
	return nil
}
