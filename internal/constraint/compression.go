package constraint

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v3"
)

// MeasureRatio compresses sample with the named scheme and returns the
// uncompressed/compressed byte ratio, for callers that want to derive a
// CompressionSolution's Ratio from real data rather than guessing it.
func MeasureRatio(scheme CompressionScheme, sample []byte) (float64, error) {
	if len(sample) == 0 {
		return 0, fmt.Errorf("constraint: empty sample")
	}
	var compressed int
	switch scheme {
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(sample); err != nil {
			return 0, err
		}
		if err := w.Close(); err != nil {
			return 0, err
		}
		compressed = buf.Len()
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return 0, err
		}
		out := enc.EncodeAll(sample, nil)
		if err := enc.Close(); err != nil {
			return 0, err
		}
		compressed = len(out)
	default:
		return 0, fmt.Errorf("constraint: unknown compression scheme %q", scheme)
	}
	if compressed <= 0 {
		return 0, fmt.Errorf("constraint: compressor produced empty output")
	}
	return float64(len(sample)) / float64(compressed), nil
}
