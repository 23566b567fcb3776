package headersearch

import "testing"

// buildStream returns nFrames*frameLen bytes with Mark5BSyncWord at the
// start of every frame and filler bytes elsewhere.
func buildStream(frameLen, nFrames int) []byte {
	buf := make([]byte, frameLen*nFrames)
	for f := 0; f < nFrames; f++ {
		off := f * frameLen
		copy(buf[off:], Mark5BSyncWord)
		for i := off + len(Mark5BSyncWord); i < off+frameLen; i++ {
			buf[i] = byte(0x55)
		}
	}
	return buf
}

func TestFindsHeaderUnchunked(t *testing.T) {
	const frameLen = 100
	stream := buildStream(frameLen, 5)
	tr := New(Mark5BSyncWord, frameLen, 32)
	if !tr.ContainsHeader(stream) {
		t.Fatal("expected header to be found in the whole stream")
	}
}

func TestArbitraryChunkingFindsEveryHeaderAndOnlyThose(t *testing.T) {
	const frameLen = 64
	const nFrames = 20
	stream := buildStream(frameLen, nFrames)

	for _, chunkSize := range []int{1, 3, 7, 16, 17, 64, 65, 200} {
		tr := New(Mark5BSyncWord, frameLen, 32)
		var expectTrue []bool
		pos := 0
		for pos < len(stream) {
			end := pos + chunkSize
			if end > len(stream) {
				end = len(stream)
			}
			chunk := stream[pos:end]
			intersects := false
			for f := 0; f < nFrames; f++ {
				hs, he := f*frameLen, f*frameLen+len(Mark5BSyncWord)
				if pos < he && end > hs {
					intersects = true
					break
				}
			}
			got := tr.ContainsHeader(chunk)
			expectTrue = append(expectTrue, got)
			if got != intersects {
				t.Fatalf("chunkSize=%d pos=%d: got=%v want=%v", chunkSize, pos, got, intersects)
			}
			pos = end
		}
	}
}

func TestResyncAfterCorruption(t *testing.T) {
	const frameLen = 64
	stream := buildStream(frameLen, 10)
	// Corrupt the sync word of frame 2 so the tracker loses prediction
	// and must rescan to find frame 3's header.
	copy(stream[2*frameLen:], []byte{0, 0, 0, 0})

	tr := New(Mark5BSyncWord, frameLen, 32)
	if !tr.ContainsHeader(stream[:frameLen]) {
		t.Fatal("expected to find header in frame 0")
	}
	// frame 1's header is found, advancing prediction.
	if !tr.ContainsHeader(stream[frameLen : 4*frameLen]) {
		t.Fatal("expected to find frame 3's header despite frame 2's corruption")
	}
}
