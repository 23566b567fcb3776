package vbs

import "fmt"

// mark6BlockHeaderSize is the per-block header Mark6 prepends inside
// each chunk file, ahead of the block's payload bytes.
const mark6BlockHeaderSize = 16

// mark6FileHeaderSize is the fixed header at the start of every Mark6
// chunk file, distinct from the per-block headers that follow.
const mark6FileHeaderSize = 4096

// Mark6Reader wraps a Filesystem descriptor opened against a Mark6
// recording, translating logical (header-stripped) offsets to the
// physical byte positions Read/Lseek operate on.
type Mark6Reader struct {
	fs        *Filesystem
	fd        int
	blockSize int64 // payload bytes per block, header excluded
}

// NewMark6Reader wraps fd, previously returned by fs.Open, as a Mark6
// logical-offset reader with the given payload block size.
func NewMark6Reader(fs *Filesystem, fd int, blockSize int64) (*Mark6Reader, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("vbs: mark6 block size must be positive, got %d", blockSize)
	}
	return &Mark6Reader{fs: fs, fd: fd, blockSize: blockSize}, nil
}

// physicalOffset maps a logical (payload-only) byte offset to its
// physical offset within the chunk stream, accounting for the file
// header and one block header per block.
func (r *Mark6Reader) physicalOffset(logical int64) int64 {
	blockIdx := logical / r.blockSize
	within := logical % r.blockSize
	return mark6FileHeaderSize + blockIdx*(mark6BlockHeaderSize+r.blockSize) + mark6BlockHeaderSize + within
}

// ReadPayload reads len(buf) logical payload bytes starting at logical
// offset off, skipping block headers transparently. It does not read
// across a chunk-file boundary mid-block; callers sized to blockSize
// never observe that restriction.
func (r *Mark6Reader) ReadPayload(off int64, buf []byte) (int, error) {
	remaining := len(buf)
	total := 0
	for remaining > 0 {
		blockIdx := (off + int64(total)) / r.blockSize
		withinBlock := (off + int64(total)) % r.blockSize
		avail := r.blockSize - withinBlock
		want := int64(remaining)
		if want > avail {
			want = avail
		}
		phys := mark6FileHeaderSize + blockIdx*(mark6BlockHeaderSize+r.blockSize) + mark6BlockHeaderSize + withinBlock
		if _, err := r.fs.Lseek(r.fd, phys, 0); err != nil {
			return total, err
		}
		n, err := r.fs.Read(r.fd, buf[total:int64(total)+want])
		total += n
		remaining -= n
		if err != nil {
			return total, err
		}
		if int64(n) < want {
			break
		}
	}
	return total, nil
}
