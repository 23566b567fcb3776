package runtime

import "fmt"

// maxScanNameLen mirrors the original's scan-name length limit.
const maxScanNameLen = 63

// Scan describes one recorded scan as catalogued in the on-disk scan
// directory: a name, its byte length, and its index within that
// directory. jive5ge does not write the scan directory itself (that is
// the streamstor SDK's job); this type only models the read-only
// surface a player needs to address a scan by name or index.
type Scan struct {
	Name   string
	Length int64
	Index  int
}

// ScanPointer addresses a byte range within a Scan's recorded extent,
// relative to the scan's own start (not to the underlying user-dir
// extent the scan lives in).
type ScanPointer struct {
	Scan   Scan
	Offset int64
}

// NewScan validates name's length before constructing a Scan.
func NewScan(name string, length int64, index int) (Scan, error) {
	if len(name) == 0 || len(name) > maxScanNameLen {
		return Scan{}, fmt.Errorf("runtime: scan name %q must be 1..%d bytes", name, maxScanNameLen)
	}
	if length < 0 {
		return Scan{}, fmt.Errorf("runtime: scan length must be non-negative, got %d", length)
	}
	return Scan{Name: name, Length: length, Index: index}, nil
}

// Seek returns a ScanPointer at offset within s, rejecting offsets
// outside [0, s.Length].
func (s Scan) Seek(offset int64) (ScanPointer, error) {
	if offset < 0 || offset > s.Length {
		return ScanPointer{}, fmt.Errorf("runtime: offset %d out of range [0,%d] for scan %q", offset, s.Length, s.Name)
	}
	return ScanPointer{Scan: s, Offset: offset}, nil
}

// Remaining reports the bytes left between p's offset and its scan's end.
func (p ScanPointer) Remaining() int64 {
	return p.Scan.Length - p.Offset
}
