// Package vbs implements the VBS (Versatile Buffered Storage) multi-disk
// chunk-file abstraction: a recording is striped across one directory
// per mountpoint as a sequence of numbered chunk files, addressed
// through library-managed descriptor ids disjoint from OS file
// descriptors.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package vbs

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/OneOfOne/xxhash"
	"github.com/karrick/godirwalk"
	"github.com/tidwall/buntdb"

	"github.com/jive5ge/jive5ge/internal/nlog"
)

// fdBase puts library-managed descriptor ids in a high range so callers
// can never confuse one with a real OS fd.
const fdBase = 1 << 20

// maxOpenChunkFDs bounds the LRU cache of os.File handles kept open
// across chunk boundaries.
const maxOpenChunkFDs = 64

// diskDirPattern matches the mountpoint directory names Init auto-
// discovers under rootdir, per spec.md §4.6.
var diskDirPattern = regexp.MustCompile(`^disk[0-9]+$`)

type recording struct {
	name       string
	chunks     []chunkInfo // sorted by seq, no duplicate seq values
	totalBytes int64
}

// openFile is one library-level file description: a recording plus a
// read cursor.
type openFile struct {
	rec    *recording
	offset int64
}

// Filesystem is the VBS mountpoint set. One Filesystem instance owns a
// set of directories (one per disk/mountpoint) and the chunk files that
// live in them. Mountpoints are established by Init or Init2; Filesystem
// has none until one of those is called.
type Filesystem struct {
	mu          sync.Mutex
	mountpoints []string

	recordings map[string]*recording
	openFiles  map[int]*openFile
	nextFD     int

	fdCache *fdLRU
	index   *buntdb.DB
}

// NewFilesystem opens the in-memory secondary index that Open fills with
// each scanned recording's chunk table. Read does not query that index;
// it walks the recording's chunk table directly. Callers must call Init
// or Init2 before Open will find anything.
func NewFilesystem() (*Filesystem, error) {
	idx, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("vbs: opening index: %w", err)
	}
	return &Filesystem{
		recordings: make(map[string]*recording),
		openFiles:  make(map[int]*openFile),
		nextFD:     fdBase,
		fdCache:    newFDLRU(maxOpenChunkFDs),
		index:      idx,
	}, nil
}

// Close releases the secondary index and any cached chunk descriptors.
func (fs *Filesystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.fdCache.closeAll()
	return fs.index.Close()
}

// recordingKey derives a stable hash-based index key for a recording
// name, used as the buntdb key prefix for that recording's chunk rows.
func recordingKey(name string) string {
	return strconv.FormatUint(xxhash.Checksum64([]byte(name)), 16)
}

// Init scans rootdir for entries matching disk[0-9]+ and treats each as
// a storage mountpoint.
func (fs *Filesystem) Init(rootdir string) error {
	return fs.initMountpoints(func() ([]string, error) {
		entries, err := godirwalk.ReadDirents(rootdir, nil)
		if err != nil {
			return nil, err
		}
		var mps []string
		for _, e := range entries {
			if e.IsDir() && diskDirPattern.MatchString(e.Name()) {
				mps = append(mps, filepath.Join(rootdir, e.Name()))
			}
		}
		sort.Strings(mps)
		return mps, nil
	})
}

// Init2 takes an explicit list of mountpoint directories instead of
// discovering them under a common root.
func (fs *Filesystem) Init2(rootdirs []string) error {
	return fs.initMountpoints(func() ([]string, error) {
		return append([]string(nil), rootdirs...), nil
	})
}

// initMountpoints replaces the mountpoint set. It is an error to re-init
// while any descriptor is open, per spec.md §4.6.
func (fs *Filesystem) initMountpoints(discover func() ([]string, error)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if len(fs.openFiles) > 0 {
		return fmt.Errorf("vbs: cannot re-init with %d descriptor(s) still open", len(fs.openFiles))
	}
	mps, err := discover()
	if err != nil {
		return fmt.Errorf("vbs: discovering mountpoints: %w", err)
	}
	if len(mps) == 0 {
		return fmt.Errorf("vbs: no mountpoints found")
	}
	fs.mountpoints = mps
	fs.recordings = make(map[string]*recording)
	return nil
}

// Open locates recname's chunk directory on every mountpoint, enumerates
// and stats its chunk files, sorts them by sequence number, and forms
// the cumulative-offset index, returning a library-managed descriptor.
// It fails with ENOENT if no mountpoint has the recording, and with EIO
// if chunk sequence numbers are duplicated.
func (fs *Filesystem) Open(name string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, ok := fs.recordings[name]
	if !ok {
		scanned, err := fs.scanRecording(name)
		if err != nil {
			return 0, err
		}
		rec = scanned
		fs.recordings[name] = rec
	}

	fd := fs.nextFD
	fs.nextFD++
	fs.openFiles[fd] = &openFile{rec: rec}
	return fd, nil
}

// scanRecording implements the open() scan described in spec.md §4.6:
// locate a directory named name on every mountpoint, enumerate its chunk
// files, and build the chunk table.
func (fs *Filesystem) scanRecording(name string) (*recording, error) {
	var chunks []chunkInfo
	found := false

	for _, mp := range fs.mountpoints {
		dir := filepath.Join(mp, name)
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			continue
		}
		found = true

		entries, err := godirwalk.ReadDirents(dir, nil)
		if err != nil {
			return nil, fmt.Errorf("vbs: reading chunk directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			seq, ok := parseChunkSeq(name, e.Name())
			if !ok {
				continue
			}
			chunkFI, err := os.Stat(filepath.Join(dir, e.Name()))
			if err != nil {
				nlog.Warningln("vbs: stat chunk", e.Name(), "in", dir, ":", err)
				continue
			}
			chunks = append(chunks, chunkInfo{seq: seq, mountpoint: mp, size: chunkFI.Size()})
		}
	}

	if !found {
		return nil, fmt.Errorf("vbs: recording %q not found on any mountpoint: %w", name, syscall.ENOENT)
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })
	for i := 1; i < len(chunks); i++ {
		if chunks[i].seq == chunks[i-1].seq {
			return nil, fmt.Errorf("vbs: recording %q has duplicate chunk sequence number %d: %w", name, chunks[i].seq, syscall.EIO)
		}
	}

	var cum int64
	for i := range chunks {
		chunks[i].cumOffset = cum
		cum += chunks[i].size
	}

	rec := &recording{name: name, chunks: chunks, totalBytes: cum}
	if err := fs.rebuildIndex(rec); err != nil {
		return nil, fmt.Errorf("vbs: rebuilding index for %s: %w", name, err)
	}
	return rec, nil
}

// rebuildIndex replaces recording's rows in the buntdb secondary index
// with the freshly scanned chunk table, keyed so a caller can range-scan
// by cumulative offset to find the chunk containing a given byte.
func (fs *Filesystem) rebuildIndex(rec *recording) error {
	key := recordingKey(rec.name)
	return fs.index.Update(func(tx *buntdb.Tx) error {
		var stale []string
		_ = tx.AscendKeys(key+":*", func(k, v string) bool {
			stale = append(stale, k)
			return true
		})
		for _, k := range stale {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		for _, c := range rec.chunks {
			rowKey := fmt.Sprintf("%s:%020d", key, c.cumOffset)
			rowVal := fmt.Sprintf("%d|%s|%d", c.seq, c.mountpoint, c.size)
			if _, _, err := tx.Set(rowKey, rowVal, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// CloseFD releases a descriptor returned by Open. It does not close any
// underlying chunk os.File handles; those remain in the LRU cache for
// reuse by other descriptors on the same recording.
func (fs *Filesystem) CloseFD(fd int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.openFiles[fd]; !ok {
		return fmt.Errorf("vbs: descriptor %d not open", fd)
	}
	delete(fs.openFiles, fd)
	return nil
}

// Lseek moves fd's cursor per the standard whence semantics
// (io.SeekStart/SeekCurrent/SeekEnd). Offsets past the recording's total
// length are clamped to that length, not rejected; only a negative
// result is an error.
func (fs *Filesystem) Lseek(fd int, offset int64, whence int) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	of, ok := fs.openFiles[fd]
	if !ok {
		return 0, fmt.Errorf("vbs: descriptor %d not open", fd)
	}
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = of.offset
	case 2:
		base = of.rec.totalBytes
	default:
		return 0, fmt.Errorf("vbs: invalid whence %d", whence)
	}
	newOff := base + offset
	if newOff < 0 {
		return 0, fmt.Errorf("vbs: seek to negative offset %d", newOff)
	}
	if newOff > of.rec.totalBytes {
		newOff = of.rec.totalBytes
	}
	of.offset = newOff
	return newOff, nil
}

// Read fills buf from fd's current offset, crossing chunk-file
// boundaries transparently, and advances the cursor by the number of
// bytes read.
func (fs *Filesystem) Read(fd int, buf []byte) (int, error) {
	fs.mu.Lock()
	of, ok := fs.openFiles[fd]
	fs.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("vbs: descriptor %d not open", fd)
	}

	total := 0
	for total < len(buf) {
		c, localOff, ok := chunkContaining(of.rec, of.offset)
		if !ok {
			break // end of recording
		}
		f, err := fs.fdCache.open(filepath.Join(c.mountpoint, of.rec.name, chunkFileName(of.rec.name, c.seq)))
		if err != nil {
			return total, err
		}
		want := int64(len(buf) - total)
		avail := c.size - localOff
		if want > avail {
			want = avail
		}
		n, err := f.ReadAt(buf[total:int64(total)+want], localOff)
		total += n
		of.offset += int64(n)
		if err != nil && n == 0 {
			return total, err
		}
		if int64(n) < want {
			break
		}
	}
	return total, nil
}

// chunkContaining returns the chunk holding byte offset and the
// within-chunk offset, or ok=false if offset is at or past the end of
// the recording.
func chunkContaining(rec *recording, offset int64) (chunkInfo, int64, bool) {
	for _, c := range rec.chunks {
		if offset >= c.cumOffset && offset < c.cumOffset+c.size {
			return c, offset - c.cumOffset, true
		}
	}
	return chunkInfo{}, 0, false
}

// fdLRU is a small LRU cache of open chunk os.File handles, capped so a
// recording with thousands of chunks doesn't exhaust the process fd
// table.
type fdLRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type fdEntry struct {
	path string
	f    *os.File
}

func newFDLRU(capacity int) *fdLRU {
	return &fdLRU{capacity: capacity, order: list.New(), entries: make(map[string]*list.Element)}
}

func (c *fdLRU) open(path string) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*fdEntry).f, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vbs: opening chunk %s: %w", path, err)
	}
	el := c.order.PushFront(&fdEntry{path: path, f: f})
	c.entries[path] = el

	for c.order.Len() > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*fdEntry)
		_ = evicted.f.Close()
		delete(c.entries, evicted.path)
		c.order.Remove(back)
	}
	return f, nil
}

func (c *fdLRU) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, el := range c.entries {
		_ = el.Value.(*fdEntry).f.Close()
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
