// Package region provides fixed-size byte-addressable storage areas: the
// abstraction the log store and the configuration block are written against.
package region

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrOutOfRange is returned for accesses that fall outside the region.
var ErrOutOfRange = errors.New("region: access out of range")

// Region is a fixed-capacity byte-addressable store.
type Region interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

func checkRange(r Region, off int64, n int) error {
	if off < 0 || n < 0 || off+int64(n) > r.Size() {
		return fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, off, n, r.Size())
	}
	return nil
}

// Memory is a Region backed by a byte slice.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns a zero-filled in-memory region of the given size.
func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size implements Region.
func (m *Memory) Size() int64 {
	return int64(len(m.data))
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(m, off, len(p)); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copy(p, m.data[off:]), nil
}

// WriteAt implements io.WriterAt.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(m, off, len(p)); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(m.data[off:], p), nil
}

// Bytes returns a copy of the region contents.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// File is a Region backed by a file of fixed size.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens or creates path and sizes it to exactly size bytes. New
// space reads as zeros.
func OpenFile(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open region file %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat region file %s: %w", path, err)
	}
	if fi.Size() != size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not size region file %s: %w", path, err)
		}
	}
	return &File{f: f, size: size}, nil
}

// Size implements Region.
func (r *File) Size() int64 {
	return r.size
}

// ReadAt implements io.ReaderAt.
func (r *File) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(r, off, len(p)); err != nil {
		return 0, err
	}
	return r.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (r *File) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(r, off, len(p)); err != nil {
		return 0, err
	}
	return r.f.WriteAt(p, off)
}

// Sync flushes the file to stable storage.
func (r *File) Sync() error {
	return r.f.Sync()
}

// Close closes the underlying file.
func (r *File) Close() error {
	return r.f.Close()
}

// Sub is a window onto part of a parent region.
type Sub struct {
	parent Region
	base   int64
	size   int64
}

// NewSub returns the window [base, base+size) of parent.
func NewSub(parent Region, base, size int64) (*Sub, error) {
	if base < 0 || size < 0 || base+size > parent.Size() {
		return nil, fmt.Errorf("%w: window %d+%d of %d", ErrOutOfRange, base, size, parent.Size())
	}
	return &Sub{parent: parent, base: base, size: size}, nil
}

// Size implements Region.
func (s *Sub) Size() int64 {
	return s.size
}

// ReadAt implements io.ReaderAt.
func (s *Sub) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(s, off, len(p)); err != nil {
		return 0, err
	}
	return s.parent.ReadAt(p, s.base+off)
}

// WriteAt implements io.WriterAt.
func (s *Sub) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(s, off, len(p)); err != nil {
		return 0, err
	}
	return s.parent.WriteAt(p, s.base+off)
}
