package region

import "sync/atomic"

// Counting wraps a Region and counts read and write calls. Used to verify
// how much storage an operation touches.
type Counting struct {
	Region
	reads  atomic.Int64
	writes atomic.Int64
}

// NewCounting wraps r.
func NewCounting(r Region) *Counting {
	return &Counting{Region: r}
}

// ReadAt implements io.ReaderAt.
func (c *Counting) ReadAt(p []byte, off int64) (int, error) {
	c.reads.Add(1)
	return c.Region.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (c *Counting) WriteAt(p []byte, off int64) (int, error) {
	c.writes.Add(1)
	return c.Region.WriteAt(p, off)
}

// Reads returns the number of ReadAt calls since the last Reset.
func (c *Counting) Reads() int64 {
	return c.reads.Load()
}

// Writes returns the number of WriteAt calls since the last Reset.
func (c *Counting) Writes() int64 {
	return c.writes.Load()
}

// Reset zeroes both counters.
func (c *Counting) Reset() {
	c.reads.Store(0)
	c.writes.Store(0)
}

// Failing wraps a Region and fails every access while Fail is set.
type Failing struct {
	Region
	Fail atomic.Bool
}

// ReadAt implements io.ReaderAt.
func (f *Failing) ReadAt(p []byte, off int64) (int, error) {
	if f.Fail.Load() {
		return 0, ErrOutOfRange
	}
	return f.Region.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (f *Failing) WriteAt(p []byte, off int64) (int, error) {
	if f.Fail.Load() {
		return 0, ErrOutOfRange
	}
	return f.Region.WriteAt(p, off)
}
