package backing

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/meigma/nestzip/internal/sizing"
	"github.com/meigma/nestzip/internal/ziptype"
)

// Range is a contiguous byte range of an Origin.
type Range struct {
	origin *Origin
	base   int64
	length int64
	closed atomic.Bool
}

// Interface compliance.
var _ io.ReaderAt = (*Range)(nil)

// Root returns a Range spanning the whole origin.
func Root(o *Origin) (*Range, error) {
	return newRange(o, 0, o.size)
}

func newRange(o *Origin, base, length int64) (*Range, error) {
	if !sizing.Within(base, length, o.size) {
		return nil, fmt.Errorf("range [%d,+%d) of %d: %w", base, length, o.size, ziptype.ErrRange)
	}
	if err := o.Acquire(); err != nil {
		return nil, err
	}
	return &Range{origin: o, base: base, length: length}, nil
}

// Slice returns a new Range covering [off, off+length) of r.
// The new range holds its own reference and must be closed independently.
func (r *Range) Slice(off, length int64) (*Range, error) {
	if r.closed.Load() {
		return nil, ziptype.ErrClosed
	}
	if !sizing.Within(off, length, r.length) {
		return nil, fmt.Errorf("slice [%d,+%d) of %d: %w", off, length, r.length, ziptype.ErrRange)
	}
	return newRange(r.origin, r.base+off, length)
}

// Share returns a new Range over the same bytes as r.
func (r *Range) Share() (*Range, error) {
	return r.Slice(0, r.length)
}

// Section returns an independent reader over [off, off+length) of r.
func (r *Range) Section(off, length int64) (*io.SectionReader, error) {
	if r.closed.Load() {
		return nil, ziptype.ErrClosed
	}
	if !sizing.Within(off, length, r.length) {
		return nil, fmt.Errorf("section [%d,+%d) of %d: %w", off, length, r.length, ziptype.ErrRange)
	}
	return io.NewSectionReader(r, off, length), nil
}

// ReadAt implements io.ReaderAt relative to the start of the range.
func (r *Range) ReadAt(p []byte, off int64) (int, error) {
	if r.closed.Load() {
		return 0, ziptype.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= r.length {
		return 0, io.EOF
	}
	want := len(p)
	if remaining := r.length - off; int64(want) > remaining {
		p = p[:remaining]
	}
	n, err := r.origin.src.ReadAt(p, r.base+off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	if err == nil && n < want {
		err = io.EOF
	}
	return n, err
}

// Size returns the length of the range.
func (r *Range) Size() int64 {
	return r.length
}

// Base returns the offset of the range within its origin.
func (r *Range) Base() int64 {
	return r.base
}

// Origin returns the shared origin.
func (r *Range) Origin() *Origin {
	return r.origin
}

// Close releases the range's reference. It is safe to call more than once.
func (r *Range) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.origin.Release()
}
