// Package backing provides reference-counted, range-addressable views over a
// single physical byte source.
//
// An Origin owns the physical handle. Every Range acquires one reference on
// its Origin and releases it on Close; the handle is closed exactly once, when
// the last Range is released. Ranges are read-only and each ReadAt or Section
// call is an independent cursor, so sibling ranges may be read concurrently.
package backing

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/meigma/nestzip/internal/ziptype"
)

// released marks an origin whose physical handle has been closed.
const released = -1

// Origin is a shared physical byte source with an atomic reference count.
type Origin struct {
	src    io.ReaderAt
	size   int64
	closer io.Closer
	refs   atomic.Int32
	closes atomic.Int32
}

// NewOrigin wraps src. closer may be nil when the source needs no cleanup.
// The returned origin has no references; the first Acquire takes ownership.
func NewOrigin(src io.ReaderAt, size int64, closer io.Closer) *Origin {
	return &Origin{src: src, size: size, closer: closer}
}

// Size returns the total size of the physical source.
func (o *Origin) Size() int64 {
	return o.size
}

// Refs returns the number of live references. It is negative once the
// physical handle has been released.
func (o *Origin) Refs() int32 {
	return o.refs.Load()
}

// Closes returns how many times the physical handle was closed.
func (o *Origin) Closes() int32 {
	return o.closes.Load()
}

// Acquire takes a reference. It fails with ErrClosed after the last
// reference has been released.
func (o *Origin) Acquire() error {
	for {
		n := o.refs.Load()
		if n == released {
			return ziptype.ErrClosed
		}
		if o.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference, closing the physical handle when it was the last.
func (o *Origin) Release() error {
	for {
		n := o.refs.Load()
		if n <= 0 {
			return fmt.Errorf("release origin: %w", ziptype.ErrClosed)
		}
		next := n - 1
		if next == 0 {
			next = released
		}
		if !o.refs.CompareAndSwap(n, next) {
			continue
		}
		if next != released {
			return nil
		}
		o.closes.Add(1)
		if o.closer == nil {
			return nil
		}
		return o.closer.Close()
	}
}
