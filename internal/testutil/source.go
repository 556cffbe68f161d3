package testutil

import (
	"io"
	"sync/atomic"
)

// MockSource is an in-memory byte source that counts how often it is closed.
type MockSource struct {
	data   []byte
	closes atomic.Int32
}

// NewMockSource returns a source backed by data.
func NewMockSource(data []byte) *MockSource {
	return &MockSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockSource) Size() int64 {
	return int64(len(m.data))
}

// Close records the call.
func (m *MockSource) Close() error {
	m.closes.Add(1)
	return nil
}

// Closes returns how many times Close has been called.
func (m *MockSource) Closes() int {
	return int(m.closes.Load())
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockSource) Bytes() []byte {
	return m.data
}
