// Package inflate provides pooled DEFLATE decoders and verifying entry readers.
package inflate

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Pool manages reusable raw-DEFLATE decoders to reduce allocation overhead.
type Pool struct {
	pool sync.Pool
}

// NewPool creates an empty decoder pool.
func NewPool() *Pool {
	return &Pool{}
}

// Get returns a decoder reading from r.
// The caller must call the returned release function when done.
func (p *Pool) Get(r io.Reader) (io.ReadCloser, func()) {
	if p == nil {
		dec := flate.NewReader(r)
		return dec, func() { _ = dec.Close() }
	}

	if value := p.pool.Get(); value != nil {
		if dec, ok := value.(io.ReadCloser); ok {
			if resetter, ok := dec.(flate.Resetter); ok && resetter.Reset(r, nil) == nil {
				return dec, p.releaseFunc(dec)
			}
		}
	}

	dec := flate.NewReader(r)
	return dec, p.releaseFunc(dec)
}

func (p *Pool) releaseFunc(dec io.ReadCloser) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = dec.Close() //nolint:errcheck // flate Close only reports prior read errors
			if resetter, ok := dec.(flate.Resetter); ok {
				_ = resetter.Reset(eofReader{}, nil) //nolint:errcheck // clearing state before pool return
			}
			p.pool.Put(dec)
		})
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
func (eofReader) ReadByte() (byte, error)  { return 0, io.EOF }
