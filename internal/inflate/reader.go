package inflate

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/meigma/nestzip/internal/ziptype"
)

// Open returns a reader producing the uncompressed content of e from raw,
// which must yield exactly the entry's stored bytes.
//
// The reader verifies the uncompressed size and CRC-32 when it reaches EOF
// and reports ErrCorruptEntry on mismatch or on undecodable input.
func (p *Pool) Open(raw io.Reader, e *ziptype.Entry) (io.ReadCloser, error) {
	v := &verifyingReader{
		name: e.Name,
		want: e.UncompressedSize,
		crc:  e.CRC32,
		hash: crc32.NewIEEE(),
	}
	switch e.Method {
	case ziptype.Stored:
		v.r = raw
		v.release = func() {}
	case ziptype.Deflated:
		v.r, v.release = p.Get(&patchReader{r: raw})
	default:
		return nil, fmt.Errorf("open %s: %w: unsupported method %s", e.Name, ziptype.ErrIllegalState, e.Method)
	}
	return v, nil
}

type verifyingReader struct {
	r       io.Reader
	release func()
	name    string
	want    uint64
	got     uint64
	crc     uint32
	hash    hash.Hash32
	err     error
	closed  bool
}

// Remaining returns the number of uncompressed bytes not yet read.
func (v *verifyingReader) Remaining() uint64 {
	if v.got >= v.want {
		return 0
	}
	return v.want - v.got
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	if v.closed {
		return 0, ziptype.ErrClosed
	}
	if v.err != nil {
		return 0, v.err
	}
	n, err := v.r.Read(p)
	if n > 0 {
		_, _ = v.hash.Write(p[:n]) //nolint:errcheck // hash writes never fail
		v.got += uint64(n)         //nolint:gosec // n is non-negative per io.Reader
		if v.got > v.want {
			v.err = v.corrupt(fmt.Errorf("content exceeds %d bytes", v.want))
			return n, v.err
		}
	}
	switch {
	case err == nil:
		return n, nil
	case err == io.EOF:
		if v.got != v.want {
			v.err = v.corrupt(fmt.Errorf("short content (%d of %d bytes)", v.got, v.want))
			return n, v.err
		}
		if sum := v.hash.Sum32(); sum != v.crc {
			v.err = v.corrupt(fmt.Errorf("checksum %08x, want %08x", sum, v.crc))
			return n, v.err
		}
		v.err = io.EOF
		return n, io.EOF
	case errors.Is(err, ziptype.ErrClosed):
		v.err = err
		return n, err
	default:
		v.err = v.corrupt(err)
		return n, v.err
	}
}

func (v *verifyingReader) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.release()
	return nil
}

func (v *verifyingReader) corrupt(err error) error {
	return fmt.Errorf("read %s: %w: %v", v.name, ziptype.ErrCorruptEntry, err)
}
