package inflate

import (
	"bufio"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// Result describes a raw-DEFLATE stream decoded by Measure.
type Result struct {
	// Consumed is the number of compressed bytes making up the stream.
	Consumed int64

	// Size is the number of uncompressed bytes produced.
	Size uint64

	// CRC32 is the IEEE checksum of the uncompressed bytes.
	CRC32 uint32
}

// Measure decodes a raw-DEFLATE stream from r to find where it ends.
// The decoder reads through a byte reader, so it never consumes input past
// the final block.
func Measure(r io.Reader) (Result, error) {
	cr := &countingByteReader{r: bufio.NewReader(r)}
	dec := flate.NewReader(cr)
	defer dec.Close()

	h := crc32.NewIEEE()
	n, err := io.Copy(h, dec)
	if err != nil {
		return Result{}, err
	}
	return Result{Consumed: cr.n, Size: uint64(n), CRC32: h.Sum32()}, nil //nolint:gosec // io.Copy count is non-negative
}

type countingByteReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingByteReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
