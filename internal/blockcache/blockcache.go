// Package blockcache caches fixed-size blocks of a random-access source in
// memory.
//
// Indexing a container issues many small reads at scattered offsets. Over a
// remote source each read is a round trip, so reads are widened to whole
// blocks and recently used blocks are kept.
package blockcache

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultBlockSize is the default block size (64KB).
const DefaultBlockSize int64 = 64 << 10

// DefaultMaxBlocks is the default number of cached blocks.
const DefaultMaxBlocks = 64

// DefaultMaxBlocksPerRead caps cached blocks per ReadAt to avoid caching
// large sequential reads.
const DefaultMaxBlocksPerRead = 4

// Source provides random access to data for block caching.
type Source interface {
	io.ReaderAt
	Size() int64
}

type config struct {
	blockSize        int64
	maxBlocks        int
	maxBlocksPerRead int
}

// Option configures a Reader.
type Option func(*config)

// WithBlockSize sets the block size used for caching.
func WithBlockSize(n int64) Option {
	return func(c *config) {
		c.blockSize = n
	}
}

// WithMaxBlocks sets how many blocks are retained.
func WithMaxBlocks(n int) Option {
	return func(c *config) {
		c.maxBlocks = n
	}
}

// WithMaxBlocksPerRead bypasses the cache when a ReadAt spans more than n
// blocks. Values <= 0 disable the limit.
func WithMaxBlocksPerRead(n int) Option {
	return func(c *config) {
		c.maxBlocksPerRead = n
	}
}

// Reader wraps a Source with block-level caching. It is safe for concurrent
// use; concurrent misses on the same block are fetched once.
type Reader struct {
	src              Source
	size             int64
	blockSize        int64
	maxBlocksPerRead int
	blocks           *lru.Cache[int64, []byte]
	fetchGroup       singleflight.Group
}

// Wrap returns a Reader caching reads from src.
func Wrap(src Source, opts ...Option) (*Reader, error) {
	cfg := config{
		blockSize:        DefaultBlockSize,
		maxBlocks:        DefaultMaxBlocks,
		maxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.blockSize <= 0 {
		return nil, fmt.Errorf("block cache: invalid block size %d", cfg.blockSize)
	}
	blocks, err := lru.New[int64, []byte](max(cfg.maxBlocks, 1))
	if err != nil {
		return nil, fmt.Errorf("block cache: %w", err)
	}
	return &Reader{
		src:              src,
		size:             src.Size(),
		blockSize:        cfg.blockSize,
		maxBlocksPerRead: cfg.maxBlocksPerRead,
		blocks:           blocks,
	}, nil
}

// Size returns the size of the underlying source.
func (r *Reader) Size() int64 {
	return r.size
}

// Cached returns the number of blocks currently held.
func (r *Reader) Cached() int {
	return r.blocks.Len()
}

// Unwrap returns the underlying source.
func (r *Reader) Unwrap() Source {
	return r.src
}

// ReadAt implements io.ReaderAt, serving whole blocks from the cache.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	expected := int64(len(p))
	if off+expected > r.size {
		expected = r.size - off
	}

	startBlock := off / r.blockSize
	endBlock := (off + expected - 1) / r.blockSize
	if r.maxBlocksPerRead > 0 && endBlock-startBlock+1 > int64(r.maxBlocksPerRead) {
		return r.src.ReadAt(p, off)
	}

	var n int64
	for idx := startBlock; idx <= endBlock; idx++ {
		blockStart := idx * r.blockSize
		blockEnd := min(blockStart+r.blockSize, r.size)

		data, err := r.block(idx, blockStart, blockEnd-blockStart)
		if err != nil {
			return int(n), err
		}

		copyStart := max(off, blockStart)
		copyEnd := min(off+expected, blockEnd)
		n += int64(copy(p[copyStart-off:copyEnd-off], data[copyStart-blockStart:copyEnd-blockStart]))
	}

	if expected < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// Close closes the underlying source if it implements io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Reader) block(idx, off, length int64) ([]byte, error) {
	if data, ok := r.blocks.Get(idx); ok {
		return data, nil
	}
	result, err, _ := r.fetchGroup.Do(strconv.FormatInt(idx, 10), func() (any, error) {
		if data, ok := r.blocks.Get(idx); ok {
			return data, nil
		}
		buf := make([]byte, length)
		n, err := r.src.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if int64(n) != length {
			return nil, io.ErrUnexpectedEOF
		}
		r.blocks.Add(idx, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}
