package nestzip

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/meigma/nestzip/internal/backing"
	"github.com/meigma/nestzip/internal/index"
	"github.com/meigma/nestzip/internal/sizing"
)

// separator joins a container's display name to the entry it nests.
const separator = "!/"

// readFileHint caps the buffer ReadFile preallocates from an entry's
// recorded size.
const readFileHint = 64 << 10

// Archive is a read-only view of a ZIP-format container.
//
// An Archive is safe for concurrent use. Archives derived with Nested or
// Filtered are independent views: each must be closed on its own, and
// closing one does not affect the others.
//
// Name, String, Locator, Size and Len describe the view and stay valid after
// Close. Every other method fails with ErrClosed once the view is closed.
type Archive struct {
	mu     sync.Mutex
	r      *backing.Range
	idx    *index.Index
	name   string
	cfg    *config
	closed bool
	dir    bool

	// filters is the chain this view was indexed with, reused by Filtered
	// and by directory views.
	filters []NameFilter
}

// Open indexes the container readable from src.
//
// The name is used for display and as the root of nested locators. If src
// implements io.Closer it is closed once the returned archive and every
// archive derived from it are closed, or immediately if indexing fails.
func Open(src ByteSource, name string, opts ...Option) (*Archive, error) {
	if src == nil {
		return nil, fmt.Errorf("open %s: nil source: %w", name, ErrInvalidArgument)
	}
	cfg := newConfig(opts)
	closer, _ := src.(io.Closer)
	r, err := backing.Root(backing.NewOrigin(src, src.Size(), closer))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return newArchive(r, name, cfg.filters, cfg)
}

// OpenFile opens and indexes the container at path.
// The file is read through the filesystem set by WithFs.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	cfg := newConfig(opts)
	f, err := cfg.fs.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: path, Err: ErrInvalidArgument}
	}
	r, err := backing.Root(backing.NewOrigin(f, info.Size(), f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return newArchive(r, path, cfg.filters, cfg)
}

// newArchive indexes r. It takes ownership of r and closes it on failure.
func newArchive(r *backing.Range, name string, filters []NameFilter, cfg *config) (*Archive, error) {
	idx, err := index.Build(r, filters,
		index.WithLogger(cfg.logger.With("archive", name)),
		index.WithPool(cfg.pool),
	)
	if err != nil {
		_ = r.Close() //nolint:errcheck // the index error is more useful
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	cfg.logger.Debug("opened archive", "archive", name, "entries", idx.Len(), "size", r.Size())
	return &Archive{
		r:       r,
		idx:     idx,
		name:    name,
		cfg:     cfg,
		filters: filters,
	}, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.cfg == nil || a.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.cfg.logger
}

// Name returns the display name of the archive.
func (a *Archive) Name() string {
	return a.name
}

// String returns the display name of the archive.
func (a *Archive) String() string {
	return a.name
}

// Locator returns the address of the archive's root, name + "!/".
func (a *Archive) Locator() string {
	return a.name + separator
}

// Size returns the size of the archive's backing range in bytes.
func (a *Archive) Size() int64 {
	return a.r.Size()
}

// Len returns the number of entries in the archive.
func (a *Archive) Len() int {
	return a.idx.Len()
}

// Entry returns a copy of the entry exposed under name. A directory may be
// named with or without its trailing slash.
func (a *Archive) Entry(name string) (*Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &fs.PathError{Op: "entry", Path: name, Err: ErrClosed}
	}
	e, ok := a.idx.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "entry", Path: name, Err: ErrNotFound}
	}
	return e, nil
}

// Entries returns copies of the archive's entries in index order.
// Each call returns a fresh slice.
func (a *Archive) Entries() ([]*Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.idx.Entries(), nil
}

// Manifest returns a copy of the archive's manifest, or nil if it has none.
//
// The manifest is read from META-INF/MANIFEST.MF even when a filter hides
// that entry.
func (a *Archive) Manifest() (*Manifest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.idx.Manifest(), nil
}

// Read opens the content of e, which must have been returned by this archive.
//
// STORED entries are read directly from the backing range. DEFLATED entries
// are inflated. Both are verified against the recorded size and CRC-32 when
// the reader reaches EOF; a mismatch fails with ErrCorruptEntry.
func (a *Archive) Read(e *Entry) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.read(e)
}

func (a *Archive) read(given *Entry) (io.ReadCloser, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if given == nil {
		return nil, fmt.Errorf("read: nil entry: %w", ErrInvalidArgument)
	}
	name := given.Name
	e, ok := a.idx.Resolve(given)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fmt.Errorf("entry not in %s: %w", a.name, ErrInvalidArgument)}
	}
	if a.cfg.maxEntrySize > 0 && e.UncompressedSize > a.cfg.maxEntrySize {
		return nil, &fs.PathError{Op: "read", Path: e.Name, Err: ErrSizeOverflow}
	}
	off, err := sizing.ToInt64(e.DataOffset, ErrSizeOverflow)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: e.Name, Err: err}
	}
	length, err := sizing.ToInt64(e.CompressedSize, ErrSizeOverflow)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: e.Name, Err: err}
	}
	section, err := a.r.Section(off, length)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: e.Name, Err: err}
	}
	rc, err := a.cfg.pool.Open(section, e)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: e.Name, Err: err}
	}
	a.log().Debug("reading entry", "archive", a.name, "entry", e.Name, "method", e.Method.String(), "size", e.UncompressedSize)
	return rc, nil
}

// ReadFile reads and returns the entire content of the named entry.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: ErrClosed}
	}
	e, ok := a.idx.Lookup(name)
	if !ok {
		a.mu.Unlock()
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: ErrNotFound}
	}
	rc, err := a.read(e)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The recorded size is only a hint; the buffer grows as content arrives.
	buf := bytes.NewBuffer(make([]byte, 0, int(min(e.UncompressedSize, readFileHint))))
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return buf.Bytes(), nil
}

// Nested opens e as a container of its own.
//
// A directory entry yields a view over the same bytes exposing only the
// entries below the directory, with the directory prefix removed from their
// names. A file entry must be STORED; it yields a view over exactly the
// entry's bytes, indexed afresh with filters. Opening a DEFLATED file entry
// fails with ErrIllegalState.
//
// The returned archive must be closed independently of a.
func (a *Archive) Nested(e *Entry, filters ...NameFilter) (*Archive, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if e == nil {
		return nil, fmt.Errorf("nested: nil entry: %w", ErrInvalidArgument)
	}
	canonical, ok := a.idx.Resolve(e)
	if !ok {
		return nil, &fs.PathError{Op: "nested", Path: e.Name, Err: fmt.Errorf("entry not in %s: %w", a.name, ErrInvalidArgument)}
	}
	e = canonical
	if e.IsDir() {
		return a.nestedDir(e, filters)
	}
	return a.nestedFile(e, filters)
}

func (a *Archive) nestedDir(e *Entry, filters []NameFilter) (*Archive, error) {
	r, err := a.r.Share()
	if err != nil {
		return nil, err
	}
	chain := make([]NameFilter, 0, len(a.filters)+1+len(filters))
	chain = append(chain, a.filters...)
	chain = append(chain, StripPrefix(e.Name))
	chain = append(chain, filters...)
	name := a.name + separator + strings.TrimSuffix(e.Name, "/")
	a.log().Debug("opening nested directory", "archive", a.name, "entry", e.Name)
	nested, err := newArchive(r, name, chain, a.cfg)
	if err != nil {
		return nil, err
	}
	nested.dir = true
	return nested, nil
}

func (a *Archive) nestedFile(e *Entry, filters []NameFilter) (*Archive, error) {
	if e.Method != Stored {
		return nil, &fs.PathError{
			Op:   "nested",
			Path: e.Name,
			Err:  fmt.Errorf("cannot open nested compressed entry (method %s): %w", e.Method, ErrIllegalState),
		}
	}
	off, err := sizing.ToInt64(e.DataOffset, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	length, err := sizing.ToInt64(e.CompressedSize, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	r, err := a.r.Slice(off, length)
	if err != nil {
		return nil, &fs.PathError{Op: "nested", Path: e.Name, Err: err}
	}
	a.log().Debug("opening nested archive", "archive", a.name, "entry", e.Name, "offset", off, "size", length)
	return newArchive(r, a.name+separator+e.Name, filters, a.cfg)
}

// Clone returns an independent view sharing a's index and backing file.
// Entries of a are valid in the clone.
func (a *Archive) Clone() (*Archive, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	r, err := a.r.Share()
	if err != nil {
		return nil, err
	}
	return &Archive{
		r:       r,
		idx:     a.idx,
		name:    a.name,
		cfg:     a.cfg,
		dir:     a.dir,
		filters: a.filters,
	}, nil
}

// Raw returns a reader over the container's own bytes. A view of a nested
// directory has no bytes of its own and fails with ErrIllegalState.
func (a *Archive) Raw() (*io.SectionReader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if a.dir {
		return nil, fmt.Errorf("raw %s: directory view: %w", a.name, ErrIllegalState)
	}
	return a.r.Section(0, a.r.Size())
}

// Filtered returns a view over the same bytes and display name, indexed with
// the archive's own filters followed by filters.
//
// The returned archive must be closed independently of a.
func (a *Archive) Filtered(filters ...NameFilter) (*Archive, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	r, err := a.r.Share()
	if err != nil {
		return nil, err
	}
	chain := make([]NameFilter, 0, len(a.filters)+len(filters))
	chain = append(chain, a.filters...)
	chain = append(chain, filters...)
	filtered, err := newArchive(r, a.name, chain, a.cfg)
	if err != nil {
		return nil, err
	}
	filtered.dir = a.dir
	return filtered, nil
}

// Close releases the archive's reference to its backing file.
// It is safe to call more than once. The descriptive accessors keep
// reporting the values the view had when it was open.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.log().Debug("closing archive", "archive", a.name)
	return a.r.Close()
}
