package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/meigma/nestzip/internal/backing"
	"github.com/meigma/nestzip/internal/inflate"
	"github.com/meigma/nestzip/internal/manifest"
	"github.com/meigma/nestzip/internal/sizing"
	"github.com/meigma/nestzip/internal/ziptype"
)

// DefaultMaxManifestSize is the default limit on the uncompressed manifest size (1MB).
const DefaultMaxManifestSize = 1 << 20

// Filter maps an entry name to the name it is exposed under.
// Returning false excludes the entry. e always describes the physical entry.
type Filter func(name string, e *ziptype.Entry) (string, bool)

// Index is an ordered, immutable mapping from exposed names to entries.
type Index struct {
	entries  []*ziptype.Entry
	byName   map[string]*ziptype.Entry
	manifest *manifest.Manifest

	// tree maps each directory prefix ("" for the root) to the names of its
	// immediate children, sorted. Subdirectory names keep their trailing "/".
	tree map[string][]string
}

type config struct {
	logger          *slog.Logger
	pool            *inflate.Pool
	maxManifestSize uint64
}

// Option configures Build.
type Option func(*config)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithPool sets the decoder pool used to read the manifest and measure
// entries of unknown size.
func WithPool(pool *inflate.Pool) Option {
	return func(c *config) {
		c.pool = pool
	}
}

// WithMaxManifestSize limits the uncompressed manifest size.
// Set to 0 to disable the limit.
func WithMaxManifestSize(limit uint64) Option {
	return func(c *config) {
		c.maxManifestSize = limit
	}
}

// Build indexes the container stored in r.
func Build(r *backing.Range, filters []Filter, opts ...Option) (*Index, error) {
	cfg := config{maxManifestSize: DefaultMaxManifestSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.pool == nil {
		cfg.pool = inflate.NewPool()
	}

	b := &builder{
		r:       r,
		size:    r.Size(),
		filters: filters,
		cfg:     &cfg,
		idx:     &Index{byName: make(map[string]*ziptype.Entry)},
	}
	if err := b.scan(); err != nil {
		return nil, err
	}
	b.idx.pullManifestForward()
	b.idx.bind()
	cfg.logger.Debug("indexed container",
		"entries", len(b.idx.entries),
		"size", b.size,
		"manifest", b.idx.manifest != nil)
	return b.idx, nil
}

// Lookup returns a copy of the entry exposed under name, falling back to
// name+"/" so directories resolve without their trailing slash.
func (idx *Index) Lookup(name string) (*ziptype.Entry, bool) {
	e, ok := idx.lookup(name)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (idx *Index) lookup(name string) (*ziptype.Entry, bool) {
	if e, ok := idx.byName[name]; ok {
		return e, true
	}
	e, ok := idx.byName[name+"/"]
	return e, ok
}

// Entries returns copies of the entries in index order.
func (idx *Index) Entries() []*ziptype.Entry {
	out := make([]*ziptype.Entry, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.Clone()
	}
	return out
}


// Len returns the number of exposed entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Manifest returns a copy of the parsed manifest, or nil if the container
// has none.
func (idx *Index) Manifest() *manifest.Manifest {
	return idx.manifest.Clone()
}

// Resolve returns the index's own record for an entry this index handed
// out. Fields changed on e by the caller are ignored.
func (idx *Index) Resolve(e *ziptype.Entry) (*ziptype.Entry, bool) {
	if e == nil || e.Owner() != idx || e.Slot() < 0 || e.Slot() >= len(idx.entries) {
		return nil, false
	}
	return idx.entries[e.Slot()], true
}

// bind stamps every entry with the index and its final position and builds
// the directory tree.
func (idx *Index) bind() {
	children := map[string]map[string]struct{}{"": {}}
	link := func(prefix, child string) {
		set, ok := children[prefix]
		if !ok {
			set = make(map[string]struct{})
			children[prefix] = set
		}
		if child != "" {
			set[child] = struct{}{}
		}
	}
	for i, e := range idx.entries {
		bound := e.Bind(idx, i)
		idx.entries[i] = bound
		idx.byName[bound.Name] = bound

		prefix := ""
		rest := bound.Name
		for {
			slash := strings.IndexByte(rest, '/')
			if slash < 0 {
				link(prefix, rest)
				break
			}
			link(prefix, rest[:slash+1])
			prefix += rest[:slash+1]
			rest = rest[slash+1:]
		}
	}

	idx.tree = make(map[string][]string, len(children))
	for prefix, set := range children {
		idx.tree[prefix] = slices.Sorted(maps.Keys(set))
	}
}

// IsDir reports whether prefix, a directory name with its trailing slash or
// "" for the root, is stored or implied by some entry name.
func (idx *Index) IsDir(prefix string) bool {
	_, ok := idx.tree[prefix]
	return ok
}

// Children returns the sorted names of the immediate children of the
// directory prefix. Subdirectory names end in "/".
func (idx *Index) Children(prefix string) []string {
	return slices.Clone(idx.tree[prefix])
}

// pullManifestForward moves the manifest directory and file to the front,
// keeping every other entry in physical order.
func (idx *Index) pullManifestForward() {
	rank := func(e *ziptype.Entry) int {
		switch e.OriginalName() {
		case manifest.Dir:
			return 0
		case manifest.Path:
			return 1
		default:
			return 2
		}
	}
	slices.SortStableFunc(idx.entries, func(a, b *ziptype.Entry) int {
		return rank(a) - rank(b)
	})
}

type builder struct {
	r       *backing.Range
	size    int64
	filters []Filter
	cfg     *config
	idx     *Index

	cd       *centralDir
	cdLoaded bool
}

func (b *builder) central() *centralDir {
	if b.cdLoaded {
		return b.cd
	}
	b.cdLoaded = true
	cd, err := readCentralDir(b.r, b.size)
	if err != nil {
		b.cfg.logger.Debug("ignoring central directory", "error", err)
		return nil
	}
	b.cd = cd
	return cd
}

func (b *builder) scan() error {
	off := int64(0)
	for {
		if off == b.size {
			return nil
		}
		if off+4 > b.size {
			return &ziptype.FormatError{Offset: off, Reason: "truncated record signature"}
		}
		var sigBuf [4]byte
		if err := b.readFull(sigBuf[:], off, ""); err != nil {
			return err
		}
		sig := binary.LittleEndian.Uint32(sigBuf[:])
		if sig != localHeaderSig {
			if terminal(sig) {
				return nil
			}
			if off == 0 {
				if cd := b.central(); cd != nil && cd.prefix > 0 {
					off = cd.prefix
					continue
				}
			}
			return &ziptype.FormatError{Offset: off, Reason: fmt.Sprintf("unexpected signature %#08x", sig)}
		}
		next, err := b.entry(off)
		if err != nil {
			return err
		}
		off = next
	}
}

// entry parses the local header at off and returns the offset of the next record.
func (b *builder) entry(off int64) (int64, error) {
	hdr := make([]byte, localHeaderLen)
	if err := b.readFull(hdr, off, ""); err != nil {
		return 0, err
	}
	h := parseLocalHeader(hdr)

	nameAndExtra := make([]byte, h.nameLen+h.extraLen)
	if err := b.readFull(nameAndExtra, off+localHeaderLen, ""); err != nil {
		return 0, err
	}
	name := string(nameAndExtra[:h.nameLen])
	h.zip64 = applyZip64(nameAndExtra[h.nameLen:], &h.usize, &h.csize, nil)
	modified, ok := extendedModTime(nameAndExtra[h.nameLen:])
	if !ok {
		modified = msDosTime(h.modDate, h.modTime)
	}
	dataOff := off + localHeaderLen + int64(h.nameLen) + int64(h.extraLen)

	if h.flags&flagEncrypted != 0 {
		return 0, &ziptype.FormatError{Name: name, Offset: off, Reason: "encrypted entries are not supported"}
	}
	method := ziptype.Method(h.method)
	if !method.Supported() {
		return 0, &ziptype.FormatError{Name: name, Offset: off, Reason: "unsupported method " + method.String()}
	}

	descriptor := h.flags&flagDataDescriptor != 0
	if descriptor && h.csize == 0 {
		if err := b.deferredSizes(&h, name, off, dataOff, method); err != nil {
			return 0, err
		}
	}

	csize, err := sizing.ToInt64(h.csize, ziptype.ErrSizeOverflow)
	if err != nil || !sizing.Within(dataOff, csize, b.size) {
		return 0, &ziptype.FormatError{Name: name, Offset: off, Reason: "entry data extends past container end"}
	}

	e := &ziptype.Entry{
		Name:             name,
		Method:           method,
		CompressedSize:   h.csize,
		UncompressedSize: h.usize,
		CRC32:            h.crc32,
		DataOffset:       uint64(dataOff), //nolint:gosec // dataOff is non-negative
		HeaderOffset:     uint64(off),     //nolint:gosec // off is non-negative
		Modified:         modified,
	}
	if method == ziptype.Stored && e.CompressedSize != e.UncompressedSize {
		return 0, &ziptype.FormatError{Name: name, Offset: off, Reason: "stored entry sizes differ"}
	}
	if err := b.add(e); err != nil {
		return 0, err
	}

	next := dataOff + csize
	if descriptor {
		zip64 := h.zip64 || h.csize >= uint32max || h.usize >= uint32max
		next, err = b.skipDescriptor(next, name, zip64)
		if err != nil {
			return 0, err
		}
	}
	return next, nil
}

// deferredSizes fills in sizes and checksum for an entry whose local header
// defers them to a trailing data descriptor.
func (b *builder) deferredSizes(h *localHeader, name string, off, dataOff int64, method ziptype.Method) error {
	if cd := b.central(); cd != nil {
		if rec, ok := cd.records[off]; ok && rec.name == name {
			h.csize, h.usize, h.crc32 = rec.csize, rec.usize, rec.crc32
			return nil
		}
	}
	if method != ziptype.Deflated {
		return &ziptype.FormatError{Name: name, Offset: off, Reason: "stored entry size unknown without central directory"}
	}
	res, err := inflate.Measure(io.NewSectionReader(b.r, dataOff, b.size-dataOff))
	if err != nil {
		return &ziptype.FormatError{Name: name, Offset: dataOff, Reason: "cannot determine compressed size", Err: err}
	}
	h.csize = uint64(res.Consumed) //nolint:gosec // consumed is non-negative
	h.usize = res.Size
	h.crc32 = res.CRC32
	return nil
}

// skipDescriptor returns the offset after the data descriptor at off.
func (b *builder) skipDescriptor(off int64, name string, zip64 bool) (int64, error) {
	sizeLen := int64(8)
	if zip64 {
		sizeLen = 16
	}
	length := 4 + sizeLen
	var sig [4]byte
	if err := b.readFull(sig[:], off, name); err != nil {
		return 0, err
	}
	if binary.LittleEndian.Uint32(sig[:]) == dataDescriptorSig {
		length += 4
	}
	if !sizing.Within(off, length, b.size) {
		return 0, &ziptype.FormatError{Name: name, Offset: off, Reason: "truncated data descriptor"}
	}
	return off + length, nil
}

// add parses the manifest if e is one, applies the filter chain and records
// the exposed entry.
func (b *builder) add(e *ziptype.Entry) error {
	if e.Name == manifest.Path && b.idx.manifest == nil {
		m, err := b.readManifest(e)
		if err != nil {
			return err
		}
		b.idx.manifest = m
	}

	name := e.Name
	physical := e.Clone()
	for _, f := range b.filters {
		if f == nil {
			continue
		}
		var ok bool
		name, ok = f(name, physical)
		if !ok {
			return nil
		}
	}

	exposed := e
	if name != e.Name {
		exposed = e.WithName(name)
	}
	if _, dup := b.idx.byName[name]; dup {
		b.cfg.logger.Debug("skipping duplicate entry", "entry", name, "offset", e.HeaderOffset)
		return nil
	}
	b.idx.byName[name] = exposed
	b.idx.entries = append(b.idx.entries, exposed)
	return nil
}

func (b *builder) readManifest(e *ziptype.Entry) (*manifest.Manifest, error) {
	if b.cfg.maxManifestSize > 0 && e.UncompressedSize > b.cfg.maxManifestSize {
		return nil, &ziptype.FormatError{Name: e.Name, Offset: int64(e.HeaderOffset), Reason: "manifest too large"} //nolint:gosec // validated offset
	}
	section := io.NewSectionReader(b.r, int64(e.DataOffset), int64(e.CompressedSize)) //nolint:gosec // validated by caller
	rc, err := b.cfg.pool.Open(section, e)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	limit := e.UncompressedSize
	if b.cfg.maxManifestSize > 0 {
		limit = b.cfg.maxManifestSize
	}
	data, err := sizing.ReadAllWithLimit(rc, limit, ziptype.ErrSizeOverflow)
	if err != nil {
		return nil, &ziptype.FormatError{Name: e.Name, Offset: int64(e.DataOffset), Reason: "unreadable manifest", Err: err} //nolint:gosec // validated offset
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, &ziptype.FormatError{Name: e.Name, Offset: int64(e.DataOffset), Reason: "invalid manifest", Err: err} //nolint:gosec // validated offset
	}
	return m, nil
}

// readFull reads len(p) bytes at off, reporting a truncated container as a
// FormatError naming the entry when known.
func (b *builder) readFull(p []byte, off int64, name string) error {
	if !sizing.Within(off, int64(len(p)), b.size) {
		return &ziptype.FormatError{Name: name, Offset: off, Reason: "truncated header"}
	}
	n, err := b.r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if errors.Is(err, ziptype.ErrClosed) {
		return err
	}
	return &ziptype.FormatError{Name: name, Offset: off, Reason: "read failed", Err: err}
}
