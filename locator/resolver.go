package locator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/nestzip"
)

// Resolver opens the containers named by addresses and walks their nested
// segments. Root containers are opened once and shared by every address that
// names them.
//
// A Resolver is safe for concurrent use.
type Resolver struct {
	openers     map[string]Opener
	logger      *slog.Logger
	archiveOpts []nestzip.Option

	mu        sync.Mutex
	roots     map[string]*root
	openGroup singleflight.Group
	closed    bool
}

type root struct {
	archive    *nestzip.Archive
	modTime    time.Time
	hasModTime bool
}

type resolverConfig struct {
	fs          afero.Fs
	openers     map[string]Opener
	logger      *slog.Logger
	archiveOpts []nestzip.Option
}

// Option configures a Resolver.
type Option func(*resolverConfig)

// WithFs sets the filesystem used for file roots (default: the OS filesystem).
func WithFs(fsys afero.Fs) Option {
	return func(c *resolverConfig) {
		c.fs = fsys
	}
}

// WithOpener registers the opener for roots with the given scheme
// ("file", "http" or "https"), replacing the default.
func WithOpener(scheme string, opener Opener) Option {
	return func(c *resolverConfig) {
		c.openers[scheme] = opener
	}
}

// WithLogger sets the logger for resolution tracing. It is also passed to
// every archive the resolver opens unless WithArchiveOptions overrides it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *resolverConfig) {
		c.logger = logger
	}
}

// WithArchiveOptions sets options applied when root archives are opened.
func WithArchiveOptions(opts ...nestzip.Option) Option {
	return func(c *resolverConfig) {
		c.archiveOpts = append(c.archiveOpts, opts...)
	}
}

// NewResolver creates a Resolver. File roots are opened through the OS
// filesystem and http(s) roots with range requests unless overridden.
func NewResolver(opts ...Option) *Resolver {
	cfg := resolverConfig{openers: make(map[string]Opener)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}
	if _, ok := cfg.openers["file"]; !ok {
		cfg.openers["file"] = FileOpener(cfg.fs)
	}
	for _, scheme := range []string{"http", "https"} {
		if _, ok := cfg.openers[scheme]; !ok {
			cfg.openers[scheme] = HTTPOpener()
		}
	}
	archiveOpts := append([]nestzip.Option{nestzip.WithLogger(cfg.logger)}, cfg.archiveOpts...)
	return &Resolver{
		openers:     cfg.openers,
		logger:      cfg.logger,
		archiveOpts: archiveOpts,
		roots:       make(map[string]*root),
	}
}

// Resolve parses address and opens the resource it names.
// The returned resource must be closed.
func (r *Resolver) Resolve(address string) (*Resource, error) {
	loc, err := Parse(address)
	if err != nil {
		return nil, err
	}
	return r.ResolveLocator(loc)
}

// ResolveLocator opens the resource named by loc.
// The returned resource must be closed.
func (r *Resolver) ResolveLocator(loc Locator) (*Resource, error) {
	rt, err := r.root(loc)
	if err != nil {
		return nil, err
	}

	base, err := rt.archive.Clone()
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", loc, err)
	}
	res := &Resource{
		locator:    loc,
		archive:    base,
		views:      []*nestzip.Archive{base},
		modTime:    rt.modTime,
		hasModTime: rt.hasModTime,
	}
	for _, seg := range loc.Containers() {
		e, err := res.archive.Entry(seg)
		if err != nil {
			_ = res.Close() //nolint:errcheck // the lookup error is more useful
			return nil, fmt.Errorf("resolve %s: %w", loc, err)
		}
		nested, err := res.archive.Nested(e)
		if err != nil {
			_ = res.Close() //nolint:errcheck // the nesting error is more useful
			return nil, fmt.Errorf("resolve %s: %w", loc, err)
		}
		res.views = append(res.views, nested)
		res.archive = nested
	}

	if name := loc.Entry(); name != "" {
		e, err := res.archive.Entry(name)
		if err != nil {
			_ = res.Close() //nolint:errcheck // the lookup error is more useful
			return nil, fmt.Errorf("resolve %s: %w", loc, err)
		}
		res.entry = e
	}
	r.logger.Debug("resolved locator", "locator", loc.String(), "archive", res.archive.Name(), "depth", len(res.views)-1)
	return res, nil
}

// root returns the shared archive for loc.Root, opening it on first use.
func (r *Resolver) root(loc Locator) (*root, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nestzip.ErrClosed
	}
	if rt, ok := r.roots[loc.Root]; ok {
		r.mu.Unlock()
		return rt, nil
	}
	r.mu.Unlock()

	result, err, _ := r.openGroup.Do(loc.Root, func() (any, error) {
		r.mu.Lock()
		if rt, ok := r.roots[loc.Root]; ok {
			r.mu.Unlock()
			return rt, nil
		}
		r.mu.Unlock()

		rt, err := r.openRoot(loc)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = rt.archive.Close() //nolint:errcheck // resolver closed concurrently
			return nil, nestzip.ErrClosed
		}
		r.roots[loc.Root] = rt
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*root), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (r *Resolver) openRoot(loc Locator) (*root, error) {
	opener, ok := r.openers[loc.Scheme()]
	if !ok {
		return nil, fmt.Errorf("%w: no opener for scheme %q", ErrMalformedLocator, loc.Scheme())
	}
	src, err := opener(loc.Root)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc.Root, err)
	}
	rt := &root{}
	if mt, ok := src.(modTimer); ok {
		rt.modTime, rt.hasModTime = mt.LastModified()
	}
	rt.archive, err = nestzip.Open(src, loc.Root, r.archiveOpts...)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("opened root", "root", loc.Root, "scheme", loc.Scheme(), "entries", rt.archive.Len())
	return rt, nil
}

// Close releases the resolver's references to its root containers.
// Resources resolved earlier stay usable until they are closed.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for name, rt := range r.roots {
		if err := rt.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	clear(r.roots)
	return errors.Join(errs...)
}
