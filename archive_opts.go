package nestzip

import (
	"log/slog"

	"github.com/spf13/afero"

	"github.com/meigma/nestzip/internal/inflate"
)

// DefaultMaxEntrySize is the default limit on an entry's uncompressed size (1GB).
const DefaultMaxEntrySize = 1 << 30

// Option configures an Archive.
type Option func(*config)

type config struct {
	filters      []NameFilter
	logger       *slog.Logger
	maxEntrySize uint64
	fs           afero.Fs
	pool         *inflate.Pool
}

func newConfig(opts []Option) *config {
	cfg := &config{maxEntrySize: DefaultMaxEntrySize}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}
	if cfg.pool == nil {
		cfg.pool = inflate.NewPool()
	}
	return cfg
}

// WithFilters sets the name filters applied when the archive is indexed.
func WithFilters(filters ...NameFilter) Option {
	return func(c *config) {
		c.filters = append(c.filters, filters...)
	}
}

// WithLogger sets the logger for diagnostic output.
// Derived archives inherit it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxEntrySize limits the uncompressed size of entries that can be read.
// Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(c *config) {
		c.maxEntrySize = limit
	}
}

// WithFs sets the filesystem OpenFile reads from (default: the OS filesystem).
func WithFs(fsys afero.Fs) Option {
	return func(c *config) {
		c.fs = fsys
	}
}
