package locator

import (
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/meigma/nestzip"
	nzhttp "github.com/meigma/nestzip/http"
	"github.com/meigma/nestzip/internal/blockcache"
)

// Opener opens the physical container named by a locator root.
// A returned source that implements io.Closer is closed once every archive
// derived from it is closed.
type Opener func(root string) (nestzip.ByteSource, error)

// modTimer is implemented by sources that know when their content changed.
type modTimer interface {
	LastModified() (time.Time, bool)
}

// fileSource is a container file opened through afero.
type fileSource struct {
	afero.File
	size    int64
	modTime time.Time
}

func (f *fileSource) Size() int64 {
	return f.size
}

func (f *fileSource) LastModified() (time.Time, bool) {
	return f.modTime, !f.modTime.IsZero()
}

// FileOpener opens roots as paths on fsys.
func FileOpener(fsys afero.Fs) Opener {
	return func(root string) (nestzip.ByteSource, error) {
		f, err := fsys.Open(root)
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
			return nil, fmt.Errorf("open %s: is a directory: %w", root, nestzip.ErrInvalidArgument)
		}
		return &fileSource{File: f, size: info.Size(), modTime: info.ModTime()}, nil
	}
}

// remoteSource is an HTTP container read through a block cache.
type remoteSource struct {
	*blockcache.Reader
	src *nzhttp.Source
}

func (r *remoteSource) LastModified() (time.Time, bool) {
	return r.src.LastModified()
}

// HTTPOpener opens roots as URLs with HTTP range requests. Reads are served
// through an in-memory block cache so that indexing does not issue a request
// per header.
func HTTPOpener(opts ...nzhttp.Option) Opener {
	return func(root string) (nestzip.ByteSource, error) {
		src, err := nzhttp.NewSource(root, opts...)
		if err != nil {
			return nil, err
		}
		cached, err := blockcache.Wrap(src)
		if err != nil {
			_ = src.Close() //nolint:errcheck // the wrap error is more useful
			return nil, err
		}
		return &remoteSource{Reader: cached, src: src}, nil
	}
}
