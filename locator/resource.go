package locator

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/nestzip"
)

// Content types reported by Resource.ContentType.
const (
	// ArchiveContentType is reported for addresses naming a container.
	ArchiveContentType = "x-java/jar"

	// UnknownContentType is reported when the entry's extension is not known.
	UnknownContentType = "content/unknown"
)

// Resource is a resolved address: an entry, or a container when the address
// ends with "!/".
type Resource struct {
	locator    Locator
	archive    *nestzip.Archive
	entry      *nestzip.Entry
	views      []*nestzip.Archive
	modTime    time.Time
	hasModTime bool

	closeOnce sync.Once
	closeErr  error
}

// Locator returns the parsed address of the resource.
func (r *Resource) Locator() Locator {
	return r.locator
}

// Archive returns the innermost container of the address.
func (r *Resource) Archive() *nestzip.Archive {
	return r.archive
}

// Entry returns the addressed entry, or nil when the resource is a container.
func (r *Resource) Entry() *nestzip.Entry {
	return r.entry
}

// Open returns the resource content. For an entry this is its uncompressed
// content; for a container, the container's bytes. A nested directory has
// no bytes of its own and fails with nestzip.ErrIllegalState.
func (r *Resource) Open() (io.ReadCloser, error) {
	if r.entry != nil {
		return r.archive.Read(r.entry)
	}
	raw, err := r.archive.Raw()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(raw), nil
}

// Size returns the uncompressed size of the entry, or the container size.
func (r *Resource) Size() int64 {
	if r.entry != nil {
		return int64(r.entry.UncompressedSize) //nolint:gosec // bounded by the size limit on read
	}
	return r.archive.Size()
}

// LastModified returns the entry's modification time, or the root's when
// the resource is a container.
func (r *Resource) LastModified() (time.Time, bool) {
	if r.entry != nil {
		return r.entry.Modified, !r.entry.Modified.IsZero()
	}
	return r.modTime, r.hasModTime
}

// ContentType guesses the media type from the entry name's extension.
func (r *Resource) ContentType() string {
	if r.entry == nil {
		return ArchiveContentType
	}
	if ct := mime.TypeByExtension(path.Ext(r.entry.Name)); ct != "" {
		return ct
	}
	return UnknownContentType
}

// Digest returns the SHA-256 digest of the resource content.
func (r *Resource) Digest() (digest.Digest, error) {
	rc, err := r.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	d, err := digest.Canonical.FromReader(rc)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", r.locator, err)
	}
	return d, nil
}

// Close releases every view opened for the resource, innermost first.
// It is safe to call more than once.
func (r *Resource) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		for _, v := range slices.Backward(r.views) {
			if err := v.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
