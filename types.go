package nestzip

import (
	"io"

	"github.com/meigma/nestzip/internal/index"
	"github.com/meigma/nestzip/internal/manifest"
	"github.com/meigma/nestzip/internal/ziptype"
)

// Entry describes one entry of an archive.
type Entry = ziptype.Entry

// Method is the storage method of an entry.
type Method = ziptype.Method

// Storage methods.
const (
	Stored   = ziptype.Stored
	Deflated = ziptype.Deflated
)

// Manifest is a parsed META-INF/MANIFEST.MF.
type Manifest = manifest.Manifest

// Attributes is one section of a manifest. Keys compare case-insensitively.
type Attributes = manifest.Attributes

// ManifestPath is the location of the manifest inside an archive.
const ManifestPath = manifest.Path

// NameFilter maps an entry name to the name it is exposed under. Returning
// false excludes the entry. Filters compose left to right: each one receives
// the name produced by the previous filter, and e always describes the
// physical entry.
type NameFilter = index.Filter

// ByteSource provides random access to a container's bytes.
//
// Implementations exist for local files (via afero) and HTTP range requests.
// A source that also implements io.Closer is closed when the last archive
// derived from it is closed.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}
