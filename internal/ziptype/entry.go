package ziptype

import (
	"strings"
	"time"
)

// Entry describes one logical entry in a container.
//
// Entries are immutable once parsed. A name filter that renames an entry
// produces a copy via WithName; the physical name stays available through
// OriginalName.
type Entry struct {
	// Name is the slash-separated entry name as exposed by the container.
	// Directory entries end in "/".
	Name string

	// Method is the storage method of the entry data.
	Method Method

	// CompressedSize is the number of bytes the entry occupies in the container.
	CompressedSize uint64

	// UncompressedSize is the size of the entry content after decompression.
	UncompressedSize uint64

	// CRC32 is the IEEE checksum of the uncompressed content.
	CRC32 uint32

	// DataOffset is the offset of the entry data relative to the start of
	// the owning container's backing range.
	DataOffset uint64

	// HeaderOffset is the offset of the local file header.
	HeaderOffset uint64

	// Modified is the modification time recorded in the local header.
	Modified time.Time

	origName string
	owner    any
	slot     int
}

// IsDir reports whether the entry is a directory marker.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// OriginalName returns the name recorded in the container, before any
// filter renamed the entry.
func (e *Entry) OriginalName() string {
	if e.origName == "" {
		return e.Name
	}
	return e.origName
}

// WithName returns a copy of e exposed under name.
func (e *Entry) WithName(name string) *Entry {
	c := *e
	c.origName = e.OriginalName()
	c.Name = name
	return &c
}

// Clone returns a copy of e. Changing the copy's fields does not affect e.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// Owner returns the token of the index that produced the entry.
func (e *Entry) Owner() any {
	return e.owner
}

// Slot returns the entry's position in the index that produced it.
func (e *Entry) Slot() int {
	return e.slot
}

// Bind returns a copy of e bound to owner at position slot.
func (e *Entry) Bind(owner any, slot int) *Entry {
	c := *e
	c.owner = owner
	c.slot = slot
	return &c
}
