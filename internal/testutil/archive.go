// Package testutil builds ZIP-format fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// Modified is the modification time stamped on every fixture entry.
var Modified = time.Date(2024, time.March, 9, 14, 30, 12, 0, time.UTC)

// CreateRaw copies header fields verbatim, so STORED entries carry the MS-DOS
// form of Modified explicitly.
var (
	dosDate = uint16((Modified.Year()-1980)<<9 | int(Modified.Month())<<5 | Modified.Day())
	dosTime = uint16(Modified.Hour()<<11 | Modified.Minute()<<5 | Modified.Second()/2)
)

// Builder writes a ZIP-format container in memory.
type Builder struct {
	tb        testing.TB
	buf       bytes.Buffer
	zw        *zip.Writer
	dataEnd   int
	prefixLen int
	closed    bool
}

// NewBuilder returns a builder for an empty container.
func NewBuilder(tb testing.TB) *Builder {
	return NewPrefixedBuilder(tb, nil)
}

// NewPrefixedBuilder returns a builder whose output starts with prefix, the
// way a launch script is prepended to an executable archive. Offsets in the
// central directory do not account for the prefix.
func NewPrefixedBuilder(tb testing.TB, prefix []byte) *Builder {
	tb.Helper()
	b := &Builder{tb: tb, prefixLen: len(prefix)}
	b.buf.Write(prefix)
	b.zw = zip.NewWriter(&b.buf)
	return b
}

// Stored adds a STORED entry whose local header carries exact sizes.
func (b *Builder) Stored(name string, data []byte) *Builder {
	b.tb.Helper()
	w, err := b.zw.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
		Modified:           Modified,
		ModifiedTime:       dosTime, //nolint:staticcheck // CreateRaw writes the legacy fields as given
		ModifiedDate:       dosDate, //nolint:staticcheck // CreateRaw writes the legacy fields as given
	})
	if err != nil {
		b.tb.Fatalf("create stored %q: %v", name, err)
	}
	if _, err := w.Write(data); err != nil {
		b.tb.Fatalf("write stored %q: %v", name, err)
	}
	return b
}

// Deflated adds a DEFLATED entry. Sizes and checksum follow the data in a
// data descriptor.
func (b *Builder) Deflated(name string, data []byte) *Builder {
	b.tb.Helper()
	w, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: Modified,
	})
	if err != nil {
		b.tb.Fatalf("create deflated %q: %v", name, err)
	}
	if _, err := w.Write(data); err != nil {
		b.tb.Fatalf("write deflated %q: %v", name, err)
	}
	return b
}

// Dir adds a directory entry. A trailing slash is appended when missing.
func (b *Builder) Dir(name string) *Builder {
	b.tb.Helper()
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	if _, err := b.zw.CreateHeader(&zip.FileHeader{Name: name, Modified: Modified}); err != nil {
		b.tb.Fatalf("create dir %q: %v", name, err)
	}
	return b
}

// Manifest adds a STORED META-INF/MANIFEST.MF built from key/value pairs,
// preceded by its META-INF/ directory.
func (b *Builder) Manifest(pairs ...string) *Builder {
	b.tb.Helper()
	return b.Dir("META-INF/").Stored("META-INF/MANIFEST.MF", ManifestBytes(pairs...))
}

// Bytes finishes the container and returns it, central directory included.
func (b *Builder) Bytes() []byte {
	b.tb.Helper()
	b.finish()
	return bytes.Clone(b.buf.Bytes())
}

// LocalOnly finishes the container and returns only the local headers and
// entry data, as if the central directory had been lost.
func (b *Builder) LocalOnly() []byte {
	b.tb.Helper()
	b.finish()
	return bytes.Clone(b.buf.Bytes()[:b.dataEnd])
}

func (b *Builder) finish() {
	if b.closed {
		return
	}
	b.closed = true
	if err := b.zw.Close(); err != nil {
		b.tb.Fatalf("close: %v", err)
	}
	// The end record has no comment, so it occupies the last 22 bytes and
	// its final fields are the central directory offset and comment length.
	out := b.buf.Bytes()
	if len(out) < b.prefixLen+22 {
		b.tb.Fatalf("container too short for an end record: %d bytes", len(out))
	}
	b.dataEnd = b.prefixLen + int(binary.LittleEndian.Uint32(out[len(out)-6:]))
}
