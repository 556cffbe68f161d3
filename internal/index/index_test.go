package index

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip/internal/backing"
	"github.com/meigma/nestzip/internal/manifest"
	"github.com/meigma/nestzip/internal/testutil"
	"github.com/meigma/nestzip/internal/ziptype"
)

func rangeOf(t *testing.T, data []byte) *backing.Range {
	t.Helper()
	src := testutil.NewMockSource(data)
	r, err := backing.Root(backing.NewOrigin(src, src.Size(), src))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func names(entries []*ziptype.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestBuild_Entries(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("hello nested world "), 64)
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"central directory", func(t *testing.T) []byte {
			return testutil.NewBuilder(t).Dir("lib").Stored("lib/a.txt", content).Deflated("lib/b.txt", content).Bytes()
		}},
		{"local headers only", func(t *testing.T) []byte {
			return testutil.NewBuilder(t).Dir("lib").Stored("lib/a.txt", content).Deflated("lib/b.txt", content).LocalOnly()
		}},
		{"prefixed", func(t *testing.T) []byte {
			prefix := []byte("#!/bin/sh\nexec java -jar \"$0\" \"$@\"\n")
			return testutil.NewPrefixedBuilder(t, prefix).Dir("lib").Stored("lib/a.txt", content).Deflated("lib/b.txt", content).Bytes()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := tt.data(t)
			idx, err := Build(rangeOf(t, data), nil)
			require.NoError(t, err)

			assert.Equal(t, []string{"lib/", "lib/a.txt", "lib/b.txt"}, names(idx.Entries()))
			assert.Equal(t, 3, idx.Len())
			assert.Nil(t, idx.Manifest())

			stored, ok := idx.Lookup("lib/a.txt")
			require.True(t, ok)
			assert.Equal(t, ziptype.Stored, stored.Method)
			assert.Equal(t, uint64(len(content)), stored.UncompressedSize)
			assert.Equal(t, stored.CompressedSize, stored.UncompressedSize)
			assert.Equal(t, content, data[stored.DataOffset:stored.DataOffset+stored.CompressedSize])
			assert.Equal(t, testutil.Modified, stored.Modified)

			deflated, ok := idx.Lookup("lib/b.txt")
			require.True(t, ok)
			assert.Equal(t, ziptype.Deflated, deflated.Method)
			assert.Equal(t, uint64(len(content)), deflated.UncompressedSize)
			assert.Less(t, deflated.CompressedSize, deflated.UncompressedSize)
			assert.Equal(t, stored.CRC32, deflated.CRC32)
			_, owned := idx.Resolve(deflated)
			assert.True(t, owned)
		})
	}
}

func TestBuild_DirectoryLookupWithoutSlash(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).Dir("BOOT-INF/classes").Bytes()
	idx, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)

	e, ok := idx.Lookup("BOOT-INF/classes")
	require.True(t, ok)
	assert.Equal(t, "BOOT-INF/classes/", e.Name)
	assert.True(t, e.IsDir())

	_, ok = idx.Lookup("BOOT-INF")
	assert.False(t, ok)
}

func TestBuild_ManifestFirst(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).
		Stored("a.txt", []byte("a")).
		Manifest("Manifest-Version", "1.0", "Main-Class", "com.example.Main").
		Stored("z.txt", []byte("z")).
		Bytes()

	idx, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{manifest.Dir, manifest.Path, "a.txt", "z.txt"}, names(idx.Entries()))
	require.NotNil(t, idx.Manifest())
	assert.Equal(t, "com.example.Main", idx.Manifest().Main().Get("main-class"))
}

func TestBuild_ManifestSurvivesFilter(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).
		Manifest("Manifest-Version", "1.0", "Start-Class", "com.example.App").
		Stored("app.txt", []byte("app")).
		Bytes()

	hideMeta := func(name string, _ *ziptype.Entry) (string, bool) {
		return name, !strings.HasPrefix(name, "META-INF/")
	}
	filtered, err := Build(rangeOf(t, data), []Filter{hideMeta})
	require.NoError(t, err)
	plain, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"app.txt"}, names(filtered.Entries()))
	require.NotNil(t, filtered.Manifest())
	assert.Equal(t, plain.Manifest().Main().Get("Start-Class"), filtered.Manifest().Main().Get("Start-Class"))
}

func TestBuild_FilterChain(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).
		Stored("BOOT-INF/lib/a.jar", []byte("a")).
		Stored("BOOT-INF/lib/b.jar", []byte("b")).
		Stored("other.txt", []byte("o")).
		Bytes()

	var seen []string
	strip := func(name string, _ *ziptype.Entry) (string, bool) {
		rest, ok := strings.CutPrefix(name, "BOOT-INF/")
		return rest, ok
	}
	dropB := func(name string, e *ziptype.Entry) (string, bool) {
		seen = append(seen, name+"<-"+e.Name)
		return "x/" + name, name != "lib/b.jar"
	}

	idx, err := Build(rangeOf(t, data), []Filter{strip, dropB})
	require.NoError(t, err)

	assert.Equal(t, []string{"x/lib/a.jar"}, names(idx.Entries()))
	assert.Equal(t, []string{"lib/a.jar<-BOOT-INF/lib/a.jar", "lib/b.jar<-BOOT-INF/lib/b.jar"}, seen)

	e, ok := idx.Lookup("x/lib/a.jar")
	require.True(t, ok)
	assert.Equal(t, "BOOT-INF/lib/a.jar", e.OriginalName())
}

func TestBuild_IdentityFilter(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).Dir("d").Stored("d/a", []byte("a")).Deflated("d/b", []byte("bbbb")).Bytes()
	identity := func(name string, _ *ziptype.Entry) (string, bool) { return name, true }

	plain, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)
	filtered, err := Build(rangeOf(t, data), []Filter{identity})
	require.NoError(t, err)

	require.Equal(t, plain.Len(), filtered.Len())
	for i, e := range plain.Entries() {
		f := filtered.Entries()[i]
		assert.Equal(t, e.Name, f.Name)
		assert.Equal(t, e.DataOffset, f.DataOffset)
		assert.Equal(t, e.CompressedSize, f.CompressedSize)
	}
}

func TestBuild_DuplicateNames(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).Stored("a.txt", []byte("first")).Stored("a.txt", []byte("second!")).Bytes()
	idx, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)

	require.Equal(t, 1, idx.Len())
	e, ok := idx.Lookup("a.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(len("first")), e.UncompressedSize)
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()

	idx, err := Build(rangeOf(t, testutil.NewBuilder(t).Bytes()), nil)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
}

func TestBuild_FormatErrors(t *testing.T) {
	t.Parallel()

	base := func(t *testing.T) []byte {
		return testutil.NewBuilder(t).Stored("entry.bin", bytes.Repeat([]byte{7}, 100)).LocalOnly()
	}
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		entry  string
	}{
		{"truncated data", func(b []byte) []byte { return b[:len(b)-10] }, "entry.bin"},
		{"truncated header", func(b []byte) []byte { return b[:20] }, ""},
		{"unsupported method", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[8:], 12)
			return b
		}, "entry.bin"},
		{"encrypted", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[6:], binary.LittleEndian.Uint16(b[6:])|flagEncrypted)
			return b
		}, "entry.bin"},
		{"garbage after entry", func(b []byte) []byte { return append(b, "garbage!"...) }, ""},
		{"stray bytes", func(b []byte) []byte { return []byte{0x50, 0x4b} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := tt.mutate(base(t))
			_, err := Build(rangeOf(t, data), nil)
			require.ErrorIs(t, err, ziptype.ErrFormat)

			var fe *ziptype.FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.entry, fe.Name)
		})
	}
}

func TestBuild_StoredDescriptorWithoutCentralDirectory(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).Stored("a.txt", []byte("abc")).LocalOnly()
	// Claim the sizes live in a data descriptor.
	binary.LittleEndian.PutUint16(data[6:], flagDataDescriptor)
	binary.LittleEndian.PutUint32(data[18:], 0)
	binary.LittleEndian.PutUint32(data[22:], 0)

	_, err := Build(rangeOf(t, data), nil)
	require.ErrorIs(t, err, ziptype.ErrFormat)
}

func TestBuild_ClosedRange(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).Stored("a.txt", []byte("abc")).Bytes()
	r := rangeOf(t, data)
	require.NoError(t, r.Close())

	_, err := Build(r, nil)
	require.ErrorIs(t, err, ziptype.ErrClosed)
}

func TestBuild_ExtendedTimestamp(t *testing.T) {
	t.Parallel()

	// Odd seconds cannot be expressed in MS-DOS time.
	want := time.Date(2023, time.November, 5, 8, 15, 47, 0, time.UTC)
	extra := []byte{0x55, 0x54, 0x05, 0x00, 0x01, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(extra[5:], uint32(want.Unix()))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(h *zip.FileHeader, data []byte) {
		h.Method = zip.Store
		h.CRC32 = crc32.ChecksumIEEE(data)
		h.CompressedSize64 = uint64(len(data))
		h.UncompressedSize64 = uint64(len(data))
		w, err := zw.CreateRaw(h)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	add(&zip.FileHeader{Name: "unix.txt", Extra: extra}, []byte("unix"))
	add(&zip.FileHeader{
		Name:         "dos.txt",
		ModifiedDate: 0x5869, //nolint:staticcheck // 2024-03-09
		ModifiedTime: 0x73c6, //nolint:staticcheck // 14:30:12
	}, []byte("dos"))
	add(&zip.FileHeader{Name: "undated.txt"}, []byte("none"))
	require.NoError(t, zw.Close())

	for _, data := range [][]byte{buf.Bytes(), buf.Bytes()[:bytes.Index(buf.Bytes(), []byte("PK\x01\x02"))]} {
		idx, err := Build(rangeOf(t, data), nil)
		require.NoError(t, err)

		e, ok := idx.Lookup("unix.txt")
		require.True(t, ok)
		assert.Equal(t, want, e.Modified)

		e, ok = idx.Lookup("dos.txt")
		require.True(t, ok)
		assert.Equal(t, testutil.Modified, e.Modified)

		e, ok = idx.Lookup("undated.txt")
		require.True(t, ok)
		assert.True(t, e.Modified.IsZero())
	}
}

func TestBuild_LocalOnlyTrailingDeflated(t *testing.T) {
	t.Parallel()

	contents := map[string][]byte{
		"a.txt": bytes.Repeat([]byte("alpha "), 300),
		"b.txt": bytes.Repeat([]byte("bravo "), 500),
		"c.txt": []byte("charlie"),
		"d.txt": bytes.Repeat([]byte("delta "), 700),
	}
	data := testutil.NewBuilder(t).
		Deflated("a.txt", contents["a.txt"]).
		Deflated("b.txt", contents["b.txt"]).
		Stored("c.txt", contents["c.txt"]).
		Deflated("d.txt", contents["d.txt"]).
		LocalOnly()
	assert.NotContains(t, string(data), "PK\x01\x02")
	assert.NotContains(t, string(data), "PK\x05\x06")

	idx, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "d.txt"}, names(idx.Entries()))
	for name, content := range contents {
		e, ok := idx.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, uint64(len(content)), e.UncompressedSize, name)
		assert.Equal(t, crc32.ChecksumIEEE(content), e.CRC32, name)
	}
}

func TestIndex_EntriesAreCopies(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).
		Manifest("Manifest-Version", "1.0").
		Stored("a.txt", []byte("a")).
		Bytes()
	idx, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)

	e, ok := idx.Lookup("a.txt")
	require.True(t, ok)
	e.Name = "changed"
	e.DataOffset = 0

	again, ok := idx.Lookup("a.txt")
	require.True(t, ok)
	assert.Equal(t, "a.txt", again.Name)
	assert.NotZero(t, again.DataOffset)
	_, ok = idx.Lookup("changed")
	assert.False(t, ok)

	canonical, ok := idx.Resolve(e)
	require.True(t, ok)
	assert.Equal(t, "a.txt", canonical.Name)

	_, ok = idx.Resolve(&ziptype.Entry{Name: "a.txt"})
	assert.False(t, ok)

	m := idx.Manifest()
	m.Main().Set("Manifest-Version", "2.0")
	assert.Equal(t, "1.0", idx.Manifest().Main().Get("Manifest-Version"))
}

func TestIndex_DirectoryTree(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).
		Stored("z.txt", []byte("z")).
		Stored("a/b/c.txt", []byte("c")).
		Dir("a/d").
		Stored("a/a.txt", []byte("a")).
		Stored("a/b/e/f.txt", []byte("f")).
		Bytes()
	idx, err := Build(rangeOf(t, data), nil)
	require.NoError(t, err)

	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{"a/", "z.txt"}},
		{"a/", []string{"a.txt", "b/", "d/"}},
		{"a/b/", []string{"c.txt", "e/"}},
		{"a/b/e/", []string{"f.txt"}},
		{"a/d/", nil},
	}
	for _, tt := range tests {
		assert.True(t, idx.IsDir(tt.prefix), tt.prefix)
		assert.Equal(t, tt.want, idx.Children(tt.prefix), tt.prefix)
	}

	assert.False(t, idx.IsDir("z.txt/"))
	assert.False(t, idx.IsDir("a/b/c.txt/"))
	assert.False(t, idx.IsDir("missing/"))
	assert.Nil(t, idx.Children("missing/"))
}
