package main

import (
	"bytes"
	"io/fs"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip"
	"github.com/meigma/nestzip/internal/testutil"
)

var barClass = []byte{0xca, 0xfe, 0xba, 0xbe, 0x00, 0x00, 0x00, 0x41, 'B', 'a', 'r'}

func fixture(t *testing.T) (app, lib []byte) {
	t.Helper()
	lib = testutil.NewBuilder(t).
		Manifest("Manifest-Version", "1.0", "Implementation-Title", "dep").
		Stored("dep/page.html", []byte("<html></html>")).
		Bytes()
	app = testutil.NewBuilder(t).
		Manifest("Manifest-Version", "1.0", "Start-Class", "com.foo.Bar").
		Dir("BOOT-INF/classes").
		Dir("BOOT-INF/classes/com/foo").
		Stored("BOOT-INF/classes/com/foo/Bar.class", barClass).
		Stored("BOOT-INF/lib/dep.jar", lib).
		Deflated("README.txt", []byte(strings.Repeat("read me\n", 50))).
		Bytes()
	return app, lib
}

func memFs(t *testing.T) afero.Fs {
	t.Helper()
	app, _ := fixture(t)
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/opt/app.pkg", app, 0o644))
	return fsys
}

func run(fsys afero.Fs, args ...string) (stdout, stderr string, err error) {
	cmd := newRootCmd(fsys)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		want    []string
	}{
		{
			name:    "root without separator",
			address: "/opt/app.pkg",
			want: []string{
				"META-INF/", "META-INF/MANIFEST.MF",
				"BOOT-INF/classes/", "BOOT-INF/classes/com/foo/",
				"BOOT-INF/classes/com/foo/Bar.class", "BOOT-INF/lib/dep.jar", "README.txt",
			},
		},
		{
			name:    "directory entry",
			address: "/opt/app.pkg!/BOOT-INF/classes",
			want:    []string{"BOOT-INF/classes/com/foo/", "BOOT-INF/classes/com/foo/Bar.class"},
		},
		{
			name:    "nested directory container",
			address: "/opt/app.pkg!/BOOT-INF/classes!/",
			want:    []string{"com/foo/", "com/foo/Bar.class"},
		},
		{
			name:    "nested jar",
			address: "jar:file:/opt/app.pkg!/BOOT-INF/lib/dep.jar!/",
			want:    []string{"META-INF/", "META-INF/MANIFEST.MF", "dep/page.html"},
		},
		{
			name:    "single file",
			address: "/opt/app.pkg!/README.txt",
			want:    []string{"README.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, _, err := run(memFs(t), "ls", tt.address)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Fields(out))
		})
	}
}

func TestLs_Long(t *testing.T) {
	t.Parallel()

	out, _, err := run(memFs(t), "ls", "-l", "/opt/app.pkg!/README.txt")
	require.NoError(t, err)

	fields := strings.Fields(out)
	require.Len(t, fields, 6)
	assert.Equal(t, "deflated", fields[0])
	assert.Equal(t, "400", fields[2])
	assert.Equal(t, testutil.Modified.Format(time.DateOnly), fields[3])
	assert.Equal(t, "README.txt", fields[5])
}

func TestCat(t *testing.T) {
	t.Parallel()

	_, lib := fixture(t)
	tests := []struct {
		name    string
		address string
		want    []byte
	}{
		{"stored entry", "/opt/app.pkg!/BOOT-INF/classes/com/foo/Bar.class", barClass},
		{"deflated entry", "/opt/app.pkg!/README.txt", []byte(strings.Repeat("read me\n", 50))},
		{"entry in nested jar", "/opt/app.pkg!/BOOT-INF/lib/dep.jar!/dep/page.html", []byte("<html></html>")},
		{"nested container bytes", "/opt/app.pkg!/BOOT-INF/lib/dep.jar!/", lib},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, _, err := run(memFs(t), "cat", tt.address)
			require.NoError(t, err)
			assert.Equal(t, tt.want, []byte(out))
		})
	}
}

func TestCat_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		want    error
	}{
		{"missing root", "/opt/missing.pkg!/a", fs.ErrNotExist},
		{"missing entry", "/opt/app.pkg!/nope.txt", fs.ErrNotExist},
		{"missing nested entry", "/opt/app.pkg!/BOOT-INF/lib/dep.jar!/nope", fs.ErrNotExist},
		{"compressed container", "/opt/app.pkg!/README.txt!/x", nestzip.ErrIllegalState},
		{"directory container bytes", "/opt/app.pkg!/BOOT-INF/classes!/", nestzip.ErrIllegalState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, stderr, err := run(memFs(t), "cat", tt.address)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, stderr, "Error:")
		})
	}
}

func TestManifest(t *testing.T) {
	t.Parallel()

	out, _, err := run(memFs(t), "manifest", "/opt/app.pkg")
	require.NoError(t, err)
	assert.Equal(t, "Manifest-Version: 1.0\r\nStart-Class: com.foo.Bar\r\n\r\n", out)

	out, _, err = run(memFs(t), "manifest", "-a", "implementation-title", "/opt/app.pkg!/BOOT-INF/lib/dep.jar!/")
	require.NoError(t, err)
	assert.Equal(t, "dep\n", out)

	_, _, err = run(memFs(t), "manifest", "-a", "Main-Class", "/opt/app.pkg")
	assert.ErrorIs(t, err, nestzip.ErrNotFound)

	_, _, err = run(memFs(t), "manifest", "/opt/app.pkg!/BOOT-INF/classes!/")
	require.NoError(t, err, "a directory view shares its container's manifest")
}

func TestStat(t *testing.T) {
	t.Parallel()

	out, _, err := run(memFs(t), "stat", "/opt/app.pkg!/BOOT-INF/lib/dep.jar!/dep/page.html")
	require.NoError(t, err)
	assert.Contains(t, out, "Locator:   /opt/app.pkg!/BOOT-INF/lib/dep.jar!/dep/page.html")
	assert.Contains(t, out, "Container: /opt/app.pkg!/BOOT-INF/lib/dep.jar")
	assert.Contains(t, out, "Size:      13")
	assert.Contains(t, out, "Type:      text/html")
	assert.Contains(t, out, "Method:    stored")
	assert.Contains(t, out, "Modified:  "+testutil.Modified.Format(time.RFC3339))
}

func TestDigest(t *testing.T) {
	t.Parallel()

	_, lib := fixture(t)
	out, _, err := run(memFs(t), "digest",
		"/opt/app.pkg!/BOOT-INF/lib/dep.jar",
		"/opt/app.pkg!/BOOT-INF/classes/com/foo/Bar.class")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, digest.FromBytes(lib).String()+"  /opt/app.pkg!/BOOT-INF/lib/dep.jar", lines[0])
	assert.Equal(t, digest.FromBytes(barClass).String()+"  /opt/app.pkg!/BOOT-INF/classes/com/foo/Bar.class", lines[1])
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	fsys := memFs(t)
	require.NoError(t, afero.WriteFile(fsys, "/etc/nestzip.yaml", []byte("log:\n  level: debug\n  format: json\n"), 0o644))

	_, stderr, err := run(fsys, "--config", "/etc/nestzip.yaml", "ls", "/opt/app.pkg")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"level":"DEBUG"`)
	assert.Contains(t, stderr, `"msg":"resolved locator"`)

	_, _, err = run(fsys, "--config", "/etc/missing.yaml", "ls", "/opt/app.pkg")
	assert.Error(t, err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	fsys := memFs(t)
	require.NoError(t, afero.WriteFile(fsys, "/etc/nestzip.yaml", []byte("log:\n  level: debug\n"), 0o644))

	_, stderr, err := run(fsys, "--config", "/etc/nestzip.yaml", "--log.level", "error", "ls", "/opt/app.pkg")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestEnvMaxEntrySize(t *testing.T) {
	t.Setenv("NESTZIP_ARCHIVE_MAX_ENTRY_SIZE", "4")

	_, _, err := run(memFs(t), "cat", "/opt/app.pkg!/BOOT-INF/classes/com/foo/Bar.class")
	assert.ErrorIs(t, err, nestzip.ErrSizeOverflow)

	_, _, err = run(memFs(t), "cat", "--archive.max-entry-size", "1024", "/opt/app.pkg!/BOOT-INF/classes/com/foo/Bar.class")
	assert.NoError(t, err)
}

func TestLogFile(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "nestzip.log")
	_, stderr, err := run(memFs(t), "--log.level", "debug", "--log.file", logPath, "ls", "/opt/app.pkg")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "resolved locator")
}

func TestInvalidLogSettings(t *testing.T) {
	t.Parallel()

	_, _, err := run(memFs(t), "--log.level", "loud", "ls", "/opt/app.pkg")
	assert.Error(t, err)

	_, _, err = run(memFs(t), "--log.format", "xml", "ls", "/opt/app.pkg")
	assert.Error(t, err)
}

func TestHTTPRoot(t *testing.T) {
	t.Parallel()

	app, _ := fixture(t)
	var tokens atomic.Int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("X-Token") == "abc" {
			tokens.Add(1)
		}
		nethttp.ServeContent(w, r, "app.pkg", testutil.Modified, bytes.NewReader(app))
	}))
	t.Cleanup(srv.Close)

	out, _, err := run(afero.NewMemMapFs(), "cat",
		"--http.header", "X-Token: abc",
		"--http.timeout", "5s",
		srv.URL+"/app.pkg!/BOOT-INF/lib/dep.jar!/dep/page.html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", out)
	assert.Positive(t, tokens.Load())
}

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	h, err := parseHeaders([]string{"Authorization: Bearer x", "X-A:1", "X-A: 2"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer x", h.Get("Authorization"))
	assert.Equal(t, []string{"1", "2"}, h.Values("X-A"))

	_, err = parseHeaders([]string{"no-colon"})
	assert.Error(t, err)
	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}
