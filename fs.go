package nestzip

import (
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/meigma/nestzip/internal/pathutil"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// Open implements fs.FS.
//
// Directories are synthesized from entry names when the container does not
// store them explicitly. Files are verified as described for Read.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &fs.PathError{Op: "open", Path: name, Err: ErrClosed}
	}

	if e, ok := a.lookupFile(name); ok {
		rc, err := a.read(e)
		if err != nil {
			return nil, err
		}
		return &openFile{ReadCloser: rc, info: newFileInfo(e, pathutil.Base(name))}, nil
	}
	if a.isDir(name) {
		return &openDir{a: a, name: name}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: ErrClosed}
	}

	if e, ok := a.lookupFile(name); ok {
		return newFileInfo(e, pathutil.Base(name)), nil
	}
	if a.isDir(name) {
		return a.dirInfo(name), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns the immediate children of the named directory, sorted by
// name.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrClosed}
	}
	if !a.isDir(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return a.children(name), nil
}

func (a *Archive) lookupFile(name string) (*Entry, bool) {
	if name == "." {
		return nil, false
	}
	e, ok := a.idx.Lookup(name)
	if !ok || e.IsDir() {
		return nil, false
	}
	return e, true
}

// isDir reports whether name is stored as a directory or is a prefix of
// some entry.
func (a *Archive) isDir(name string) bool {
	if name == "." {
		return true
	}
	return a.idx.IsDir(pathutil.DirPrefix(name))
}

func (a *Archive) dirInfo(name string) *dirInfo {
	info := &dirInfo{name: pathutil.Base(name)}
	if e, ok := a.idx.Lookup(pathutil.DirPrefix(name)); ok && name != "." {
		info.modTime = e.Modified
	}
	return info
}

// children lists the immediate children of name, synthesizing directories
// for nested names.
func (a *Archive) children(name string) []fs.DirEntry {
	prefix := pathutil.DirPrefix(name)
	names := a.idx.Children(prefix)
	seen := make(map[string]bool, len(names))
	entries := make([]fs.DirEntry, 0, len(names))
	for _, child := range names {
		base, isSubDir := strings.CutSuffix(child, "/")
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		if isSubDir {
			entries = append(entries, fs.FileInfoToDirEntry(a.dirInfo(prefix+base)))
			continue
		}
		if e, ok := a.idx.Lookup(prefix + child); ok {
			entries = append(entries, fs.FileInfoToDirEntry(newFileInfo(e, child)))
		}
	}
	slices.SortFunc(entries, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return entries
}

// openFile implements fs.File for an entry being read.
type openFile struct {
	io.ReadCloser
	info *fileInfo
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }

// openDir implements fs.ReadDirFile for stored and synthetic directories.
type openDir struct {
	a       *Archive
	name    string
	entries []fs.DirEntry
	loaded  bool
}

func (d *openDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	d.a.mu.Lock()
	defer d.a.mu.Unlock()
	return d.a.dirInfo(d.name), nil
}

func (d *openDir) Close() error {
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		d.a.mu.Lock()
		if d.a.closed {
			d.a.mu.Unlock()
			return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: ErrClosed}
		}
		d.entries = d.a.children(d.name)
		d.a.mu.Unlock()
		d.loaded = true
	}
	if n <= 0 {
		out := d.entries
		d.entries = nil
		return out, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(d.entries))
	out := d.entries[:n]
	d.entries = d.entries[n:]
	return out, nil
}

// fileInfo implements fs.FileInfo for file entries.
type fileInfo struct {
	entry *Entry
	name  string
}

func newFileInfo(e *Entry, name string) *fileInfo {
	return &fileInfo{entry: e, name: name}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return int64(fi.entry.UncompressedSize) } //nolint:gosec // bounded by the backing range or the size limit
func (fi *fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi *fileInfo) ModTime() time.Time { return fi.entry.Modified }
func (fi *fileInfo) IsDir() bool        { return false }
func (fi *fileInfo) Sys() any           { return fi.entry }

// dirInfo implements fs.FileInfo for directories.
type dirInfo struct {
	name    string
	modTime time.Time
}

func (di *dirInfo) Name() string       { return di.name }
func (di *dirInfo) Size() int64        { return 0 }
func (di *dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (di *dirInfo) ModTime() time.Time { return di.modTime }
func (di *dirInfo) IsDir() bool        { return true }
func (di *dirInfo) Sys() any           { return nil }
