// Package locator resolves addresses of nested archive entries.
//
// An address has the form
//
//	path(!/entry)*
//
// where path names a physical container (a local path, a file: URL or an
// http(s):// URL) and each "!/"-separated segment names an entry inside the
// container produced by the segment before it. Every segment but the last
// must name a nested container: a directory or a STORED file entry. A
// trailing "!/" addresses the innermost container itself.
//
//	app.pkg!/BOOT-INF/classes!/com/foo/Bar.class
//	jar:file:/opt/app.pkg!/BOOT-INF/lib/dep.jar!/
//
// Addresses are resolved by an explicit [Resolver]; nothing is registered
// process-wide.
package locator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/meigma/nestzip"
)

// Separator divides an address into its root and entry segments.
const Separator = "!/"

var (
	// ErrMalformedLocator is returned when an address cannot be parsed.
	ErrMalformedLocator = errors.New("locator: malformed address")

	// ErrNotFound is returned when a segment does not name an entry.
	ErrNotFound = nestzip.ErrNotFound
)

// Locator is a parsed address.
type Locator struct {
	// Root is the physical container: a filesystem path or an http(s) URL.
	Root string

	// Segments are the entry names following Root. The last segment is the
	// addressed entry and is empty when the address ends with "!/".
	Segments []string
}

// Parse splits an address into its root and segments.
//
// An optional "jar:" prefix is removed, and a "file:" root is converted to a
// filesystem path. The address must contain at least one "!/".
func Parse(address string) (Locator, error) {
	rest := strings.TrimPrefix(address, "jar:")
	parts := strings.Split(rest, Separator)
	if len(parts) < 2 {
		return Locator{}, fmt.Errorf("%w: no %s found in %q", ErrMalformedLocator, Separator, address)
	}

	root, err := parseRoot(parts[0])
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %q: %w", ErrMalformedLocator, address, err)
	}
	segments := parts[1:]
	for i, seg := range segments[:len(segments)-1] {
		if seg == "" {
			return Locator{}, fmt.Errorf("%w: empty segment %d in %q", ErrMalformedLocator, i+1, address)
		}
	}
	return Locator{Root: root, Segments: segments}, nil
}

func parseRoot(root string) (string, error) {
	if root == "" {
		return "", errors.New("empty root")
	}
	if !strings.HasPrefix(root, "file:") {
		return root, nil
	}
	u, err := url.Parse(root)
	if err != nil {
		return "", err
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return "", errors.New("empty file path")
	}
	return path, nil
}

// Entry returns the addressed entry name, empty when the locator addresses
// a container.
func (l Locator) Entry() string {
	if len(l.Segments) == 0 {
		return ""
	}
	return l.Segments[len(l.Segments)-1]
}

// Containers returns the segments naming nested containers, outermost first.
func (l Locator) Containers() []string {
	if len(l.Segments) == 0 {
		return nil
	}
	return l.Segments[:len(l.Segments)-1]
}

// Scheme returns "http" or "https" for URL roots and "file" otherwise.
func (l Locator) Scheme() string {
	for _, scheme := range []string{"https", "http"} {
		if strings.HasPrefix(l.Root, scheme+"://") {
			return scheme
		}
	}
	return "file"
}

// String renders the locator as an address.
func (l Locator) String() string {
	if len(l.Segments) == 0 {
		return l.Root + Separator
	}
	return l.Root + Separator + strings.Join(l.Segments, Separator)
}
