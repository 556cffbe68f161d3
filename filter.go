package nestzip

import (
	"slices"

	"github.com/meigma/nestzip/internal/pathutil"
)

// StripPrefix returns a filter that keeps only names below the directory
// prefix and removes the prefix from them. The directory entry itself is
// excluded. A missing trailing slash is added to prefix.
func StripPrefix(prefix string) NameFilter {
	prefix = pathutil.DirPrefix(prefix)
	return func(name string, _ *Entry) (string, bool) {
		return pathutil.Rel(name, prefix)
	}
}

// Exclude returns a filter that drops the named entries.
func Exclude(names ...string) NameFilter {
	names = slices.Clone(names)
	return func(name string, _ *Entry) (string, bool) {
		return name, !slices.Contains(names, name)
	}
}

// Only returns a filter that keeps names accepted by match.
func Only(match func(name string) bool) NameFilter {
	return func(name string, _ *Entry) (string, bool) {
		return name, match(name)
	}
}
