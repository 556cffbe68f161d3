// Package pathutil provides helpers for slash-separated entry names.
package pathutil

import "strings"

// Base returns the last element of a slash-separated name, ignoring a
// trailing slash. For "" or "." it returns ".".
func Base(name string) string {
	if name == "" || name == "." {
		return "."
	}
	name = strings.TrimSuffix(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// DirPrefix converts a directory name to the prefix its children share.
// "" and "." map to "", everything else gains a trailing slash if missing.
func DirPrefix(name string) string {
	if name == "" || name == "." {
		return ""
	}
	if strings.HasSuffix(name, "/") {
		return name
	}
	return name + "/"
}

// Rel returns name relative to prefix. It reports false when name is not
// strictly below prefix.
func Rel(name, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}
