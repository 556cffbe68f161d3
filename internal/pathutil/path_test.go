package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBase(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                ".",
		".":               ".",
		"a.txt":           "a.txt",
		"lib/a.txt":       "a.txt",
		"BOOT-INF/lib/":   "lib",
		"BOOT-INF/lib/x/": "x",
	}
	for in, want := range tests {
		assert.Equal(t, want, Base(in), in)
	}
}

func TestDirPrefix(t *testing.T) {
	t.Parallel()

	assert.Empty(t, DirPrefix("."))
	assert.Empty(t, DirPrefix(""))
	assert.Equal(t, "lib/", DirPrefix("lib"))
	assert.Equal(t, "lib/", DirPrefix("lib/"))
}

func TestRel(t *testing.T) {
	t.Parallel()

	rest, ok := Rel("lib/a.txt", "lib/")
	assert.True(t, ok)
	assert.Equal(t, "a.txt", rest)

	_, ok = Rel("lib/", "lib/")
	assert.False(t, ok, "directory itself is excluded")

	_, ok = Rel("library/a.txt", "lib/")
	assert.False(t, ok)
}
