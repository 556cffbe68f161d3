package sizing

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestToInt64(t *testing.T) {
	t.Parallel()

	got, err := ToInt64(42, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	_, err = ToInt64(math.MaxUint64, errOverflow)
	require.ErrorIs(t, err, errOverflow)
}

func TestAddUint64(t *testing.T) {
	t.Parallel()

	sum, ok := AddUint64(1, 2)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), sum)

	_, ok = AddUint64(math.MaxUint64, 1)
	assert.False(t, ok)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		off, length, size int64
		want              bool
	}{
		{"whole range", 0, 10, 10, true},
		{"empty at end", 10, 0, 10, true},
		{"past end", 5, 6, 10, false},
		{"negative offset", -1, 1, 10, false},
		{"negative length", 0, -1, 10, false},
		{"overflow", math.MaxInt64, 2, math.MaxInt64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Within(tt.off, tt.length, tt.size))
		})
	}
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	data, err := ReadAllWithLimit(bytes.NewReader([]byte("abc")), 3, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = ReadAllWithLimit(bytes.NewReader([]byte("abcd")), 3, errOverflow)
	require.ErrorIs(t, err, errOverflow)
}
