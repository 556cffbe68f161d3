package ziptype

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors.
var (
	// ErrFormat is returned when a container's structure is malformed.
	ErrFormat = errors.New("nestzip: malformed container")

	// ErrCorruptEntry is returned when an entry cannot be decompressed or
	// fails its size or checksum verification.
	ErrCorruptEntry = errors.New("nestzip: corrupt entry")

	// ErrInvalidArgument is returned for nil or foreign caller arguments.
	ErrInvalidArgument = errors.New("nestzip: invalid argument")

	// ErrIllegalState is returned when an operation does not apply to an
	// entry's storage method.
	ErrIllegalState = errors.New("nestzip: illegal state")

	// ErrClosed is returned by operations on a closed container or range.
	ErrClosed = errors.New("nestzip: closed")

	// ErrNotFound is returned when a named entry does not exist.
	// It matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("nestzip: %w", fs.ErrNotExist)

	// ErrRange is returned when a slice falls outside its backing range.
	ErrRange = errors.New("nestzip: range out of bounds")

	// ErrSizeOverflow is returned when offsets or sizes exceed supported limits.
	ErrSizeOverflow = errors.New("nestzip: size overflow")
)

// FormatError describes a structural problem found while indexing a container.
type FormatError struct {
	// Name is the offending entry name, empty when not yet known.
	Name string

	// Offset is the position of the problem relative to the container start.
	Offset int64

	// Reason is a short description of the problem.
	Reason string

	// Err is the underlying I/O error, if any.
	Err error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("nestzip: malformed container at offset %d", e.Offset)
	if e.Name != "" {
		msg += fmt.Sprintf(" (entry %q)", e.Name)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}
