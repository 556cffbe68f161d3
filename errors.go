package nestzip

import "github.com/meigma/nestzip/internal/ziptype"

// Sentinel errors re-exported from internal/ziptype.
var (
	// ErrFormat is returned when a container's structure is malformed.
	// The concrete error is a *FormatError.
	ErrFormat = ziptype.ErrFormat

	// ErrCorruptEntry is returned when an entry fails to inflate or does not
	// match its recorded size or CRC-32.
	ErrCorruptEntry = ziptype.ErrCorruptEntry

	// ErrInvalidArgument is returned for nil entries and entries that belong
	// to a different archive.
	ErrInvalidArgument = ziptype.ErrInvalidArgument

	// ErrIllegalState is returned when a compressed entry is opened as a
	// nested container, or when the raw bytes of a directory view are
	// requested.
	ErrIllegalState = ziptype.ErrIllegalState

	// ErrClosed is returned by every operation on a closed archive.
	ErrClosed = ziptype.ErrClosed

	// ErrNotFound is returned when a named entry does not exist.
	ErrNotFound = ziptype.ErrNotFound

	// ErrSizeOverflow is returned when an entry exceeds the configured size limit.
	ErrSizeOverflow = ziptype.ErrSizeOverflow
)

// FormatError describes where and why a container failed to index.
type FormatError = ziptype.FormatError
