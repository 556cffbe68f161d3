package ziptype

import "strconv"

// Method identifies how an entry's bytes are stored in the container.
type Method uint16

// Methods understood by the loader. Values match the ZIP header field.
const (
	Stored   Method = 0
	Deflated Method = 8
)

// String returns the human-readable name of the method.
func (m Method) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflated:
		return "deflated"
	default:
		return "method(" + strconv.Itoa(int(m)) + ")"
	}
}

// Supported reports whether entries using m can be read.
func (m Method) Supported() bool {
	return m == Stored || m == Deflated
}
