// Package manifest parses and writes archive manifests.
//
// A manifest is a sequence of "Key: value" lines. Lines longer than 72 bytes
// continue on the next line, which starts with a single space. A blank line
// ends the main section; each following section starts with a "Name" attribute.
// Attribute keys compare case-insensitively.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Path is the conventional location of the manifest inside an archive.
const Path = "META-INF/MANIFEST.MF"

// Dir is the directory holding the manifest.
const Dir = "META-INF/"

// maxLineLen is the maximum number of bytes written per line, excluding CRLF.
const maxLineLen = 72

// ErrSyntax is returned for lines that are not attributes or continuations.
var ErrSyntax = errors.New("manifest: invalid syntax")

// Attributes is an ordered, case-insensitive attribute mapping.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes returns an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

// Get returns the value for key, or "" if absent.
func (a *Attributes) Get(key string) string {
	v, _ := a.Lookup(key)
	return v
}

// Lookup returns the value for key and whether it was present.
func (a *Attributes) Lookup(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[strings.ToLower(key)]
	return v, ok
}

// Set stores value under key, keeping the original spelling of the first
// occurrence for output.
func (a *Attributes) Set(key, value string) {
	lk := strings.ToLower(key)
	if _, ok := a.values[lk]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[lk] = value
}

// Keys returns the attribute keys in insertion order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Clone returns a deep copy of a.
func (a *Attributes) Clone() *Attributes {
	if a == nil {
		return nil
	}
	return &Attributes{keys: slices.Clone(a.keys), values: maps.Clone(a.values)}
}

// Manifest holds the main attributes and the per-entry sections.
type Manifest struct {
	main     *Attributes
	sections map[string]*Attributes
	order    []string
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{main: NewAttributes(), sections: make(map[string]*Attributes)}
}

// Main returns the main attributes.
func (m *Manifest) Main() *Attributes {
	return m.main
}

// Section returns the attributes of the named entry section.
func (m *Manifest) Section(name string) (*Attributes, bool) {
	a, ok := m.sections[name]
	return a, ok
}

// SectionNames returns entry section names in file order.
func (m *Manifest) SectionNames() []string {
	return append([]string(nil), m.order...)
}

// AddSection returns the section for name, creating it if needed.
func (m *Manifest) AddSection(name string) *Attributes {
	if a, ok := m.sections[name]; ok {
		return a
	}
	a := NewAttributes()
	m.sections[name] = a
	m.order = append(m.order, name)
	return a
}

// Clone returns a deep copy of m. Changes to the copy are not visible
// through m.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := &Manifest{
		main:     m.main.Clone(),
		sections: make(map[string]*Attributes, len(m.sections)),
		order:    slices.Clone(m.order),
	}
	for name, a := range m.sections {
		c.sections[name] = a.Clone()
	}
	return c
}

// Parse decodes manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	m := New()
	current := m.main
	inMain := true
	var key string
	var value strings.Builder
	haveAttr := false
	sectionName := false

	flush := func() {
		if !haveAttr {
			return
		}
		if sectionName {
			current = m.AddSection(value.String())
		} else {
			current.Set(key, value.String())
		}
		haveAttr = false
		sectionName = false
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), len(data)+1)
	sc.Split(scanLines)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		switch {
		case line == "":
			flush()
			inMain = false
			current = nil
		case line[0] == ' ':
			if !haveAttr {
				return nil, fmt.Errorf("%w: line %d: continuation without attribute", ErrSyntax, lineNo)
			}
			value.WriteString(line[1:])
		default:
			flush()
			k, v, ok := strings.Cut(line, ": ")
			if !ok || k == "" {
				return nil, fmt.Errorf("%w: line %d: %q", ErrSyntax, lineNo, line)
			}
			if current == nil {
				if inMain || !strings.EqualFold(k, "Name") {
					return nil, fmt.Errorf("%w: line %d: section must start with Name", ErrSyntax, lineNo)
				}
				sectionName = true
			}
			key = k
			value.Reset()
			value.WriteString(v)
			haveAttr = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return m, nil
}

// scanLines splits on CRLF, LF or CR.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// WriteTo serializes the manifest with CRLF line endings, wrapping lines at
// 72 bytes.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	writeAttributes(&buf, m.main)
	buf.WriteString("\r\n")
	for _, name := range m.order {
		writeLine(&buf, "Name: "+name)
		writeAttributes(&buf, m.sections[name])
		buf.WriteString("\r\n")
	}
	return buf.WriteTo(w)
}

// Bytes returns the serialized manifest.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = m.WriteTo(&buf) //nolint:errcheck // bytes.Buffer writes never fail
	return buf.Bytes()
}

func writeAttributes(buf *bytes.Buffer, a *Attributes) {
	for _, k := range a.keys {
		writeLine(buf, k+": "+a.values[strings.ToLower(k)])
	}
}

func writeLine(buf *bytes.Buffer, line string) {
	limit := maxLineLen
	for len(line) > limit {
		buf.WriteString(line[:limit])
		buf.WriteString("\r\n ")
		line = line[limit:]
		limit = maxLineLen - 1
	}
	buf.WriteString(line)
	buf.WriteString("\r\n")
}
