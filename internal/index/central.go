package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// centralRecord holds the fields of a central directory header that the
// local header may leave out.
type centralRecord struct {
	name  string
	crc32 uint32
	csize uint64
	usize uint64
}

// centralDir is the parsed central directory, keyed by the position of each
// entry's local header within the range.
type centralDir struct {
	records map[int64]centralRecord
	// prefix is the number of bytes preceding the first local header, such as
	// a launch script prepended to an executable archive.
	prefix int64
}

// readCentralDir locates and parses the central directory. It returns nil
// without error when no end record can be found.
func readCentralDir(r io.ReaderAt, size int64) (*centralDir, error) {
	endOff, end, err := findEnd(r, size)
	if err != nil || end == nil {
		return nil, err
	}

	b := readBuf(end[4:])
	b.uint16() // disk number
	b.uint16() // central directory disk
	b.uint16() // entries on this disk
	count := uint64(b.uint16())
	dirSize := uint64(b.uint32())
	dirOff := uint64(b.uint32())
	recordEnd := endOff

	if count == uint16max || dirSize == uint32max || dirOff == uint32max {
		z64Off, z64, zerr := readZip64End(r, endOff)
		if zerr != nil {
			return nil, zerr
		}
		if z64 != nil {
			zb := readBuf(z64[24:])
			zb.uint64() // entries on this disk
			count = zb.uint64()
			dirSize = zb.uint64()
			dirOff = zb.uint64()
			recordEnd = z64Off
		}
	}

	if dirSize > uint64(recordEnd) { //nolint:gosec // recordEnd is non-negative
		return nil, fmt.Errorf("central directory size %d exceeds container", dirSize)
	}
	start := recordEnd - int64(dirSize) //nolint:gosec // bounded above
	if dirOff > uint64(start) {         //nolint:gosec // start is non-negative
		return nil, fmt.Errorf("central directory offset %d past its position %d", dirOff, start)
	}
	prefix := start - int64(dirOff) //nolint:gosec // bounded above

	data := make([]byte, dirSize)
	if _, err := r.ReadAt(data, start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read central directory: %w", err)
	}

	cd := &centralDir{records: make(map[int64]centralRecord), prefix: prefix}
	buf := readBuf(data)
	for i := uint64(0); i < count; i++ {
		if len(buf) < centralHeaderLen {
			return nil, fmt.Errorf("central directory truncated at record %d", i)
		}
		h := buf.sub(centralHeaderLen)
		if h.uint32() != centralHeaderSig {
			return nil, fmt.Errorf("bad central directory signature at record %d", i)
		}
		h.uint16() // version made by
		h.uint16() // version needed
		h.uint16() // flags
		h.uint16() // method
		h.uint16() // time
		h.uint16() // date
		rec := centralRecord{crc32: h.uint32()}
		rec.csize = uint64(h.uint32())
		rec.usize = uint64(h.uint32())
		nameLen := int(h.uint16())
		extraLen := int(h.uint16())
		commentLen := int(h.uint16())
		h.uint16() // disk
		h.uint16() // internal attributes
		h.uint32() // external attributes
		offset := uint64(h.uint32())
		if len(buf) < nameLen+extraLen+commentLen {
			return nil, fmt.Errorf("central directory truncated at record %d", i)
		}
		rec.name = string(buf.sub(nameLen))
		applyZip64(buf.sub(extraLen), &rec.usize, &rec.csize, &offset)
		buf.sub(commentLen)
		cd.records[int64(offset)+prefix] = rec //nolint:gosec // offsets are validated against the range on use
	}
	return cd, nil
}

// findEnd searches backwards for the end of central directory record.
func findEnd(r io.ReaderAt, size int64) (int64, []byte, error) {
	if size < endLen {
		return 0, nil, nil
	}
	searchLen := int64(endLen + maxCommentLen)
	if searchLen > size {
		searchLen = size
	}
	buf := make([]byte, searchLen)
	if _, err := r.ReadAt(buf, size-searchLen); err != nil && err != io.EOF {
		return 0, nil, fmt.Errorf("read end record: %w", err)
	}
	sig := []byte{0x50, 0x4b, 0x05, 0x06}
	for i := len(buf) - endLen; i >= 0; i-- {
		if !bytes.Equal(buf[i:i+4], sig) {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20 : i+22]))
		if i+endLen+commentLen > len(buf) {
			continue
		}
		return size - searchLen + int64(i), buf[i : i+endLen], nil
	}
	return 0, nil, nil
}

// readZip64End follows the zip64 locator preceding the end record.
func readZip64End(r io.ReaderAt, endOff int64) (int64, []byte, error) {
	locOff := endOff - zip64LocatorLen
	if locOff < 0 {
		return 0, nil, nil
	}
	loc := make([]byte, zip64LocatorLen)
	if _, err := r.ReadAt(loc, locOff); err != nil {
		return 0, nil, fmt.Errorf("read zip64 locator: %w", err)
	}
	b := readBuf(loc)
	if b.uint32() != zip64LocatorSig {
		return 0, nil, nil
	}
	b.uint32() // disk
	recorded := b.uint64()

	// The recorded offset ignores any prefix; fall back to the position
	// directly before the locator.
	z64 := make([]byte, zip64EndLen)
	for _, off := range []int64{int64(recorded), locOff - zip64EndLen} { //nolint:gosec // checked below
		if off < 0 || off+zip64EndLen > locOff {
			continue
		}
		if _, err := r.ReadAt(z64, off); err != nil {
			return 0, nil, fmt.Errorf("read zip64 end record: %w", err)
		}
		if binary.LittleEndian.Uint32(z64) == zip64EndSig {
			return off, z64, nil
		}
	}
	return 0, nil, errors.New("zip64 end record not found")
}
