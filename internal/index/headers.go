package index

import (
	"encoding/binary"
	"time"
)

const (
	localHeaderSig    = 0x04034b50
	centralHeaderSig  = 0x02014b50
	endSig            = 0x06054b50
	zip64EndSig       = 0x06064b50
	zip64LocatorSig   = 0x07064b50
	dataDescriptorSig = 0x08074b50
	digitalSigSig     = 0x05054b50
	archiveExtraSig   = 0x08064b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	endLen           = 22
	zip64LocatorLen  = 20
	zip64EndLen      = 56
	maxCommentLen    = 0xffff

	zip64ExtraID   = 0x0001
	extTimeExtraID = 0x5455

	flagEncrypted      = 0x1
	flagDataDescriptor = 0x8

	uint16max = 0xffff
	uint32max = 0xffffffff
)

// terminal reports whether sig ends the local header sequence.
func terminal(sig uint32) bool {
	switch sig {
	case centralHeaderSig, endSig, zip64EndSig, zip64LocatorSig, digitalSigSig, archiveExtraSig:
		return true
	default:
		return false
	}
}

type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func (b *readBuf) sub(n int) readBuf {
	b2 := (*b)[:n]
	*b = (*b)[n:]
	return b2
}

// localHeader is the fixed part of a local file header plus its name.
type localHeader struct {
	flags    uint16
	method   uint16
	modTime  uint16
	modDate  uint16
	crc32    uint32
	csize    uint64
	usize    uint64
	nameLen  int
	extraLen int
	zip64    bool
}

func parseLocalHeader(b readBuf) localHeader {
	b.uint32() // signature
	b.uint16() // version needed
	var h localHeader
	h.flags = b.uint16()
	h.method = b.uint16()
	h.modTime = b.uint16()
	h.modDate = b.uint16()
	h.crc32 = b.uint32()
	h.csize = uint64(b.uint32())
	h.usize = uint64(b.uint32())
	h.nameLen = int(b.uint16())
	h.extraLen = int(b.uint16())
	return h
}

// applyZip64 replaces saturated 32-bit sizes with the values from a zip64
// extra field. The field lists only the values whose header fields are
// saturated, in the order uncompressed, compressed, offset.
func applyZip64(extra readBuf, usize, csize, offset *uint64) bool {
	for len(extra) >= 4 {
		id := extra.uint16()
		size := int(extra.uint16())
		if size > len(extra) {
			return false
		}
		field := extra.sub(size)
		if id != zip64ExtraID {
			continue
		}
		for _, v := range []*uint64{usize, csize, offset} {
			if v == nil || *v != uint32max {
				continue
			}
			if len(field) < 8 {
				return true
			}
			*v = field.uint64()
		}
		return true
	}
	return false
}

// extendedModTime returns the modification time from an extended-timestamp
// extra field, which records Unix seconds and takes precedence over the
// two-second MS-DOS fields.
func extendedModTime(extra readBuf) (time.Time, bool) {
	for len(extra) >= 4 {
		id := extra.uint16()
		size := int(extra.uint16())
		if size > len(extra) {
			return time.Time{}, false
		}
		field := extra.sub(size)
		if id != extTimeExtraID || len(field) < 5 || field[0]&1 == 0 {
			continue
		}
		field = field[1:]
		return time.Unix(int64(int32(field.uint32())), 0).UTC(), true
	}
	return time.Time{}, false
}

// msDosTime converts an MS-DOS date and time into a time in UTC.
func msDosTime(dosDate, dosTime uint16) time.Time {
	if dosDate == 0 && dosTime == 0 {
		return time.Time{}
	}
	return time.Date(
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,
		time.UTC,
	)
}
