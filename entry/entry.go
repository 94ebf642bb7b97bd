// Package entry encodes and decodes individual log records.
//
// An entry is the atomic unit written to a page: a one byte type, an 8 byte
// big endian timestamp, 8 byte big endian key length, 8 byte big endian value
// length, then the key and value bytes. The 25 byte block before the key is
// referred to as the metadata block.
package entry

import (
	"encoding/binary"
)

// Type distinguishes a live write from a tombstone.
type Type uint8

const (
	Put Type = iota
	Delete
)

// MetadataLen is the size in bytes of the fixed header that precedes the key
// and value: 1 (type) + 8 (time) + 8 (key length) + 8 (value length).
const MetadataLen = 1 + 8 + 8 + 8

// Entry is one decoded log record.
type Entry struct {
	Type  Type
	Time  uint64
	Key   []byte
	Value []byte
}

// Len returns the encoded size of e in bytes.
func (e *Entry) Len() int {
	return MetadataLen + len(e.Key) + len(e.Value)
}

// New builds a Put or Delete entry for key/value with the given timestamp
// (seconds since the Unix epoch). now must never be zero: a zero timestamp
// is reserved as the end-of-entries sentinel, see Decode.
func New(t Type, key, value []byte, now uint64) *Entry {
	return &Entry{
		Type:  t,
		Time:  now,
		Key:   key,
		Value: value,
	}
}

// Encode writes e to its on-disk representation.
func Encode(e *Entry) []byte {
	buf := make([]byte, e.Len())
	buf[0] = byte(e.Type)
	binary.BigEndian.PutUint64(buf[1:9], e.Time)
	binary.BigEndian.PutUint64(buf[9:17], uint64(len(e.Key)))
	binary.BigEndian.PutUint64(buf[17:25], uint64(len(e.Value)))
	copy(buf[25:25+len(e.Key)], e.Key)
	copy(buf[25+len(e.Key):], e.Value)
	return buf
}

// Decode reads an entry starting at offset within buf. ok is false when:
//   - fewer than MetadataLen bytes remain in buf from offset,
//   - the metadata block is the all-zero end-of-entries sentinel, or
//   - 25+keyLen+valueLen would extend past the end of buf.
//
// Decode never allocates beyond what it returns: Key and Value are copies so
// callers may retain them after the backing page is reused.
func Decode(buf []byte, offset int) (e *Entry, ok bool) {
	if offset < 0 || offset+MetadataLen > len(buf) {
		return nil, false
	}

	meta := buf[offset : offset+MetadataLen]
	t := meta[0]
	time := binary.BigEndian.Uint64(meta[1:9])
	keyLen := binary.BigEndian.Uint64(meta[9:17])
	valueLen := binary.BigEndian.Uint64(meta[17:25])

	if time == 0 && keyLen == 0 && valueLen == 0 {
		return nil, false
	}

	start := offset + MetadataLen
	end := start + int(keyLen) + int(valueLen)
	if end > len(buf) || end < start {
		return nil, false
	}

	key := make([]byte, keyLen)
	copy(key, buf[start:start+int(keyLen)])
	value := make([]byte, valueLen)
	copy(value, buf[start+int(keyLen):end])

	return &Entry{
		Type:  Type(t),
		Time:  time,
		Key:   key,
		Value: value,
	}, true
}
