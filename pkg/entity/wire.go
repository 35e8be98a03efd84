package entity

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Encode renders an entity into the canonical binary wire form used both as
// the table store's map key and as the on-disk entity payload in the
// persistence log: a u16 field count followed by each field as
// (field-id:u16, len:u32, bytes), ordered ascending by field-id. Ascending
// order makes the encoding deterministic regardless of map iteration order,
// which is what lets it double as an equality/hash key.
func Encode(e *Entity) []byte {
	ids := make([]uint16, 0, len(e.Values))
	for id := range e.Values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	size := 2
	for _, id := range ids {
		size += 2 + 4 + len(e.Values[id])
	}
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(ids)))
	off += 2
	for _, id := range ids {
		v := e.Values[id]
		binary.LittleEndian.PutUint16(buf[off:], id)
		off += 2
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(v)))
		off += 4
		copy(buf[off:], v)
		off += len(v)
	}
	return buf
}

// Key returns Encode(e) converted to a string, suitable for use as a Go map
// key (map keys must be comparable; strings of bytes are, byte slices are
// not).
func Key(e *Entity) string {
	return string(Encode(e))
}

// Decode parses the canonical binary wire form back into an entity. It does
// not need the originating description: field-ids are self-describing in
// the wire form, and are resolved against a description only by the caller
// (e.g. when replaying the persistence log against a recovered table).
func Decode(buf []byte) (*Entity, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("entity wire form truncated: need 2 bytes for field count, have %d", len(buf))
	}
	count := int(binary.LittleEndian.Uint16(buf))
	off := 2
	values := make(map[uint16][]byte, count)
	for i := 0; i < count; i++ {
		if off+6 > len(buf) {
			return nil, fmt.Errorf("entity wire form truncated: field %d header", i)
		}
		id := binary.LittleEndian.Uint16(buf[off:])
		off += 2
		length := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if off+length > len(buf) {
			return nil, fmt.Errorf("entity wire form truncated: field %d payload", i)
		}
		v := make([]byte, length)
		copy(v, buf[off:off+length])
		off += length
		values[id] = v
	}
	return &Entity{Values: values}, nil
}
