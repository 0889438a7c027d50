// Package cbormap encodes CBOR maps whose entries keep insertion order.
//
// Ledger metadata and transaction bodies are hashed over their exact bytes,
// so the encoder must not reorder keys the way a Go map would.
package cbormap

import (
	"encoding/binary"
	"fmt"

	"github.com/blinklabs-io/gouroboros/cbor"
)

// CBOR major types used by Header.
const (
	MajorArray byte = 4
	MajorMap   byte = 5
)

// Pair is a single map entry.
type Pair struct {
	Key   any
	Value any
}

// Map is an ordered CBOR map. It implements cbor.Marshaler so it can be
// nested inside values passed to cbor.Encode.
type Map []Pair

// Add appends an entry and returns the extended map.
func (m Map) Add(key, value any) Map {
	return append(m, Pair{Key: key, Value: value})
}

// MarshalCBOR encodes the map header followed by each key and value in order.
func (m Map) MarshalCBOR() ([]byte, error) {
	buf := Header(MajorMap, uint64(len(m)))
	for i, p := range m {
		k, err := cbor.Encode(p.Key)
		if err != nil {
			return nil, fmt.Errorf("encode key %d: %w", i, err)
		}
		v, err := cbor.Encode(p.Value)
		if err != nil {
			return nil, fmt.Errorf("encode value for key %v: %w", p.Key, err)
		}
		buf = append(buf, k...)
		buf = append(buf, v...)
	}
	return buf, nil
}

// Header returns the CBOR head for a major type and argument using the
// shortest form.
func Header(major byte, n uint64) []byte {
	mt := major << 5
	switch {
	case n < 24:
		return []byte{mt | byte(n)}
	case n <= 0xff:
		return []byte{mt | 24, byte(n)}
	case n <= 0xffff:
		return binary.BigEndian.AppendUint16([]byte{mt | 25}, uint16(n))
	case n <= 0xffffffff:
		return binary.BigEndian.AppendUint32([]byte{mt | 26}, uint32(n))
	default:
		return binary.BigEndian.AppendUint64([]byte{mt | 27}, n)
	}
}
