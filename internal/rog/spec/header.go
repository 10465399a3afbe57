// Package spec defines the on-disk layout of a ROG (read-only geometry) file
// and the low-level binary primitives used to read and write it.
//
// A ROG file is laid out as:
//
//	header | object count | object records... | block count | block offsets... | blocks...
//
// All integers and floats are little-endian.
package spec

import (
	"encoding/binary"
	"errors"
)

// Version is the format version written by this package.
const Version int32 = 2

// HeaderLength is the fixed size of the binary header.
const HeaderLength = 9

var (
	ErrInvalidHeader      = errors.New("rog: invalid file header")
	ErrUnsupportedVersion = errors.New("rog: unsupported format version")
	ErrCorruptRecord      = errors.New("rog: corrupt record")
)

// Header is the fixed-size file header.
type Header struct {
	Version               int32
	NoOverlappingPolygons bool
	MinZoom               int32
}

// SerializeHeader converts a header to bytes.
func SerializeHeader(h Header) []byte {
	b := make([]byte, HeaderLength)
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.Version))
	if h.NoOverlappingPolygons {
		b[4] = 0x1
	}
	binary.LittleEndian.PutUint32(b[5:9], uint32(h.MinZoom))
	return b
}

// DeserializeHeader parses a binary header.
func DeserializeHeader(d []byte) (Header, error) {
	h := Header{}
	if len(d) < HeaderLength {
		return h, ErrInvalidHeader
	}
	h.Version = int32(binary.LittleEndian.Uint32(d[0:4]))
	if d[4] > 1 {
		return h, ErrInvalidHeader
	}
	h.NoOverlappingPolygons = d[4] == 0x1
	h.MinZoom = int32(binary.LittleEndian.Uint32(d[5:9]))
	if h.Version != Version {
		return h, ErrUnsupportedVersion
	}
	if h.MinZoom < 0 {
		return h, ErrInvalidHeader
	}
	return h, nil
}
