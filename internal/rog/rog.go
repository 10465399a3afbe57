package rog

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Common errors returned by this package.
var (
	ErrEmptyGeometry  = errors.New("rog: empty geometry")
	ErrOffsetMismatch = errors.New("rog: stored row does not match object")
	ErrUnresolved     = errors.New("rog: level does not resolve to a stored geometry")
	ErrWriterClosed   = errors.New("rog: quad writer closed")
)

// IsEmpty reports whether g has no vertices.
func IsEmpty(g orb.Geometry) bool {
	if g == nil {
		return true
	}
	n, _ := CountPoints(g)
	return n == 0
}

// MarshalGeometry encodes g as little-endian WKB.
func MarshalGeometry(g orb.Geometry) ([]byte, error) {
	return wkb.Marshal(g)
}

// UnmarshalGeometry decodes WKB bytes stored in a block.
func UnmarshalGeometry(b []byte) (orb.Geometry, error) {
	return wkb.Unmarshal(b)
}
