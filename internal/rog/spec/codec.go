package spec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// MaxBlobLength bounds any length-prefixed byte array read from a file.
const MaxBlobLength = 1 << 30

// Encoder writes little-endian primitives and remembers the first error,
// so a record can be written without checking every call.
type Encoder struct {
	w   io.Writer
	n   int64
	err error
	buf [8]byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Err returns the first write error, if any.
func (e *Encoder) Err() error { return e.err }

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int64 { return e.n }

func (e *Encoder) Raw(b []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(b)
	e.n += int64(n)
	e.err = err
}

func (e *Encoder) Uint8(v uint8) {
	e.buf[0] = v
	e.Raw(e.buf[:1])
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint8(1)
	} else {
		e.Uint8(0)
	}
}

func (e *Encoder) Int32(v int32) {
	binary.LittleEndian.PutUint32(e.buf[:4], uint32(v))
	e.Raw(e.buf[:4])
}

func (e *Encoder) Int64(v int64) {
	binary.LittleEndian.PutUint64(e.buf[:8], uint64(v))
	e.Raw(e.buf[:8])
}

func (e *Encoder) Float64(v float64) {
	binary.LittleEndian.PutUint64(e.buf[:8], math.Float64bits(v))
	e.Raw(e.buf[:8])
}

// Blob writes a length-prefixed byte array. A nil or empty slice is written
// as length 0.
func (e *Encoder) Blob(b []byte) {
	e.Int32(int32(len(b)))
	e.Raw(b)
}

// BlobSize is the encoded size of a length-prefixed byte array.
func BlobSize(b []byte) int {
	return 4 + len(b)
}

// Decoder is the reading counterpart of Encoder.
type Decoder struct {
	r   io.Reader
	err error
	buf [8]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Err returns the first read error, if any.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) read(n int) []byte {
	if d.err != nil {
		return nil
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.err = fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		return nil
	}
	return d.buf[:n]
}

func (d *Decoder) Uint8() uint8 {
	b := d.read(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Bool() bool {
	v := d.Uint8()
	if v > 1 && d.err == nil {
		d.err = fmt.Errorf("%w: invalid bool %d", ErrCorruptRecord, v)
	}
	return v == 1
}

func (d *Decoder) Int32() int32 {
	b := d.read(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (d *Decoder) Int64() int64 {
	b := d.read(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (d *Decoder) Float64() float64 {
	b := d.read(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Blob reads a length-prefixed byte array. Length 0 yields nil.
func (d *Decoder) Blob() []byte {
	n := d.Int32()
	if d.err != nil {
		return nil
	}
	if n < 0 || n > MaxBlobLength {
		d.err = fmt.Errorf("%w: blob length %d", ErrCorruptRecord, n)
		return nil
	}
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		return nil
	}
	return b
}
