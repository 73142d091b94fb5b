// Package codec is a small bounds-checked layer over
// github.com/tchajed/marshal for the records the directory persists.
// marshal panics on short input; Reader turns that into an error
// so stored records can be treated as untrusted.
package codec

import (
	"errors"

	"github.com/tchajed/marshal"
)

// ErrMalformed indicates a truncated record or trailing bytes.
var ErrMalformed = errors.New("[codec] Malformed record")

// WriteInt appends x.
func WriteInt(b []byte, x uint64) []byte {
	return marshal.WriteInt(b, x)
}

// WriteBool appends x.
func WriteBool(b []byte, x bool) []byte {
	return marshal.WriteBool(b, x)
}

// WriteBytes appends data prefixed by its length.
func WriteBytes(b, data []byte) []byte {
	b = marshal.WriteInt(b, uint64(len(data)))
	return marshal.WriteBytes(b, data)
}

// WriteFixed appends data without a length prefix.
func WriteFixed(b, data []byte) []byte {
	return marshal.WriteBytes(b, data)
}

// WriteSlice appends a length prefixed list, encoding each element with f.
func WriteSlice[T any](b []byte, s []T, f func([]byte, T) []byte) []byte {
	b = marshal.WriteInt(b, uint64(len(s)))
	for _, x := range s {
		b = f(b, x)
	}
	return b
}

// Reader decodes a record. After the first failure every read
// returns a zero value and Done reports ErrMalformed.
type Reader struct {
	b   []byte
	bad bool
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Int reads a uint64.
func (r *Reader) Int() uint64 {
	if r.bad || len(r.b) < 8 {
		r.bad = true
		return 0
	}
	x, rest := marshal.ReadInt(r.b)
	r.b = rest
	return x
}

// Bool reads a bool.
func (r *Reader) Bool() bool {
	if r.bad || len(r.b) < 1 {
		r.bad = true
		return false
	}
	x, rest := marshal.ReadBool(r.b)
	r.b = rest
	return x
}

// Fixed reads n bytes.
func (r *Reader) Fixed(n uint64) []byte {
	if r.bad || uint64(len(r.b)) < n {
		r.bad = true
		return nil
	}
	x, rest := marshal.ReadBytesCopy(r.b, n)
	r.b = rest
	return x
}

// Bytes reads a length prefixed byte slice.
func (r *Reader) Bytes() []byte {
	n := r.Int()
	return r.Fixed(n)
}

// Len reads a list length. Lists longer than the remaining input
// are rejected without allocating.
func (r *Reader) Len() int {
	n := r.Int()
	if n > uint64(len(r.b)) {
		r.bad = true
		return 0
	}
	return int(n)
}

// Done returns ErrMalformed if any read failed or input remains.
func (r *Reader) Done() error {
	if r.bad || len(r.b) != 0 {
		return ErrMalformed
	}
	return nil
}
