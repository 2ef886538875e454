package loaders

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/portrait/engine/core"
)

// endianReader is a cursor over an in-memory container. Every read is bounds
// checked and fails with ErrMalformedContainer instead of panicking.
type endianReader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func newEndianReader(buf []byte, order binary.ByteOrder) *endianReader {
	return &endianReader{buf: buf, order: order}
}

func (r *endianReader) Len() int {
	return len(r.buf) - r.pos
}

func (r *endianReader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return fmt.Errorf("%w: seek to %d outside %d bytes", core.ErrMalformedContainer, pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

func (r *endianReader) Align(n int) error {
	if rem := r.pos % n; rem != 0 {
		return r.Skip(n - rem)
	}
	return nil
}

func (r *endianReader) Skip(n int) error {
	_, err := r.Bytes(n)
	return err
}

// Bytes returns the next n bytes without copying.
func (r *endianReader) Bytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", core.ErrMalformedContainer, n, r.pos, r.Len())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *endianReader) U8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *endianReader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

func (r *endianReader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *endianReader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *endianReader) U64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *endianReader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

func (r *endianReader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *endianReader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// Count reads an int32 element count and rejects values that cannot fit in
// the remaining input, given a minimum element size.
func (r *endianReader) Count(elemSize int) (int, error) {
	n, err := r.I32()
	if err != nil {
		return 0, err
	}
	if n < 0 || (elemSize > 0 && int(n) > r.Len()/elemSize) {
		return 0, fmt.Errorf("%w: bad element count %d at offset %d", core.ErrMalformedContainer, n, r.pos-4)
	}
	return int(n), nil
}

// CString reads a NUL terminated string.
func (r *endianReader) CString() (string, error) {
	i := bytes.IndexByte(r.buf[r.pos:], 0)
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", core.ErrMalformedContainer, r.pos)
	}
	s := string(r.buf[r.pos : r.pos+i])
	r.pos += i + 1
	return s, nil
}

// AlignedString reads an int32 length prefixed string followed by padding to 4 bytes.
func (r *endianReader) AlignedString() (string, error) {
	n, err := r.Count(1)
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), r.Align(4)
}
