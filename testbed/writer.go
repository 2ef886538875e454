package testbed

import (
	"encoding/binary"
)

// byteOrder is satisfied by binary.LittleEndian and binary.BigEndian.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// writer appends fixed-size values in one byte order. Alignment is relative
// to the start of the buffer.
type writer struct {
	buf   []byte
	order byteOrder
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = w.order.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = w.order.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = w.order.AppendUint64(w.buf, v) }
func (w *writer) i16(v int16)  { w.u16(uint16(v)) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }
func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) cstring(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *writer) align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) alignedString(s string) {
	w.i32(int32(len(s)))
	w.buf = append(w.buf, s...)
	w.align(4)
}
