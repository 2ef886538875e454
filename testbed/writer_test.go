package testbed

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriterByteOrders(t *testing.T) {
	tests := []struct {
		order byteOrder
		want  []byte
	}{
		{binary.LittleEndian, []byte{0x01, 0x02, 0x01, 0x02, 0x03, 0x04, 0xfe, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{binary.BigEndian, []byte{0x02, 0x01, 0x04, 0x03, 0x02, 0x01, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe}},
	}
	for _, tt := range tests {
		w := &writer{order: tt.order}
		w.u16(0x0201)
		w.u32(0x04030201)
		w.i64(-2)
		if !bytes.Equal(w.buf, tt.want) {
			t.Errorf("%s: % x, want % x", tt.order, w.buf, tt.want)
		}
	}
}

func TestWriterAlignedString(t *testing.T) {
	w := &writer{order: binary.LittleEndian}
	w.u8(7)
	w.align(4)
	w.alignedString("abcde")
	want := []byte{7, 0, 0, 0, 5, 0, 0, 0, 'a', 'b', 'c', 'd', 'e', 0, 0, 0}
	if !bytes.Equal(w.buf, want) {
		t.Fatalf("% x, want % x", w.buf, want)
	}
}
