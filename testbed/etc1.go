package testbed

import (
	"encoding/binary"
	"image/color"
)

// ETC1IndividualBlock packs an individual-mode block. c0 and c1 are 4-bit
// RGB colors for the two sub-blocks, t0 and t1 the modifier codewords and
// indices the 2-bit modifier index of each pixel numbered column-major.
func ETC1IndividualBlock(c0, c1 [3]uint8, t0, t1 uint8, flip bool, indices [16]uint8) uint64 {
	var v uint64
	for c := uint(0); c < 3; c++ {
		v |= uint64(c0[c]&15) << (60 - c*8)
		v |= uint64(c1[c]&15) << (56 - c*8)
	}
	return v | etc1Tail(false, t0, t1, flip, indices)
}

// ETC1DifferentialBlock packs a differential-mode block with a 5-bit base and
// a signed 3-bit delta per channel. Out-of-range deltas are packed as given.
func ETC1DifferentialBlock(base [3]uint8, delta [3]int8, t0, t1 uint8, flip bool, indices [16]uint8) uint64 {
	var v uint64
	for c := uint(0); c < 3; c++ {
		v |= uint64(base[c]&31) << (59 - c*8)
		v |= uint64(uint8(delta[c])&7) << (56 - c*8)
	}
	return v | etc1Tail(true, t0, t1, flip, indices)
}

func etc1Tail(diff bool, t0, t1 uint8, flip bool, indices [16]uint8) uint64 {
	var v uint64
	v |= uint64(t0&7) << 37
	v |= uint64(t1&7) << 34
	if diff {
		v |= 1 << 33
	}
	if flip {
		v |= 1 << 32
	}
	for i := uint(0); i < 16; i++ {
		idx := indices[i] & 3
		v |= uint64(idx&1) << i
		v |= uint64(idx>>1) << (16 + i)
	}
	return v
}

// SolidETC1Block encodes a block whose 16 pixels all decode to SolidColor(r4, g4, b4).
func SolidETC1Block(r4, g4, b4 uint8) uint64 {
	c := [3]uint8{r4, g4, b4}
	return ETC1IndividualBlock(c, c, 0, 0, false, [16]uint8{})
}

// SolidColor is the color SolidETC1Block decodes to: the expanded 4-bit value
// plus the smallest positive modifier of table 0.
func SolidColor(r4, g4, b4 uint8) color.NRGBA {
	expand := func(v uint8) uint8 {
		e := int(v&15)<<4 | int(v&15)
		e += 2
		if e > 255 {
			e = 255
		}
		return uint8(e)
	}
	return color.NRGBA{R: expand(r4), G: expand(g4), B: expand(b4), A: 0xff}
}

// ETC1Texture lays out blocks for a width x height texture in storage order.
func ETC1Texture(width, height int, block func(bx, by int) uint64) []byte {
	bw, bh := (width+3)/4, (height+3)/4
	out := make([]byte, 0, bw*bh*8)
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			out = binary.BigEndian.AppendUint64(out, block(bx, by))
		}
	}
	return out
}

// SolidETC1Texture fills a whole texture with SolidETC1Block(r4, g4, b4).
func SolidETC1Texture(width, height int, r4, g4, b4 uint8) []byte {
	blk := SolidETC1Block(r4, g4, b4)
	return ETC1Texture(width, height, func(int, int) uint64 { return blk })
}
