package texture

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/remeh/sizedwaitgroup"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/math"
)

// ETC1BlockSize is the number of bytes of one compressed 4x4 block.
const ETC1BlockSize = 8

// Intensity modifiers indexed by codeword and by the 2-bit pixel index
// (msb<<1 | lsb).
var etc1Modifiers = [8][4]int{
	{2, 8, -2, -8},
	{5, 17, -5, -17},
	{9, 29, -9, -29},
	{13, 42, -13, -42},
	{18, 60, -18, -60},
	{24, 80, -24, -80},
	{33, 106, -33, -106},
	{47, 183, -47, -183},
}

var etc1Deltas = [8]int{0, 1, 2, 3, -4, -3, -2, -1}

// Sub-block of each pixel, pixels numbered column-major (x*4 + y).
var etc1SubBlocks = [2][16]uint8{
	// flip == 0: two 2x4 halves side by side
	{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1},
	// flip == 1: two 4x2 halves stacked
	{0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1},
}

// ETC1DataSize returns the number of compressed bytes for the top mip level.
func ETC1DataSize(width, height int) int {
	return ((width + 3) / 4) * ((height + 3) / 4) * ETC1BlockSize
}

// ┏━━━━━━━━━━━┳━━━━━━━━━━━┳━━━━━━━━━━━┳━━━━━━━━━━━┳━━━━━━━━━━━┳━━━━━━━━━━━┳━━━━━━━━┳━━━━━━━━┳━━┳━━┓
// ┃    R₀     ┃    R₁     ┃    G₀     ┃    G₁     ┃    B₀     ┃    B₁     ┃   C₀   ┃   C₁   ┃df┃fp┃
// ┣━━┯━━┯━━┯━━╋━━┯━━┯━━┯━━╋━━┯━━┯━━┯━━╋━━┯━━┯━━┯━━╋━━┯━━┯━━┯━━╋━━┯━━┯━━┯━━╋━━┯━━┯━━╋━━┯━━┯━━╋━━╋━━┫
// ┃₆₃│₆₂│₆₁│₆₀┃₅₉│₅₈│₅₇│₅₆┃₅₅│₅₄│₅₃│₅₂┃₅₁│₅₀│₄₉│₄₈┃₄₇│₄₆│₄₅│₄₄┃₄₃│₄₂│₄₁│₄₀┃₃₉│₃₈│₃₇┃₃₆│₃₅│₃₄┃₃₃┃₃₂┃
// ┖──┴──┴──┴──┸──┴──┴──┴──┸──┴──┴──┴──┸──┴──┴──┴──┸──┴──┴──┴──┸──┴──┴──┴──┸──┴──┴──┸──┴──┴──┸──┸──┚
//
// In differential mode each channel is a 5-bit base followed by a 3-bit
// signed delta for the second sub-block. The low 32 bits hold the pixel
// index lsbs (bits 0-15) and msbs (bits 16-31).
func decodeETC1Block(v uint64, out *[16][4]byte) error {
	var base [2][3]int

	diff := (v >> 33) & 1
	flip := (v >> 32) & 1
	for c := uint(0); c < 3; c++ {
		if diff == 0 {
			a := (v >> (60 - c*8)) & 15
			b := (v >> (56 - c*8)) & 15
			base[0][c] = int((a << 4) | a)
			base[1][c] = int((b << 4) | b)
			continue
		}
		a := int((v >> (59 - c*8)) & 31)
		b := a + etc1Deltas[(v>>(56-c*8))&7]
		if b < 0 || b > 31 {
			return fmt.Errorf("%w: differential color out of range", core.ErrMalformedTextureData)
		}
		base[0][c] = (a << 3) | (a >> 2)
		base[1][c] = (b << 3) | (b >> 2)
	}

	tables := [2]*[4]int{
		&etc1Modifiers[(v>>37)&7],
		&etc1Modifiers[(v>>34)&7],
	}
	subBlocks := &etc1SubBlocks[flip]

	for i := uint(0); i < 16; i++ {
		sb := subBlocks[i]
		idx := ((v >> i) & 1) | ((v >> (15 + i)) & 2)
		shift := tables[sb][idx]
		px := &out[i]
		// BGRA
		px[0] = math.ClampByte(base[sb][2]+shift)
		px[1] = math.ClampByte(base[sb][1]+shift)
		px[2] = math.ClampByte(base[sb][0]+shift)
		px[3] = 0xff
	}
	return nil
}

// decodeETC1Row decodes block row by into dst, clipping pixels outside width x height.
func decodeETC1Row(dst, src []byte, width, height, by int) error {
	var block [16][4]byte
	blocksWide := (width + 3) / 4
	off := by * blocksWide * ETC1BlockSize
	for bx := 0; bx < blocksWide; bx++ {
		v := binary.BigEndian.Uint64(src[off : off+ETC1BlockSize])
		off += ETC1BlockSize
		if err := decodeETC1Block(v, &block); err != nil {
			return fmt.Errorf("block (%d,%d): %w", bx, by, err)
		}
		for x := 0; x < 4; x++ {
			px := bx*4 + x
			if px >= width {
				break
			}
			for y := 0; y < 4; y++ {
				py := by*4 + y
				if py >= height {
					break
				}
				k := 4 * (py*width + px)
				copy(dst[k:k+4], block[x*4+y][:])
			}
		}
	}
	return nil
}

// DecodeETC1 decompresses width x height ETC1 data from src into dst as BGRA32
// in storage row order. Block rows are spread over up to workers goroutines.
// A differential block whose second base color leaves the 5-bit range is
// rejected with ErrMalformedTextureData rather than wrapped.
func DecodeETC1(dst, src []byte, width, height, workers int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", core.ErrMalformedTextureData, width, height)
	}
	if need := ETC1DataSize(width, height); len(src) < need {
		return fmt.Errorf("%w: have %d bytes, %dx%d needs %d", core.ErrMalformedTextureData, len(src), width, height, need)
	}
	if len(dst) < width*height*4 {
		return fmt.Errorf("%w: destination holds %d bytes, need %d", core.ErrMalformedTextureData, len(dst), width*height*4)
	}

	blocksHigh := (height + 3) / 4
	if workers <= 1 || blocksHigh < 2*workers {
		for by := 0; by < blocksHigh; by++ {
			if err := decodeETC1Row(dst, src, width, height, by); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	wg := sizedwaitgroup.New(workers)
	for by := 0; by < blocksHigh; by++ {
		wg.Add()
		go func(by int) {
			defer wg.Done()
			if err := decodeETC1Row(dst, src, width, height, by); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(by)
	}
	wg.Wait()
	return firstErr
}
