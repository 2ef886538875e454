package texture

import (
	"bytes"
	"errors"
	"image/color"
	"io"
	"testing"

	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/memory"
	"github.com/spaghettifunk/portrait/engine/resources"
	"github.com/spaghettifunk/portrait/testbed"
)

func newTestDecoder(t *testing.T, workers int) (*Decoder, *memory.BufferPool) {
	t.Helper()
	pool, err := memory.NewBufferPool(memory.BufferPoolConfig{
		MaxBufferSize:       64 * 1024 * 1024,
		MaxBuffersPerBucket: 3,
	})
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}
	d, err := NewDecoder(pool, DecoderConfig{Workers: workers})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d, pool
}

func textureAsset(name string, w, h int, data []byte) *resources.TextureAsset {
	return &resources.TextureAsset{
		ClassID: resources.ClassIDTexture2D,
		Name:    name,
		Width:   uint32(w),
		Height:  uint32(h),
		Format:  resources.TextureFormatETCRGB4,
		Data:    io.NewSectionReader(bytes.NewReader(data), 0, int64(len(data))),
	}
}

func pixelAt(img *resources.DecodedImage, x, y int) color.NRGBA {
	k := 4 * (y*int(img.Width) + x)
	p := img.Pixels[k : k+4]
	return color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
}

func TestDecodeSolidColor(t *testing.T) {
	sizes := []struct{ w, h int }{
		{512, 512},
		{516, 520},
		{513, 515},
		{5, 3},
	}
	for _, workers := range []int{1, 4} {
		d, pool := newTestDecoder(t, workers)
		for _, sz := range sizes {
			data := testbed.SolidETC1Texture(sz.w, sz.h, 8, 4, 2)
			want := testbed.SolidColor(8, 4, 2)

			img, err := d.Decode(textureAsset("solid", sz.w, sz.h, data))
			if err != nil {
				t.Fatalf("%dx%d: decode: %v", sz.w, sz.h, err)
			}
			if int(img.Width) != sz.w || int(img.Height) != sz.h || len(img.Pixels) != sz.w*sz.h*4 {
				t.Fatalf("%dx%d: got %dx%d with %d bytes", sz.w, sz.h, img.Width, img.Height, len(img.Pixels))
			}
			for y := 0; y < sz.h; y++ {
				for x := 0; x < sz.w; x++ {
					if got := pixelAt(img, x, y); got != want {
						t.Fatalf("%dx%d: pixel (%d,%d) = %v, want %v", sz.w, sz.h, x, y, got, want)
					}
				}
			}
			img.Release()
			if pool.Outstanding() != 0 {
				t.Fatalf("%dx%d: outstanding = %d after release", sz.w, sz.h, pool.Outstanding())
			}
		}
	}
}

func TestDecodeFlipsRows(t *testing.T) {
	d, _ := newTestDecoder(t, 1)
	colors := map[[2]int][3]uint8{
		{0, 0}: {15, 0, 0},
		{1, 0}: {0, 15, 0},
		{0, 1}: {0, 0, 15},
		{1, 1}: {15, 15, 0},
	}
	data := testbed.ETC1Texture(8, 7, func(bx, by int) uint64 {
		c := colors[[2]int{bx, by}]
		return testbed.SolidETC1Block(c[0], c[1], c[2])
	})
	img, err := d.Decode(textureAsset("quad", 8, 7, data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer img.Release()

	// storage rows 4..6 come from block row 1 and end up on top
	checks := []struct {
		x, y  int
		block [2]int
	}{
		{0, 0, [2]int{0, 1}},
		{7, 2, [2]int{1, 1}},
		{0, 3, [2]int{0, 0}},
		{7, 6, [2]int{1, 0}},
	}
	for _, c := range checks {
		src := colors[c.block]
		want := testbed.SolidColor(src[0], src[1], src[2])
		if got := pixelAt(img, c.x, c.y); got != want {
			t.Errorf("pixel (%d,%d) = %v, want %v from block %v", c.x, c.y, got, want, c.block)
		}
	}
}

func TestDecodeFailuresReturnBuffers(t *testing.T) {
	d, pool := newTestDecoder(t, 2)
	overflow := testbed.ETC1DifferentialBlock([3]uint8{31, 31, 31}, [3]int8{3, 0, 0}, 0, 0, false, [16]uint8{})

	tests := []struct {
		name  string
		asset *resources.TextureAsset
		want  error
	}{
		{
			name:  "short data",
			asset: textureAsset("short", 600, 600, make([]byte, ETC1DataSize(600, 600)-8)),
			want:  core.ErrMalformedTextureData,
		},
		{
			name: "bad block",
			asset: textureAsset("bad", 600, 600, testbed.ETC1Texture(600, 600, func(bx, by int) uint64 {
				if bx == 100 && by == 100 {
					return overflow
				}
				return testbed.SolidETC1Block(1, 1, 1)
			})),
			want: core.ErrMalformedTextureData,
		},
		{
			name: "unsupported format",
			asset: func() *resources.TextureAsset {
				a := textureAsset("dxt", 4, 4, make([]byte, 8))
				a.Format = resources.TextureFormatDXT1
				return a
			}(),
			want: core.ErrUnsupportedTextureFormat,
		},
		{
			name:  "zero size",
			asset: textureAsset("empty", 0, 4, nil),
			want:  core.ErrMalformedTextureData,
		},
		{
			name:  "nil asset",
			asset: nil,
			want:  core.ErrMalformedTextureData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := d.Decode(tt.asset)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if img != nil {
				t.Fatalf("expected no image on failure")
			}
			if pool.Outstanding() != 0 {
				t.Fatalf("outstanding = %d after failure", pool.Outstanding())
			}
		})
	}
}

func TestUnsupportedFormatIsMalformed(t *testing.T) {
	if !errors.Is(core.ErrUnsupportedTextureFormat, core.ErrMalformedTextureData) {
		t.Fatalf("unsupported format must classify as malformed texture data")
	}
}
