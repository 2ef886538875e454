package texture

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/memory"
	"github.com/spaghettifunk/portrait/engine/resources"
)

type DecoderConfig struct {
	/** @brief Goroutines used for block rows of a single texture. 1 decodes sequentially. */
	Workers int
}

// Decoder turns ETC1 texture assets into flipped BGRA32 images. Scratch and
// output buffers come from the shared pool.
type Decoder struct {
	pool    *memory.BufferPool
	workers int
}

func NewDecoder(pool *memory.BufferPool, config DecoderConfig) (*Decoder, error) {
	if pool == nil {
		err := fmt.Errorf("func NewDecoder - a buffer pool is required")
		core.LogError(err.Error())
		return nil, err
	}
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	return &Decoder{
		pool:    pool,
		workers: workers,
	}, nil
}

// Decode reads the asset's compressed data, decompresses it and flips it so
// row 0 is the visual top. The returned image must be released by the caller.
func (d *Decoder) Decode(asset *resources.TextureAsset) (*resources.DecodedImage, error) {
	if asset == nil || asset.Data == nil {
		return nil, fmt.Errorf("%w: texture has no data", core.ErrMalformedTextureData)
	}
	if asset.Format != resources.TextureFormatUnknown && asset.Format != resources.TextureFormatETCRGB4 {
		return nil, fmt.Errorf("%w: %q uses format %d", core.ErrUnsupportedTextureFormat, asset.Name, asset.Format)
	}

	width, height := int(asset.Width), int(asset.Height)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %q has invalid dimensions %dx%d", core.ErrMalformedTextureData, asset.Name, width, height)
	}
	need := ETC1DataSize(width, height)
	if size := asset.Data.Size(); size < int64(need) {
		return nil, fmt.Errorf("%w: %q has %d bytes, %dx%d needs %d", core.ErrMalformedTextureData, asset.Name, size, width, height, need)
	}

	arena := d.pool.NewArena()
	defer arena.Release()

	raw, err := arena.Rent(need)
	if err != nil {
		return nil, err
	}
	if n, err := asset.Data.ReadAt(raw, 0); n < need {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: reading %q: %w", core.ErrMalformedTextureData, asset.Name, err)
	}

	stride := width * 4
	pixels, err := arena.Rent(stride * height)
	if err != nil {
		return nil, err
	}
	core.LogDebug("decoding %q %dx%d (%s compressed, %s decoded)", asset.Name, width, height,
		humanize.IBytes(uint64(need)), humanize.IBytes(uint64(len(pixels))))

	if err := DecodeETC1(pixels, raw, width, height, d.workers); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", asset.Name, err)
	}

	row, err := arena.Rent(stride)
	if err != nil {
		return nil, err
	}
	flipVertical(pixels, stride, height, row)

	arena.Detach(pixels)
	return resources.NewDecodedImage(uint32(width), uint32(height), pixels, d.pool.Return), nil
}
