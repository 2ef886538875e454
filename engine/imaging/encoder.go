package imaging

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
	"golang.org/x/image/tiff"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

func (f Format) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

/** @brief The configuration for the image encoder. */
type EncoderConfig struct {
	Format Format
	/** @brief JPEG quality, 1 to 100. */
	Quality int
	/** @brief Longest side of the output. Larger composites are downscaled. 0 keeps the size. */
	MaxDimension int
}

type Encoder struct {
	config EncoderConfig
	encode imgio.Encoder
}

func NewEncoder(config EncoderConfig) (*Encoder, error) {
	if config.Format == "" {
		config.Format = FormatPNG
	}
	if config.MaxDimension < 0 {
		err := fmt.Errorf("func NewEncoder - config.MaxDimension must be >= 0")
		core.LogError(err.Error())
		return nil, err
	}

	e := &Encoder{config: config}
	switch config.Format {
	case FormatPNG:
		e.encode = imgio.PNGEncoder()
	case FormatJPEG:
		if config.Quality < 1 || config.Quality > 100 {
			err := fmt.Errorf("func NewEncoder - jpeg quality %d outside 1..100", config.Quality)
			core.LogError(err.Error())
			return nil, err
		}
		e.encode = imgio.JPEGEncoder(config.Quality)
	case FormatBMP:
		e.encode = imgio.BMPEncoder()
	case FormatTIFF:
		e.encode = func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}
	default:
		err := fmt.Errorf("func NewEncoder - unknown format %q", config.Format)
		core.LogError(err.Error())
		return nil, err
	}
	return e, nil
}

func (e *Encoder) Format() Format {
	return e.config.Format
}

// Encode writes img in the configured format. img is top-down already and is
// written as is, apart from the optional downscale.
func (e *Encoder) Encode(w io.Writer, img *resources.CompositeImage) error {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return fmt.Errorf("nothing to encode")
	}
	var out image.Image = img.NRGBA()
	if w2, h2, ok := e.fit(int(img.Width), int(img.Height)); ok {
		core.LogDebug("downscaling %dx%d to %dx%d", img.Width, img.Height, w2, h2)
		out = transform.Resize(out, w2, h2, transform.Lanczos)
	}
	return e.encode(w, out)
}

func (e *Encoder) EncodeBytes(img *resources.CompositeImage) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fit returns the downscaled size when the longest side exceeds MaxDimension.
func (e *Encoder) fit(width, height int) (int, int, bool) {
	limit := e.config.MaxDimension
	if limit <= 0 || (width <= limit && height <= limit) {
		return width, height, false
	}
	if width >= height {
		return limit, max(1, height*limit/width), true
	}
	return max(1, width*limit/height), limit, true
}
