package imaging

import (
	"fmt"

	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
)

// Composite merges a color layer with a separate alpha layer. Color channels
// come from color, alpha from the red channel of alpha. Both inputs are
// released before Composite returns, whatever the outcome. The result owns a
// fresh buffer.
func Composite(color, alpha *resources.DecodedImage) (*resources.CompositeImage, error) {
	defer color.Release()
	defer alpha.Release()

	if color == nil || alpha == nil {
		return nil, fmt.Errorf("%w: composite needs both a color and an alpha image", core.ErrMalformedTextureData)
	}
	if color.Width != alpha.Width || color.Height != alpha.Height {
		return nil, fmt.Errorf("%w: color is %dx%d, alpha is %dx%d", core.ErrDimensionMismatch,
			color.Width, color.Height, alpha.Width, alpha.Height)
	}
	n := int(color.Width) * int(color.Height) * 4
	if len(color.Pixels) < n || len(alpha.Pixels) < n {
		return nil, fmt.Errorf("%w: %dx%d image with %d/%d pixel bytes", core.ErrMalformedTextureData,
			color.Width, color.Height, len(color.Pixels), len(alpha.Pixels))
	}

	out := make([]byte, n)
	cp, ap := color.Pixels[:n], alpha.Pixels[:n]
	// BGRA
	for i := 0; i < n; i += 4 {
		out[i+0] = cp[i+0]
		out[i+1] = cp[i+1]
		out[i+2] = cp[i+2]
		out[i+3] = ap[i+2]
	}
	return &resources.CompositeImage{
		Width:  color.Width,
		Height: color.Height,
		Pixels: out,
	}, nil
}
