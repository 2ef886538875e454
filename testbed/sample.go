package testbed

import "fmt"

// Illustration describes a character illustration stored the way the game
// ships it: a color layer and a separate alpha layer, both ETC1.
type Illustration struct {
	Codename string
	// Number is the character number in the texture name. Empty writes "002".
	Number string
	// Skin appends a skin suffix such as "#1" to both names.
	Skin string
	Width  int
	Height int
	// Color and Alpha are 4-bit intensities. The alpha layer is grey.
	Color    [3]uint8
	Alpha    uint8
	Streamed bool
}

func (il Illustration) baseName() string {
	num := il.Number
	if num == "" {
		num = "002"
	}
	return fmt.Sprintf("char_%s_%s%s", num, il.Codename, il.Skin)
}

// ColorName and AlphaName are the texture names the selector should pick.
func (il Illustration) ColorName() string { return il.baseName() }
func (il Illustration) AlphaName() string { return il.baseName() + "[alpha]" }

// Textures returns the color and alpha layers surrounded by look-alike
// textures that must never be chosen: the "b" variants, a longer codename
// and a thumbnail below the size threshold.
func (il Illustration) Textures() []Texture {
	decoy := SolidETC1Texture(il.Width, il.Height, 15, 0, 15)
	tex := func(name string, data []byte) Texture {
		return Texture{Name: name, Width: il.Width, Height: il.Height, Data: data, Streamed: il.Streamed}
	}
	return []Texture{
		tex(il.baseName()+"b", decoy),
		tex(il.ColorName(), SolidETC1Texture(il.Width, il.Height, il.Color[0], il.Color[1], il.Color[2])),
		tex(il.baseName()+"b[alpha]", decoy),
		tex(il.AlphaName(), SolidETC1Texture(il.Width, il.Height, il.Alpha, il.Alpha, il.Alpha)),
		tex(fmt.Sprintf("char_%s_%sx", "999", il.Codename), decoy),
		{Name: il.ColorName(), Width: 128, Height: 128, Data: SolidETC1Texture(128, 128, 15, 0, 15)},
	}
}

// SampleIllustration is the illustration used by the sample task.
var SampleIllustration = Illustration{
	Codename: "amiya",
	Width:    1024,
	Height:   1024,
	Color:    [3]uint8{12, 6, 3},
	Alpha:    9,
}

// SampleBundle writes SampleIllustration into an LZ4 compressed bundle.
func SampleBundle() ([]byte, error) {
	return Bundle(BundleOptions{Compression: CompressionLZ4}, SampleIllustration.Textures()...)
}
