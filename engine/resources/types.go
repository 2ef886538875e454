package resources

import (
	"image"
	"io"
)

/** @brief Unity class ids of the serialized objects the loaders care about. */
type ClassIDType int32

const (
	ClassIDUnknown       ClassIDType = -1
	ClassIDObject        ClassIDType = 0
	ClassIDTexture2D     ClassIDType = 28
	ClassIDTextAsset     ClassIDType = 49
	ClassIDMonoBehaviour ClassIDType = 114
	ClassIDAssetBundle   ClassIDType = 142
	ClassIDSprite        ClassIDType = 213
)

func (c ClassIDType) String() string {
	switch c {
	case ClassIDObject:
		return "Object"
	case ClassIDTexture2D:
		return "Texture2D"
	case ClassIDTextAsset:
		return "TextAsset"
	case ClassIDMonoBehaviour:
		return "MonoBehaviour"
	case ClassIDAssetBundle:
		return "AssetBundle"
	case ClassIDSprite:
		return "Sprite"
	default:
		return "Unknown"
	}
}

/** @brief Unity texture format ids. Only ETC_RGB4 is decoded. */
type TextureFormat int32

const (
	/** @brief The container did not report a format. */
	TextureFormatUnknown TextureFormat = 0
	TextureFormatRGBA32  TextureFormat = 4
	TextureFormatDXT1    TextureFormat = 10
	/** @brief ETC1 4 bits per pixel RGB. */
	TextureFormatETCRGB4  TextureFormat = 34
	TextureFormatETC2RGB  TextureFormat = 45
	TextureFormatETC2RGBA TextureFormat = 47
)

/**
 * @brief A readable view over the raw bytes of a serialized object.
 * *io.SectionReader satisfies it.
 */
type DataHandle interface {
	io.ReaderAt
	Size() int64
}

/**
 * @brief One typed object listed by a container. Name, dimensions and data are
 * only filled in for Texture2D objects.
 */
type TextureAsset struct {
	/** @brief Path id of the object inside its serialized file. */
	PathID int64
	/** @brief The Unity class of the object. */
	ClassID ClassIDType
	/** @brief The object name (m_Name). */
	Name string
	/** @brief The texture width in pixels. */
	Width uint32
	/** @brief The texture height in pixels. */
	Height uint32
	/** @brief The texture format reported by the container. */
	Format TextureFormat
	/** @brief Handle to the compressed pixel data. */
	Data DataHandle
}

/** @brief A request for one character illustration. */
type MatchQuery struct {
	Codename string
	IsSkin   bool
}

/** @brief The color/alpha pair resolved for a MatchQuery. */
type MatchResult struct {
	Color *TextureAsset
	Alpha *TextureAsset
}

// Complete reports whether both slots resolved.
func (mr MatchResult) Complete() bool {
	return mr.Color != nil && mr.Alpha != nil
}

/**
 * @brief A decoded texture. Pixels are BGRA32, row 0 is the visual top.
 * Pixels may belong to a buffer pool; Release hands them back.
 */
type DecodedImage struct {
	Width  uint32
	Height uint32
	Pixels []byte

	release func([]byte)
}

func NewDecodedImage(width, height uint32, pixels []byte, release func([]byte)) *DecodedImage {
	return &DecodedImage{
		Width:   width,
		Height:  height,
		Pixels:  pixels,
		release: release,
	}
}

// Release returns the pixel buffer to its owner. Safe to call more than once
// and on a nil image.
func (di *DecodedImage) Release() {
	if di == nil || di.Pixels == nil {
		return
	}
	if di.release != nil {
		di.release(di.Pixels)
	}
	di.Pixels = nil
}

/**
 * @brief The final illustration. Pixels are BGRA32, row 0 is the visual top.
 */
type CompositeImage struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// NRGBA copies the composite into a non-premultiplied image for encoders.
func (ci *CompositeImage) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, int(ci.Width), int(ci.Height)))
	for i := 0; i+3 < len(ci.Pixels) && i+3 < len(img.Pix); i += 4 {
		img.Pix[i+0] = ci.Pixels[i+2]
		img.Pix[i+1] = ci.Pixels[i+1]
		img.Pix[i+2] = ci.Pixels[i+0]
		img.Pix[i+3] = ci.Pixels[i+3]
	}
	return img
}
