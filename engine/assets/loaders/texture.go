package loaders

import (
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
)

// ResourceResolver returns the bytes of a resource file (.resS) stored next
// to the serialized file, looked up by base name.
type ResourceResolver func(name string) ([]byte, bool)

// TextureLoader builds TextureAssets from the objects of a serialized file.
type TextureLoader struct {
	Resolve ResourceResolver
}

// Load lists every object of sf. Only Texture2D objects are decoded through
// their type tree; the rest keep just their path id and class.
func (tl *TextureLoader) Load(sf *SerializedFile) ([]*resources.TextureAsset, error) {
	out := make([]*resources.TextureAsset, 0, len(sf.Objects))
	for i := range sf.Objects {
		obj := &sf.Objects[i]
		if obj.ClassID != resources.ClassIDTexture2D {
			out = append(out, &resources.TextureAsset{PathID: obj.PathID, ClassID: obj.ClassID})
			continue
		}
		asset, err := tl.texture(sf, obj)
		if err != nil {
			return nil, fmt.Errorf("texture %d in %s: %w", obj.PathID, sf.Name, err)
		}
		out = append(out, asset)
	}
	return out, nil
}

func (tl *TextureLoader) texture(sf *SerializedFile, obj *ObjectInfo) (*resources.TextureAsset, error) {
	fields, err := sf.Read(obj)
	if err != nil {
		return nil, err
	}

	name, _ := fields["m_Name"].(string)
	width, okW := toInt64(fields["m_Width"])
	height, okH := toInt64(fields["m_Height"])
	if !okW || !okH || width < 0 || height < 0 || width > 1<<16 || height > 1<<16 {
		return nil, fmt.Errorf("%w: %q has bad dimensions %v x %v", core.ErrMalformedContainer, name, fields["m_Width"], fields["m_Height"])
	}
	format, _ := toInt64(fields["m_TextureFormat"])

	asset := &resources.TextureAsset{
		PathID:  obj.PathID,
		ClassID: obj.ClassID,
		Name:    name,
		Width:   uint32(width),
		Height:  uint32(height),
		Format:  resources.TextureFormat(format),
	}

	if data, ok := fields["image data"].([]byte); ok && len(data) > 0 {
		asset.Data = bytes.NewReader(data)
		return asset, nil
	}

	stream, ok := fields["m_StreamData"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q has neither image data nor stream data", core.ErrMalformedContainer, name)
	}
	offset, _ := toInt64(stream["offset"])
	size, _ := toInt64(stream["size"])
	file, _ := stream["path"].(string)
	if file == "" || size <= 0 {
		return nil, fmt.Errorf("%w: %q has no pixel data", core.ErrMalformedContainer, name)
	}
	if tl.Resolve == nil {
		return nil, fmt.Errorf("%w: %q streams from %s but no resource files are available", core.ErrMalformedContainer, name, file)
	}
	res, ok := tl.Resolve(path.Base(file))
	if !ok {
		return nil, fmt.Errorf("%w: %q streams from missing %s", core.ErrMalformedContainer, name, file)
	}
	if offset < 0 || offset+size > int64(len(res)) {
		return nil, fmt.Errorf("%w: %q streams %d+%d outside %s (%d bytes)", core.ErrMalformedContainer, name, offset, size, file, len(res))
	}
	asset.Data = io.NewSectionReader(bytes.NewReader(res), offset, size)
	return asset, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case uint8:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
