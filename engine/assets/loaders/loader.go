package loaders

import (
	"github.com/spaghettifunk/portrait/engine/resources"
)

// ContainerLoader parses one container format into the objects it holds.
type ContainerLoader interface {
	// Signature is the magic the blob starts with. Empty for fallbacks.
	Signature() string
	Load(blob []byte) ([]*resources.TextureAsset, error)
}

// SerializedFileLoader reads a bare serialized file with no bundle around it.
// Streamed texture data cannot be resolved in that case.
type SerializedFileLoader struct{}

func (sl *SerializedFileLoader) Signature() string {
	return ""
}

func (sl *SerializedFileLoader) Load(blob []byte) ([]*resources.TextureAsset, error) {
	sf, err := ParseSerializedFile("serialized file", blob)
	if err != nil {
		return nil, err
	}
	tl := &TextureLoader{}
	return tl.Load(sf)
}
