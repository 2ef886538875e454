package assets

import "github.com/spaghettifunk/portrait/engine/resources"

// ObjectSource parses a container blob into the objects it holds.
type ObjectSource interface {
	Load(blob []byte) ([]*resources.TextureAsset, error)
}
