package systems

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/spaghettifunk/portrait/engine/assets/loaders"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
)

/** @brief The configuration for the resource system */
type ResourceSystemConfig struct {
	/** @brief The maximum number of loaders that can be registered with this system. */
	MaxLoaderCount uint32
}

// ResourceSystem picks the container loader for a blob by its signature.
// A loader with an empty signature is the fallback for unrecognised blobs.
type ResourceSystem struct {
	config   ResourceSystemConfig
	mu       sync.RWMutex
	loaders  []loaders.ContainerLoader
	fallback loaders.ContainerLoader
}

func NewResourceSystem(config *ResourceSystemConfig) (*ResourceSystem, error) {
	if config.MaxLoaderCount == 0 {
		err := fmt.Errorf("failed to run NewResourceSystem because config.MaxLoaderCount==0")
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Resource system initialized with room for %d loaders.", config.MaxLoaderCount)
	return &ResourceSystem{
		config:  *config,
		loaders: make([]loaders.ContainerLoader, 0, config.MaxLoaderCount),
	}, nil
}

func (rs *ResourceSystem) RegisterLoader(loader loaders.ContainerLoader) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	sig := loader.Signature()
	if sig == "" {
		if rs.fallback != nil {
			core.LogError("RegisterLoader - a fallback loader already exists and will not be replaced.")
			return false
		}
		rs.fallback = loader
		return true
	}
	for _, l := range rs.loaders {
		if l.Signature() == sig {
			core.LogError("RegisterLoader - Loader for signature %q already exists and will not be registered.", sig)
			return false
		}
	}
	if uint32(len(rs.loaders)) >= rs.config.MaxLoaderCount {
		core.LogError("RegisterLoader - maximum of %d loaders reached.", rs.config.MaxLoaderCount)
		return false
	}
	rs.loaders = append(rs.loaders, loader)
	core.LogDebug("Loader for %q registered.", sig)
	return true
}

// Load parses blob with the first loader whose signature it starts with.
func (rs *ResourceSystem) Load(blob []byte) ([]*resources.TextureAsset, error) {
	rs.mu.RLock()
	loader := rs.fallback
	for _, l := range rs.loaders {
		if bytes.HasPrefix(blob, []byte(l.Signature())) {
			loader = l
			break
		}
	}
	rs.mu.RUnlock()

	if loader == nil {
		n := min(len(blob), 8)
		return nil, fmt.Errorf("%w: no loader for a blob starting with %q", core.ErrUnknownContainer, blob[:n])
	}
	return loader.Load(blob)
}

func (rs *ResourceSystem) Shutdown() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.loaders = rs.loaders[:0]
	rs.fallback = nil
	return nil
}
