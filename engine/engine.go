package engine

import (
	"errors"
	"sync"

	"github.com/spaghettifunk/portrait/engine/assets/loaders"
	"github.com/spaghettifunk/portrait/engine/config"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
	"github.com/spaghettifunk/portrait/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is ready to extract
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released its workers and rejects new work
	EngineStageShutdown
)

var ErrEngineShutdown = errors.New("engine is shut down")

// Engine is the entry point for extracting character illustrations from
// asset bundles. It is safe for concurrent use.
type Engine struct {
	mu            sync.RWMutex
	currentStage  Stage
	config        *config.Config
	systemManager *systems.SystemManager
}

// New builds an engine from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(cfg.LogLevel())

	sm, err := systems.NewSystemManager(cfg)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage:  EngineStageRunning,
		config:        cfg,
		systemManager: sm,
	}, nil
}

func (e *Engine) Config() *config.Config {
	return e.config
}

func (e *Engine) Stage() Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentStage
}

// ExtractIllustration finds the illustration of codename in blob and returns
// it encoded in the configured output format.
func (e *Engine) ExtractIllustration(blob []byte, codename string, isSkin bool) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.currentStage != EngineStageRunning {
		return nil, ErrEngineShutdown
	}
	return e.systemManager.IllustrationSystem().Extract(blob, resources.MatchQuery{Codename: codename, IsSkin: isSkin})
}

// CompositeIllustration is ExtractIllustration without the encoding step.
func (e *Engine) CompositeIllustration(blob []byte, codename string, isSkin bool) (*resources.CompositeImage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.currentStage != EngineStageRunning {
		return nil, ErrEngineShutdown
	}
	return e.systemManager.IllustrationSystem().Composite(blob, resources.MatchQuery{Codename: codename, IsSkin: isSkin})
}

// ExtractFile reads a bundle from disk, zstd wrapped or not, and extracts
// the illustration from it.
func (e *Engine) ExtractFile(path, codename string, isSkin bool) ([]byte, error) {
	bl := &loaders.BinaryLoader{MaxSize: e.config.Input.MaxFileSize}
	blob, err := bl.Load(path)
	if err != nil {
		return nil, err
	}
	return e.ExtractIllustration(blob, codename, isSkin)
}

func (e *Engine) Metrics() core.MetricsSnapshot {
	return e.systemManager.Metrics().Snapshot()
}

// Outstanding reports the pooled buffers currently rented.
func (e *Engine) Outstanding() int {
	return e.systemManager.BufferPool().Outstanding()
}

// Shutdown waits for running extractions and stops the workers.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentStage != EngineStageRunning {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageShutdown
	core.LogDebug("engine shut down")
	return nil
}
