package systems

import (
	"github.com/spaghettifunk/portrait/engine/assets"
	"github.com/spaghettifunk/portrait/engine/assets/loaders"
	"github.com/spaghettifunk/portrait/engine/config"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/imaging"
	"github.com/spaghettifunk/portrait/engine/memory"
	"github.com/spaghettifunk/portrait/engine/texture"
)

type SystemManager struct {
	jobSystem          *JobSystem
	resourceSystem     *ResourceSystem
	illustrationSystem *IllustrationSystem
	bufferPool         *memory.BufferPool
	metrics            *core.Metrics
}

func NewSystemManager(cfg *config.Config) (*SystemManager, error) {
	js, err := NewJobSystem(cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	if err != nil {
		return nil, err
	}

	rs, err := NewResourceSystem(&ResourceSystemConfig{
		MaxLoaderCount: 8,
	})
	if err != nil {
		return nil, err
	}
	rs.RegisterLoader(&loaders.BundleLoader{MaxDataSize: cfg.Input.MaxDataSize})
	rs.RegisterLoader(&loaders.SerializedFileLoader{})

	pool, err := memory.NewBufferPool(memory.BufferPoolConfig{
		MaxBufferSize:       cfg.Pool.MaxBufferSize,
		MaxBuffersPerBucket: cfg.Pool.MaxBuffersPerBucket,
		MaxRentSize:         cfg.Pool.MaxRentSize,
	})
	if err != nil {
		return nil, err
	}
	decoder, err := texture.NewDecoder(pool, texture.DecoderConfig{
		Workers: cfg.Decoder.Workers,
	})
	if err != nil {
		return nil, err
	}

	format, err := imaging.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	encoder, err := imaging.NewEncoder(imaging.EncoderConfig{
		Format:       format,
		Quality:      cfg.Output.Quality,
		MaxDimension: cfg.Output.MaxDimension,
	})
	if err != nil {
		return nil, err
	}

	selector := assets.NewSelector(assets.SelectorConfig{
		MinDimension: cfg.Selector.MinDimension,
		Strict:       cfg.Selector.Strict,
	})

	metrics := core.NewMetrics()
	is, err := NewIllustrationSystem(rs, selector, decoder, encoder, js, metrics)
	if err != nil {
		return nil, err
	}

	return &SystemManager{
		jobSystem:          js,
		resourceSystem:     rs,
		illustrationSystem: is,
		bufferPool:         pool,
		metrics:            metrics,
	}, nil
}

func (sm *SystemManager) IllustrationSystem() *IllustrationSystem {
	return sm.illustrationSystem
}

func (sm *SystemManager) ResourceSystem() *ResourceSystem {
	return sm.resourceSystem
}

func (sm *SystemManager) BufferPool() *memory.BufferPool {
	return sm.bufferPool
}

func (sm *SystemManager) Metrics() *core.Metrics {
	return sm.metrics
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.resourceSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	if n := sm.bufferPool.Outstanding(); n != 0 {
		core.LogWarn("buffer pool: %d buffers still rented at shutdown", n)
	}
	return nil
}
