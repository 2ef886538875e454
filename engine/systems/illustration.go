package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spaghettifunk/portrait/engine/assets"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/imaging"
	"github.com/spaghettifunk/portrait/engine/resources"
	"github.com/spaghettifunk/portrait/engine/texture"
)

// IllustrationSystem runs one extraction: parse, select, decode both
// layers, composite and encode. It holds no per-call state and may be used
// from several goroutines.
type IllustrationSystem struct {
	source   assets.ObjectSource
	selector *assets.Selector
	decoder  *texture.Decoder
	encoder  *imaging.Encoder
	jobs     *JobSystem
	metrics  *core.Metrics
}

func NewIllustrationSystem(source assets.ObjectSource, selector *assets.Selector, decoder *texture.Decoder,
	encoder *imaging.Encoder, jobs *JobSystem, metrics *core.Metrics) (*IllustrationSystem, error) {
	if source == nil || selector == nil || decoder == nil || encoder == nil || jobs == nil {
		err := fmt.Errorf("func NewIllustrationSystem - every collaborator is required")
		core.LogError(err.Error())
		return nil, err
	}
	if metrics == nil {
		metrics = core.NewMetrics()
	}
	return &IllustrationSystem{
		source:   source,
		selector: selector,
		decoder:  decoder,
		encoder:  encoder,
		jobs:     jobs,
		metrics:  metrics,
	}, nil
}

// Extract returns the encoded illustration for q found in blob.
func (is *IllustrationSystem) Extract(blob []byte, q resources.MatchQuery) (out []byte, err error) {
	logger := core.LogWith("request", core.NewRequestID(), "codename", q.Codename, "skin", q.IsSkin)
	clock := core.NewClock()
	clock.Start()
	defer func() {
		is.metrics.Done(err)
		if err != nil {
			logger.Error("extraction failed", "err", err)
		}
	}()

	img, err := is.composite(blob, q, logger, clock)
	if err != nil {
		return nil, err
	}
	out, err = is.encoder.EncodeBytes(img)
	is.metrics.Observe(core.StageEncode, clock.Lap())
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", is.encoder.Format(), err)
	}
	logger.Info("illustration extracted", "format", is.encoder.Format(), "size", humanize.IBytes(uint64(len(out))))
	return out, nil
}

// Composite runs every stage but the encoder.
func (is *IllustrationSystem) Composite(blob []byte, q resources.MatchQuery) (img *resources.CompositeImage, err error) {
	logger := core.LogWith("request", core.NewRequestID(), "codename", q.Codename, "skin", q.IsSkin)
	clock := core.NewClock()
	clock.Start()
	defer func() { is.metrics.Done(err) }()
	return is.composite(blob, q, logger, clock)
}

func (is *IllustrationSystem) composite(blob []byte, q resources.MatchQuery, logger *log.Logger, clock *core.Clock) (*resources.CompositeImage, error) {
	objects, err := is.source.Load(blob)
	is.metrics.Observe(core.StageParse, clock.Lap())
	if err != nil {
		return nil, fmt.Errorf("parsing container: %w", err)
	}
	logger.Debug("container parsed", "objects", len(objects), "bytes", humanize.IBytes(uint64(len(blob))))

	match, err := is.selector.Select(objects, q)
	is.metrics.Observe(core.StageSelect, clock.Lap())
	if err != nil {
		return nil, err
	}
	logger.Debug("textures selected", "color", match.Color.Name, "alpha", match.Alpha.Name)

	color, alpha, err := is.decodePair(match)
	is.metrics.Observe(core.StageDecode, clock.Lap())
	if err != nil {
		return nil, err
	}

	img, err := imaging.Composite(color, alpha)
	is.metrics.Observe(core.StageComposite, clock.Lap())
	if err != nil {
		return nil, err
	}
	return img, nil
}

// decodePair decodes the color and alpha textures as two jobs and waits for
// both. On failure any image that did decode is released.
func (is *IllustrationSystem) decodePair(match resources.MatchResult) (*resources.DecodedImage, *resources.DecodedImage, error) {
	var (
		wg     sync.WaitGroup
		images [2]*resources.DecodedImage
		errs   [2]error
	)
	for i, asset := range []*resources.TextureAsset{match.Color, match.Alpha} {
		wg.Add(1)
		job := JobTask{
			InputParams: asset,
			OnStart: func(params interface{}, results chan<- interface{}) error {
				img, err := is.decoder.Decode(params.(*resources.TextureAsset))
				if err != nil {
					return err
				}
				results <- img
				return nil
			},
			OnComplete: func(results <-chan interface{}) {
				images[i] = (<-results).(*resources.DecodedImage)
			},
			OnFailure: func(err error) {
				errs[i] = fmt.Errorf("decoding %q: %w", asset.Name, err)
			},
			OnCompletionCallback: wg.Done,
		}
		if err := is.jobs.Submit(job); err != nil {
			errs[i] = err
			wg.Done()
		}
	}
	wg.Wait()

	if err := errors.Join(errs[0], errs[1]); err != nil {
		images[0].Release()
		images[1].Release()
		return nil, nil, err
	}
	return images[0], images[1], nil
}

func (is *IllustrationSystem) Metrics() core.MetricsSnapshot {
	return is.metrics.Snapshot()
}
