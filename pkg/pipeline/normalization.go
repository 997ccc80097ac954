package pipeline

import (
	"context"
	"image"
	"time"

	"eaafetch/pkg/config"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/report"
	"eaafetch/pkg/storage"

	"golang.org/x/sync/errgroup"
)

// NormalizationDeps are the collaborators of a Normalization. Observer and
// Logger are optional.
type NormalizationDeps struct {
	Store    *storage.Manager
	Cropper  Normalizer
	Observer Observer
	Logger   logger.Logger
}

// Normalization auto-crops every image directly under the output root
type Normalization struct {
	cfg  *config.Config
	deps NormalizationDeps
	log  logger.Logger
}

// NewNormalization creates the normalization phase
func NewNormalization(cfg *config.Config, deps NormalizationDeps) *Normalization {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Normalization{cfg: cfg, deps: deps, log: log.WithField("phase", "normalize")}
}

// Run normalizes the images in parallel. A failing image is recorded and
// the others continue, unless fail-fast is set.
func (n *Normalization) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New("normalize")
	defer rep.Finish()

	images, err := n.deps.Store.ListImages()
	if err != nil {
		return rep, err
	}
	n.deps.Observer.Planned(report.StageNormalize, len(images))

	workers := n.cfg.NormalizeWorkers()
	n.log.InfoWithFields("Normalization started", map[string]interface{}{
		"images":  len(images),
		"workers": workers,
		"width":   n.cfg.Normalize.Width,
		"height":  n.cfg.Normalize.Height,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return n.normalize(path, rep)
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	if err := partial("normalize", rep); err != nil {
		return rep, err
	}
	n.log.InfoWithFields("Normalization complete", map[string]interface{}{
		"normalized": rep.Count(report.StatusOK),
		"unchanged":  rep.Count(report.StatusSkipped),
	})
	return rep, nil
}

// normalize handles one image; the returned error aborts the group and is
// only set in fail-fast mode
func (n *Normalization) normalize(path string, rep *report.Report) error {
	start := time.Now()
	result, err := n.deps.Cropper.Normalize(path)

	item := report.Item{Image: path, Stage: report.StageNormalize, Duration: time.Since(start)}
	var region image.Rectangle
	skipped := false
	if result != nil {
		region, skipped = result.Region, result.Skipped
	}
	logger.LogCrop(n.log, path, region, skipped, err)

	switch {
	case err != nil:
		item = report.Failed(item, err)
	case skipped:
		item.Status = report.StatusSkipped
	default:
		item.Status = report.StatusOK
	}
	rep.Record(item)
	n.deps.Observer.Finished(item)

	if err != nil && n.cfg.Download.FailFast {
		return err
	}
	return nil
}
