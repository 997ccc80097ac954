package pipeline

import (
	"fmt"
	"net/http"

	"eaafetch/pkg/archive"
	"eaafetch/pkg/autocrop"
	"eaafetch/pkg/checkpoint"
	"eaafetch/pkg/config"
	"eaafetch/pkg/fetch"
	"eaafetch/pkg/gallery"
	"eaafetch/pkg/layout"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/ratelimit"
	"eaafetch/pkg/retry"
	"eaafetch/pkg/storage"

	"github.com/spf13/afero"
)

// Dependencies are the production collaborators built from a Config
type Dependencies struct {
	Limiter     ratelimit.Limiter
	Client      *fetch.Client
	Resolver    *gallery.Resolver
	Store       *storage.Manager
	Ingestor    *archive.Ingestor
	Fixer       *layout.Fixer
	Checkpoints *checkpoint.Manager
	Cropper     *autocrop.Cropper

	cfg *config.Config
	log logger.Logger
}

type buildOptions struct {
	fs         afero.Fs
	dataDir    string
	httpClient *http.Client
	limiter    ratelimit.Limiter
}

// BuildOption customizes Build
type BuildOption func(*buildOptions)

// WithFs writes the output root and checkpoints to fs instead of the host
// filesystem
func WithFs(fs afero.Fs) BuildOption {
	return func(o *buildOptions) { o.fs = fs }
}

// WithDataDir keeps checkpoints below dir instead of the platform data directory
func WithDataDir(dir string) BuildOption {
	return func(o *buildOptions) { o.dataDir = dir }
}

// WithHTTPClient sends every request through hc
func WithHTTPClient(hc *http.Client) BuildOption {
	return func(o *buildOptions) { o.httpClient = hc }
}

// WithLimiter replaces the token bucket built from the rate limit settings
func WithLimiter(l ratelimit.Limiter) BuildOption {
	return func(o *buildOptions) { o.limiter = l }
}

// Build wires every collaborator of both phases. One limiter is shared by
// all outbound requests.
func Build(cfg *config.Config, log logger.Logger, opts ...BuildOption) (*Dependencies, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	o := buildOptions{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	limiter := o.limiter
	if limiter == nil {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	}

	retryCfg := retry.FromSettings(cfg.Retry, log)
	clientOpts := []fetch.Option{
		fetch.WithRetry(retryCfg),
		fetch.WithUserAgent(cfg.Gallery.UserAgent),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, fetch.WithHTTPClient(o.httpClient))
	}
	client := fetch.NewClient(cfg.Download.Timeout, limiter, log, clientOpts...)

	store := storage.NewManagerWithFs(o.fs, cfg.Output.Directory)

	cropper, err := autocrop.NewCropper(store, autocrop.Options{
		Width:             cfg.Normalize.Width,
		Height:            cfg.Normalize.Height,
		Threshold:         cfg.Normalize.Threshold,
		Interpolation:     cfg.Normalize.Interpolation,
		KeepFullSize:      cfg.Normalize.KeepFullSize,
		FullSizeDirectory: cfg.Output.FullSizeDirectory,
		JPEGQuality:       cfg.Normalize.JPEGQuality,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("invalid normalize settings: %w", err)
	}

	d := &Dependencies{
		Limiter:  limiter,
		Client:   client,
		Resolver: gallery.NewResolver(client, cfg.Gallery.BaseURL, cfg.Gallery.GalleryPath, cfg.Gallery.MaxPages, log),
		Store:    store,
		Ingestor: archive.NewIngestor(store, client, log,
			archive.WithChunkSize(cfg.Download.ChunkSize),
			archive.WithRetry(retryCfg),
		),
		Fixer:   layout.NewFixer(o.fs, cfg.Output.QuirkDirectory, log),
		Cropper: cropper,
		cfg:     cfg,
		log:     log,
	}

	dataDir := o.dataDir
	if dataDir == "" {
		if dataDir, err = checkpoint.DataDirectory(); err != nil {
			log.WithError(err).Warn("Checkpoints disabled")
			return d, nil
		}
	}
	if d.Checkpoints, err = checkpoint.NewManagerWithFs(o.fs, dataDir, cfg.Output.Directory, log); err != nil {
		log.WithError(err).Warn("Checkpoints disabled")
	}
	return d, nil
}

// Acquisition returns the acquisition phase over these dependencies
func (d *Dependencies) Acquisition(observer Observer) *Acquisition {
	return NewAcquisition(d.cfg, AcquisitionDeps{
		Resolver:    d.Resolver,
		Ingestor:    d.Ingestor,
		Fixer:       d.Fixer,
		Store:       d.Store,
		Checkpoints: d.Checkpoints,
		Observer:    observer,
		Logger:      d.log,
	})
}

// Normalization returns the normalization phase over these dependencies
func (d *Dependencies) Normalization(observer Observer) *Normalization {
	return NewNormalization(d.cfg, NormalizationDeps{
		Store:    d.Store,
		Cropper:  d.Cropper,
		Observer: observer,
		Logger:   d.log,
	})
}
