package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"eaafetch/internal/downloader"
	"eaafetch/pkg/archive"
	"eaafetch/pkg/checkpoint"
	"eaafetch/pkg/config"
	"eaafetch/pkg/gallery"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/report"
	"eaafetch/pkg/storage"

	"golang.org/x/sync/errgroup"
)

// AcquisitionDeps are the collaborators of an Acquisition. Checkpoints,
// Observer and Logger are optional.
type AcquisitionDeps struct {
	Resolver    LinkResolver
	Ingestor    ArchiveIngestor
	Fixer       LayoutFixer
	Store       *storage.Manager
	Checkpoints *checkpoint.Manager
	Observer    Observer
	Logger      logger.Logger
}

// Acquisition downloads every collection into the output root
type Acquisition struct {
	cfg  *config.Config
	deps AcquisitionDeps
	log  logger.Logger
}

// resolveJob is one image landing page
type resolveJob struct {
	Collection int
	LandingRef string
}

// resolved is a landing page followed to its archive
type resolved struct {
	job             resolveJob
	downloadPageRef string
	directURL       string
	archive         string
	skipped         bool
	stage           report.Stage
	err             error
	duration        time.Duration
}

// ingested is the outcome of downloading and extracting one archive
type ingested struct {
	src      resolved
	file     *archive.File
	files    []string
	stage    report.Stage
	err      error
	duration time.Duration
}

// NewAcquisition creates the acquisition phase
func NewAcquisition(cfg *config.Config, deps AcquisitionDeps) *Acquisition {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Acquisition{cfg: cfg, deps: deps, log: log.WithField("phase", "fetch")}
}

// Run lists every configured collection, resolves each image to its archive,
// downloads and extracts it, and finally flattens the nested collection
// directory. A failing item is recorded and the run moves on, unless
// fail-fast is set.
func (a *Acquisition) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New("fetch")
	defer rep.Finish()

	root := a.deps.Store.Root()
	cp := a.loadCheckpoint()
	created, err := a.deps.Store.CreateRoot(a.cfg.Download.Resume || cp != nil)
	if err != nil {
		return rep, err
	}
	if created && cp != nil {
		// the files the checkpoint describes went away with the old root
		a.log.WarnWithFields("Output directory is gone, discarding checkpoint", map[string]interface{}{
			"output_dir": root,
			"archives":   cp.ExtractedCount(),
		})
		if err := a.deps.Checkpoints.Delete(); err != nil {
			a.log.WithError(err).Warn("Failed to delete checkpoint")
		}
		cp = nil
	}
	if cp == nil && a.deps.Checkpoints != nil {
		if cp, err = a.deps.Checkpoints.Create(root, a.cfg.Gallery.Collections); err != nil {
			a.log.WithError(err).Warn("Continuing without checkpoint")
		}
	}

	a.log.InfoWithFields("Acquisition started", map[string]interface{}{
		"output_dir":  root,
		"collections": a.cfg.Gallery.Collections,
		"resumed":     !created,
	})

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	fail := func(item report.Item, err error) {
		item = report.Failed(item, err)
		rep.Record(item)
		a.deps.Observer.Finished(item)
		a.log.WithFields(map[string]interface{}{
			"collection": item.Collection,
			"item":       item.Name(),
			"stage":      string(item.Stage),
		}).WithError(err).Error("Item failed")
		if a.cfg.Download.FailFast {
			cancel(err)
		}
	}
	finish := func(item report.Item) {
		rep.Record(item)
		a.deps.Observer.Finished(item)
	}

	resolvePool := downloader.NewPool(ctx, "resolve", a.cfg.Download.ResolveWorkers,
		func(ctx context.Context, workerID int, job resolveJob) resolved {
			return a.resolve(ctx, root, cp, job)
		}, a.log)
	ingestPool := downloader.NewPool(ctx, "download", a.cfg.Download.DownloadWorkers,
		func(ctx context.Context, workerID int, job resolved) ingested {
			return a.ingest(ctx, root, job)
		}, a.log)
	resolvePool.Start()
	ingestPool.Start()

	var g errgroup.Group

	// producer: collections in configured order
	g.Go(func() error {
		defer resolvePool.Stop()
		for _, id := range a.cfg.Gallery.Collections {
			if ctx.Err() != nil {
				return nil
			}
			start := time.Now()
			refs, err := a.deps.Resolver.ListImageLandingRefs(ctx, id)
			if err != nil {
				fail(report.Item{Collection: id, Stage: report.StageList, Duration: time.Since(start)}, err)
				continue
			}
			logger.LogCollectionProgress(a.log, id, 0, len(refs))
			a.deps.Observer.Planned(report.StageExtract, len(refs))
			if cp != nil {
				if err := a.deps.Checkpoints.RecordListing(cp, id, len(refs)); err != nil {
					a.log.WithError(err).Warn("Failed to update checkpoint")
				}
			}

			for _, ref := range refs {
				if err := resolvePool.Submit(resolveJob{Collection: id, LandingRef: ref}); err != nil {
					return nil
				}
			}
		}
		return nil
	})

	// forward resolved archives to the download stage
	g.Go(func() error {
		defer ingestPool.Stop()
		for res := range resolvePool.Results() {
			item := report.Item{
				Collection: res.job.Collection,
				LandingRef: res.job.LandingRef,
				Archive:    res.archive,
				Stage:      res.stage,
				Duration:   res.duration,
			}
			switch {
			case interrupted(ctx, res.err):
			case res.err != nil:
				fail(item, res.err)
			case res.skipped:
				item.Status = report.StatusSkipped
				finish(item)
			default:
				// a refused submit means the run was cancelled; keep draining
				_ = ingestPool.Submit(res)
			}
		}
		return nil
	})

	for res := range ingestPool.Results() {
		item := report.Item{
			Collection: res.src.job.Collection,
			LandingRef: res.src.job.LandingRef,
			Archive:    res.src.archive,
			Stage:      res.stage,
			Files:      len(res.files),
			Duration:   res.src.duration + res.duration,
		}
		if interrupted(ctx, res.err) {
			continue
		}
		logger.LogArchive(a.log, item.Collection, item.Archive, item.Files, res.err)
		if res.err != nil {
			fail(item, res.err)
			continue
		}
		item.Status = report.StatusOK
		finish(item)

		if cp != nil {
			record := checkpoint.ArchiveRecord{Collection: item.Collection, Files: res.files, Digest: res.file.Digest}
			if err := a.deps.Checkpoints.RecordArchive(cp, res.src.archive, record); err != nil {
				a.log.WithError(err).Warn("Failed to update checkpoint")
			}
		}
	}
	_ = g.Wait()

	a.fixLayout(root, !created, rep, fail, finish)

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		a.cleanup(created, cp)
		return rep, cause
	}
	if err := ctx.Err(); err != nil {
		a.cleanup(created, cp)
		return rep, err
	}

	if err := partial("fetch", rep); err != nil {
		a.cleanup(created, cp)
		return rep, err
	}

	if a.deps.Checkpoints != nil {
		if err := a.deps.Checkpoints.Delete(); err != nil {
			a.log.WithError(err).Warn("Failed to delete checkpoint")
		}
	}
	a.log.InfoWithFields("Acquisition complete", map[string]interface{}{
		"archives": rep.Count(report.StatusOK),
		"skipped":  rep.Count(report.StatusSkipped),
	})
	return rep, nil
}

// loadCheckpoint returns the checkpoint of an interrupted run into the same
// output root, if any
func (a *Acquisition) loadCheckpoint() *checkpoint.Checkpoint {
	if a.deps.Checkpoints == nil || !a.deps.Checkpoints.Exists() {
		return nil
	}
	cp, err := a.deps.Checkpoints.Load()
	if err != nil {
		a.log.WithError(err).Warn("Ignoring unreadable checkpoint")
		return nil
	}
	if cp != nil {
		a.log.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
			"archives": cp.ExtractedCount(),
		})
	}
	return cp
}

// extracted reports whether the checkpoint records the archive and every file
// it produced is still in root, at its extracted or its hoisted location
func (a *Acquisition) extracted(root string, cp *checkpoint.Checkpoint, name string) bool {
	if cp == nil {
		return false
	}
	record, ok := cp.Archive(name)
	if !ok {
		return false
	}
	for _, file := range record.Files {
		if a.deps.Store.Exists(filepath.Join(root, file)) {
			continue
		}
		if hoisted, ok := a.hoistedName(file); ok && a.deps.Store.Exists(filepath.Join(root, hoisted)) {
			continue
		}
		a.log.InfoWithFields("Extracted file missing, fetching archive again", map[string]interface{}{
			"archive": name,
			"file":    file,
		})
		return false
	}
	return true
}

// hoistedName maps a file extracted into the nested collection directory to
// its name after the layout fix
func (a *Acquisition) hoistedName(file string) (string, bool) {
	quirk := a.cfg.Output.QuirkDirectory
	if quirk == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(filepath.ToSlash(file), quirk+"/")
	if !ok || rest == "" {
		return "", false
	}
	return filepath.FromSlash(rest), true
}

// resolve follows a landing page to its download page and direct URL. An
// archive already recorded in the checkpoint is skipped before the download
// page is requested.
func (a *Acquisition) resolve(ctx context.Context, root string, cp *checkpoint.Checkpoint, job resolveJob) (res resolved) {
	start := time.Now()
	res = resolved{job: job, stage: report.StageResolve}
	defer func() { res.duration = time.Since(start) }()

	downloadPageRef, err := a.deps.Resolver.ResolveDownloadPageRef(ctx, job.LandingRef)
	if err != nil {
		res.err = err
		return res
	}
	res.downloadPageRef = downloadPageRef

	name, err := gallery.ArchiveName(downloadPageRef)
	if err != nil {
		res.err = err
		return res
	}
	res.archive = name

	if a.extracted(root, cp, name) {
		res.skipped = true
		res.stage = report.StageExtract
		a.log.DebugWithFields("Archive already extracted", map[string]interface{}{
			"collection": job.Collection,
			"archive":    name,
		})
		return res
	}

	res.directURL, res.err = a.deps.Resolver.ResolveDirectDownloadURL(ctx, downloadPageRef)
	return res
}

// ingest downloads the archive, or reuses one left by an earlier run, and
// unpacks it into root
func (a *Acquisition) ingest(ctx context.Context, root string, src resolved) (out ingested) {
	start := time.Now()
	out = ingested{src: src, stage: report.StageDownload}
	defer func() { out.duration = time.Since(start) }()

	file, ok := a.deps.Ingestor.Local(src.downloadPageRef, root)
	if !ok {
		var err error
		if file, err = a.deps.Ingestor.Download(ctx, src.directURL, src.downloadPageRef, root); err != nil {
			out.err = err
			return out
		}
	}
	out.file = file

	out.stage = report.StageExtract
	out.files, out.err = a.deps.Ingestor.ExtractAndDiscard(file, root)
	return out
}

func (a *Acquisition) fixLayout(root string, resumed bool, rep *report.Report, fail func(report.Item, error), finish func(report.Item)) {
	if a.deps.Fixer == nil {
		return
	}
	start := time.Now()
	moved, err := a.deps.Fixer.ReconcileNestedCollection(root, resumed)
	item := report.Item{Stage: report.StageLayout, Image: root, Files: moved, Duration: time.Since(start)}
	if err != nil {
		fail(item, err)
		return
	}
	if moved > 0 {
		item.Status = report.StatusOK
		finish(item)
	}
}

// interrupted reports whether err only says the run was cancelled before
// the item could finish
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled)
}

// cleanup removes an output root this run created without writing to it,
// so a rerun does not trip over an empty directory
func (a *Acquisition) cleanup(created bool, cp *checkpoint.Checkpoint) {
	if !created {
		return
	}
	removed, err := a.deps.Store.RemoveIfEmpty()
	if err != nil {
		a.log.WithError(err).Warn("Failed to remove empty output directory")
		return
	}
	if removed && a.deps.Checkpoints != nil && (cp == nil || cp.ExtractedCount() == 0) {
		if err := a.deps.Checkpoints.Delete(); err != nil {
			a.log.WithError(err).Warn("Failed to delete checkpoint")
		}
	}
}
