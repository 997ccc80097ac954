// Package pipeline drives the two phases of a run: acquisition, which walks
// the gallery and unpacks every image archive into the output root, and
// normalization, which auto-crops every image found there.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"eaafetch/pkg/archive"
	"eaafetch/pkg/autocrop"
	"eaafetch/pkg/report"
)

// LinkResolver walks the gallery pages
type LinkResolver interface {
	ListImageLandingRefs(ctx context.Context, collectionID int) ([]string, error)
	ResolveDownloadPageRef(ctx context.Context, landingRef string) (string, error)
	ResolveDirectDownloadURL(ctx context.Context, downloadPageRef string) (string, error)
}

// ArchiveIngestor downloads and unpacks image archives
type ArchiveIngestor interface {
	Download(ctx context.Context, directURL, downloadPageRef, destDir string) (*archive.File, error)
	Local(downloadPageRef, destDir string) (*archive.File, bool)
	ExtractAndDiscard(a *archive.File, destDir string) ([]string, error)
}

// LayoutFixer flattens collections that extract into a wrapper directory
type LayoutFixer interface {
	ReconcileNestedCollection(outputDir string, resumed bool) (int, error)
}

// Normalizer crops one image in place
type Normalizer interface {
	Normalize(path string) (*autocrop.Result, error)
}

// Observer is told about progress as it happens. Implementations must be
// safe for concurrent use.
type Observer interface {
	// Planned announces n more items for stage
	Planned(stage report.Stage, n int)
	// Finished reports one item's final outcome
	Finished(item report.Item)
}

type nopObserver struct{}

func (nopObserver) Planned(report.Stage, int) {}
func (nopObserver) Finished(report.Item)      {}

// PartialFailure is returned when some items failed and every other item was
// still processed
type PartialFailure struct {
	Phase  string
	Failed int
	Err    error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: %d item(s) failed: %v", e.Phase, e.Failed, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}

// partial wraps the failures recorded in rep, or returns nil
func partial(phase string, rep *report.Report) error {
	errs := rep.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &PartialFailure{Phase: phase, Failed: len(errs), Err: errors.Join(errs...)}
}

// Run performs acquisition followed by normalization. Normalization still
// runs when acquisition only had isolated item failures.
func Run(ctx context.Context, acq *Acquisition, norm *Normalization) ([]*report.Report, error) {
	fetchReport, fetchErr := acq.Run(ctx)
	reports := []*report.Report{fetchReport}

	var pf *PartialFailure
	if fetchErr != nil && !errors.As(fetchErr, &pf) {
		return reports, fetchErr
	}

	normReport, normErr := norm.Run(ctx)
	reports = append(reports, normReport)
	return reports, errors.Join(fetchErr, normErr)
}
