// Package report collects the per-item outcome of a run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
)

// Stage names the step an item failed or finished in
type Stage string

const (
	StageList      Stage = "list"
	StageResolve   Stage = "resolve"
	StageDownload  Stage = "download"
	StageExtract   Stage = "extract"
	StageLayout    Stage = "layout"
	StageNormalize Stage = "normalize"
)

// Status is the outcome of one item
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Item is one processed unit: an image landing page during acquisition or an
// image file during normalization
type Item struct {
	Collection int           `json:"collection,omitempty"`
	LandingRef string        `json:"landing_ref,omitempty"`
	Archive    string        `json:"archive,omitempty"`
	Image      string        `json:"image,omitempty"`
	Stage      Stage         `json:"stage"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Files      int           `json:"files,omitempty"`
	Duration   time.Duration `json:"duration_ns"`

	err error
}

// Err returns the error the item failed with
func (i Item) Err() error {
	return i.err
}

// Failed builds a failed item carrying err
func Failed(item Item, err error) Item {
	item.Status = StatusFailed
	item.err = err
	if err != nil {
		item.Error = err.Error()
	}
	return item
}

// Name returns the most specific identifier of the item
func (i Item) Name() string {
	switch {
	case i.Image != "":
		return i.Image
	case i.Archive != "":
		return i.Archive
	case i.LandingRef != "":
		return i.LandingRef
	default:
		return fmt.Sprintf("collection %d", i.Collection)
	}
}

// Report is safe for concurrent use
type Report struct {
	mu       sync.Mutex
	name     string
	started  time.Time
	finished time.Time
	items    []Item
}

// New starts a report for the run called name
func New(name string) *Report {
	return &Report{name: name, started: time.Now()}
}

// Name returns the run name
func (r *Report) Name() string {
	return r.name
}

// Record adds an item
func (r *Report) Record(item Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

// Items returns a copy of every recorded item
func (r *Report) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Item(nil), r.items...)
}

// Count returns the number of items with status
func (r *Report) Count(status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// CountStage returns the number of items with status in stage
func (r *Report) CountStage(stage Stage, status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Stage == stage && item.Status == status {
			n++
		}
	}
	return n
}

// Failures returns the failed items in recording order
func (r *Report) Failures() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []Item
	for _, item := range r.items {
		if item.Status == StatusFailed {
			failed = append(failed, item)
		}
	}
	return failed
}

// Errors returns the errors of the failed items
func (r *Report) Errors() []error {
	var errs []error
	for _, item := range r.Failures() {
		if item.err != nil {
			errs = append(errs, item.err)
		}
	}
	return errs
}

// Finish stamps the end of the run
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = time.Now()
}

// Duration returns the run time, up to now when the run has not finished
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished.IsZero() {
		return time.Since(r.started)
	}
	return r.finished.Sub(r.started)
}

type document struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	OK       int           `json:"ok"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Items    []Item        `json:"items"`
	Duration time.Duration `json:"duration_ns"`
}

// WriteJSON writes the report to path on fs
func (r *Report) WriteJSON(fs afero.Fs, path string) error {
	doc := document{
		Name:     r.name,
		OK:       r.Count(StatusOK),
		Failed:   r.Count(StatusFailed),
		Skipped:  r.Count(StatusSkipped),
		Items:    r.Items(),
		Duration: r.Duration(),
	}
	r.mu.Lock()
	doc.Started, doc.Finished = r.started, r.finished
	r.mu.Unlock()

	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Summary writes per-stage counts and every failure to w
func (r *Report) Summary(w io.Writer) error {
	items := r.Items()

	type counts struct{ ok, failed, skipped int }
	byStage := make(map[Stage]*counts)
	for _, item := range items {
		c, ok := byStage[item.Stage]
		if !ok {
			c = &counts{}
			byStage[item.Stage] = c
		}
		switch item.Status {
		case StatusOK:
			c.ok++
		case StatusFailed:
			c.failed++
		case StatusSkipped:
			c.skipped++
		}
	}

	stages := make([]string, 0, len(byStage))
	for stage := range byStage {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", r.name, r.Duration().Round(time.Millisecond))
	fmt.Fprintln(tw, "STAGE\tOK\tFAILED\tSKIPPED")
	for _, stage := range stages {
		c := byStage[Stage(stage)]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", stage, c.ok, c.failed, c.skipped)
	}
	for _, item := range items {
		if item.Status == StatusFailed {
			fmt.Fprintf(tw, "failed\t%s\t%s\t%s\n", item.Stage, item.Name(), item.Error)
		}
	}
	return tw.Flush()
}
