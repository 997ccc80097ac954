package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"eaafetch/pkg/report"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/muesli/termenv"
)

// StatusTracker keeps per-stage progress counts
type StatusTracker struct {
	mu        sync.Mutex
	planned   map[report.Stage]int
	done      map[report.Stage]int
	failed    map[report.Stage]int
	skipped   map[report.Stage]int
	startTime time.Time
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		planned:   make(map[report.Stage]int),
		done:      make(map[report.Stage]int),
		failed:    make(map[report.Stage]int),
		skipped:   make(map[report.Stage]int),
		startTime: time.Now(),
	}
}

// Plan adds n expected items to stage
func (st *StatusTracker) Plan(stage report.Stage, n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.planned[stage] += n
}

// Record counts one finished item
func (st *StatusTracker) Record(item report.Item) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch item.Status {
	case report.StatusFailed:
		st.failed[item.Stage]++
	case report.StatusSkipped:
		st.skipped[item.Stage]++
	default:
		st.done[item.Stage]++
	}
}

// Counts returns the planned and finished totals and the number of failures.
// Listing and layout items are never planned and do not count as finished.
func (st *StatusTracker) Counts() (planned, finished, failed int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, n := range st.planned {
		planned += n
	}
	for _, m := range []map[report.Stage]int{st.done, st.failed, st.skipped} {
		for stage, n := range m {
			if stage == report.StageList || stage == report.StageLayout {
				continue
			}
			finished += n
		}
	}
	for _, n := range st.failed {
		failed += n
	}
	return planned, finished, failed
}

// Fraction returns how much of the planned work is finished
func (st *StatusTracker) Fraction() float64 {
	planned, finished, _ := st.Counts()
	if planned == 0 {
		return 0
	}
	f := float64(finished) / float64(planned)
	if f > 1 {
		f = 1
	}
	return f
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.startTime)
}

// GetRate returns the average number of finished items per minute
func (st *StatusTracker) GetRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	_, finished, _ := st.Counts()
	return float64(finished) / elapsed
}

// Progress renders pipeline progress to the terminal. On a terminal it keeps
// a single updating line; otherwise only failures are printed.
type Progress struct {
	mu      sync.Mutex
	label   string
	tracker *StatusTracker
	bar     progress.Model
	live    bool
	ended   bool
	w       io.Writer
}

// NewProgress creates a progress display for the phase called label
func NewProgress(label string) *Progress {
	profile := termenv.Ascii
	if ColorEnabled() {
		profile = termenv.TrueColor
	}
	return &Progress{
		label:   label,
		tracker: NewStatusTracker(),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(24),
			progress.WithoutPercentage(),
			progress.WithColorProfile(profile),
		),
		live: IsTerminal() && !IsQuiet(),
		w:    writer(),
	}
}

// Tracker returns the counts behind the display
func (p *Progress) Tracker() *StatusTracker {
	return p.tracker
}

// Planned implements the pipeline observer
func (p *Progress) Planned(stage report.Stage, n int) {
	p.tracker.Plan(stage, n)
	p.render()
}

// Finished implements the pipeline observer
func (p *Progress) Finished(item report.Item) {
	p.tracker.Record(item)

	if item.Status == report.StatusFailed {
		p.mu.Lock()
		if p.live {
			fmt.Fprint(p.w, "\r"+strings.Repeat(" ", 100)+"\r")
		}
		fmt.Fprintf(p.w, "%s %s [%s] %s\n", Red("✗"), item.Name(), item.Stage, Dim(item.Error))
		p.mu.Unlock()
	}
	p.render()
}

// Line returns the current progress line
func (p *Progress) Line() string {
	planned, finished, failed := p.tracker.Counts()
	line := fmt.Sprintf("%s %s %d/%d • %.1f/min",
		Cyan(p.label),
		p.bar.ViewAs(p.tracker.Fraction()),
		finished,
		planned,
		p.tracker.GetRate(),
	)
	if failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", failed))
	}
	return line
}

func (p *Progress) render() {
	if !p.live {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return
	}
	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), p.Line())
}

// End finishes the progress line; later updates are not drawn
func (p *Progress) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.end()
}

func (p *Progress) end() {
	if p.live && !p.ended {
		fmt.Fprintln(p.w)
	}
	p.ended = true
}

// Complete ends the progress line and prints the report summary
func (p *Progress) Complete(rep *report.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.end()
	if IsQuiet() || rep == nil {
		return
	}

	failed := rep.Count(report.StatusFailed)
	headline := fmt.Sprintf("%s %s: %d ok, %d skipped",
		Green("✓"), p.label, rep.Count(report.StatusOK), rep.Count(report.StatusSkipped))
	if failed > 0 {
		headline = fmt.Sprintf("%s %s: %d ok, %d skipped, %s",
			Yellow("!"), p.label, rep.Count(report.StatusOK), rep.Count(report.StatusSkipped),
			Red(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintln(p.w, headline)
	_ = rep.Summary(p.w)
}
