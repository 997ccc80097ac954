package main

import (
	"sync"

	"eaafetch/pkg/pipeline"
	"eaafetch/pkg/report"
	"eaafetch/pkg/ui"

	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the gallery and normalize every image",
	Long: `Run fetch followed by normalize. Normalization still runs when some images
failed to download, so everything that did arrive is cropped.`,
	Example: `  eaafetch run
  eaafetch run --collections 2 --width 512 --height 512`,
	Args: cobra.NoArgs,
	RunE: runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addFetchFlags(runCmd)
	addNormalizeFlags(runCmd, false)
}

func runAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deps, err := pipeline.Build(cfg, nil)
	if err != nil {
		return err
	}

	ui.PrintInfo("Output", cfg.Output.Directory)

	ctx, stop := signalContext()
	defer stop()

	ui.PrintHighlight("[FETCHING COLLECTIONS]")
	fetchProgress := ui.NewProgress("fetch")
	normProgress := ui.NewProgress("normalize")

	acq := deps.Acquisition(fetchProgress)
	norm := deps.Normalization(&phaseStart{Observer: normProgress, announce: func() {
		fetchProgress.End()
		ui.PrintHighlight("[NORMALIZING IMAGES]")
	}})

	reports, err := pipeline.Run(ctx, acq, norm)
	fetchProgress.Complete(reports[0])
	if len(reports) > 1 {
		normProgress.Complete(reports[1])
	}
	writeReports(cfg, reports...)
	if err != nil {
		return err
	}

	ui.PrintSuccess("[RUN COMPLETED SUCCESSFULLY]")
	return nil
}

// phaseStart calls announce before the first event of a phase reaches the
// wrapped observer
type phaseStart struct {
	pipeline.Observer
	once     sync.Once
	announce func()
}

func (p *phaseStart) Planned(stage report.Stage, n int) {
	p.once.Do(p.announce)
	p.Observer.Planned(stage, n)
}

func (p *phaseStart) Finished(item report.Item) {
	p.once.Do(p.announce)
	p.Observer.Finished(item)
}
