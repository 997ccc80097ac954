package main

import (
	"eaafetch/pkg/pipeline"
	"eaafetch/pkg/ui"

	"github.com/spf13/cobra"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and unpack every image archive of the gallery",
	Long: `Walk every configured collection of the Earth as Art gallery, download each
image archive, extract it into the output directory and delete the archive.

The output directory must not exist yet. An interrupted run leaves a
checkpoint behind; running the same command again continues where it
stopped.`,
	Example: `  # Download all six collections into ./EarthAsArt
  eaafetch fetch

  # Only collections 1 and 4, into a custom directory
  eaafetch fetch --collections 1,4 --output ./eaa

  # Continue into an existing directory
  eaafetch fetch --resume

  # Stop at the first failing image
  eaafetch fetch --fail-fast`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addFetchFlags(fetchCmd)
}

func addFetchFlags(cmd *cobra.Command) {
	cmd.Flags().String("collections", "", "comma separated collection numbers (default 1-6)")
	cmd.Flags().StringP("output", "o", "", "output directory (default ./EarthAsArt)")
	cmd.Flags().Bool("resume", false, "continue into an existing output directory")
	cmd.Flags().Bool("fail-fast", false, "abort at the first failure")
	cmd.Flags().Int("rate-limit", 60, "requests per minute")
	cmd.Flags().Int("resolve-workers", 4, "concurrent page resolvers")
	cmd.Flags().Int("download-workers", 2, "concurrent archive downloads")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deps, err := pipeline.Build(cfg, nil)
	if err != nil {
		return err
	}

	ui.PrintInfo("Output", cfg.Output.Directory)
	ui.PrintHighlight("[FETCHING COLLECTIONS]")

	ctx, stop := signalContext()
	defer stop()

	progress := ui.NewProgress("fetch")
	rep, err := deps.Acquisition(progress).Run(ctx)
	progress.Complete(rep)
	writeReports(cfg, rep)
	if err != nil {
		return err
	}

	ui.PrintSuccess("[FETCH COMPLETED SUCCESSFULLY]")
	return nil
}
