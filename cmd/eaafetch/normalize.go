package main

import (
	"eaafetch/pkg/pipeline"
	"eaafetch/pkg/ui"

	"github.com/spf13/cobra"
)

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Crop every downloaded image to a fixed size square",
	Long: `Crop every image directly inside the output directory to its content, make
the crop square from its top-left corner and resize it to the target size.
Images are overwritten in place.`,
	Example: `  # Crop ./EarthAsArt to 1024x1024
  eaafetch normalize

  # Smaller output, keeping the unresized crops in ./EarthAsArt/fullsize
  eaafetch normalize --width 512 --height 512 --keep-full-size`,
	Args: cobra.NoArgs,
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	addNormalizeFlags(normalizeCmd, true)
}

func addNormalizeFlags(cmd *cobra.Command, withOutput bool) {
	if withOutput {
		cmd.Flags().StringP("output", "o", "", "output directory (default ./EarthAsArt)")
	}
	cmd.Flags().Int("width", 1024, "target width in pixels")
	cmd.Flags().Int("height", 1024, "target height in pixels")
	cmd.Flags().Int("threshold", 1, "luminance above which a pixel is content (0-255)")
	cmd.Flags().String("interpolation", "area", "resize interpolation (area, lanczos)")
	cmd.Flags().Bool("keep-full-size", false, "keep the unresized square crop")
	cmd.Flags().Int("workers", 0, "concurrent crops (default number of CPUs)")
	if withOutput {
		cmd.Flags().Bool("fail-fast", false, "abort at the first failure")
	}
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deps, err := pipeline.Build(cfg, nil)
	if err != nil {
		return err
	}

	ui.PrintInfo("Output", cfg.Output.Directory)
	ui.PrintHighlight("[NORMALIZING IMAGES]")

	ctx, stop := signalContext()
	defer stop()

	progress := ui.NewProgress("normalize")
	rep, err := deps.Normalization(progress).Run(ctx)
	progress.Complete(rep)
	writeReports(cfg, rep)
	if err != nil {
		return err
	}

	ui.PrintSuccess("[NORMALIZE COMPLETED SUCCESSFULLY]")
	return nil
}
