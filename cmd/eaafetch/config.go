package main

import (
	"fmt"
	"os"

	"eaafetch/pkg/checkpoint"
	"eaafetch/pkg/config"
	"eaafetch/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage eaafetch configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (EAAFETCH_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default value.

The file is created as '.eaafetch.yaml' in the current directory unless a
different path is given with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from all sources and check its values.

Besides value ranges this reports whether the output directory already
exists and whether an interrupted run left a checkpoint behind.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".eaafetch.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "1. Pick collections and the target size in the file")
	fmt.Fprintln(cmd.OutOrStdout(), "2. Run 'eaafetch config validate' to check the configuration")
	fmt.Fprintln(cmd.OutOrStdout(), "3. Start with 'eaafetch run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(out)
	fmt.Fprint(out, string(data))

	fmt.Fprintln(out, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintln(out, "2. Environment variables (EAAFETCH_*)")
	if configFile != "" {
		fmt.Fprintf(out, "3. Configuration file: %s\n", configFile)
	} else {
		fmt.Fprintln(out, "3. Configuration file: (searched default locations)")
	}
	fmt.Fprintln(out, "4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	var warnings []string
	cpExists := false
	if cps, err := checkpoint.NewManager(cfg.Output.Directory, nil); err == nil {
		cpExists = cps.Exists()
		if cpExists {
			warnings = append(warnings, fmt.Sprintf("an interrupted run left a checkpoint at %s; fetch will resume", cps.Path()))
		}
	}
	if _, err := os.Stat(cfg.Output.Directory); err == nil && !cfg.Download.Resume && !cpExists {
		warnings = append(warnings, fmt.Sprintf("output directory %s exists; fetch needs --resume", cfg.Output.Directory))
	}

	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}

	ui.PrintSuccess("Configuration is valid")

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nConfiguration summary:")
	fmt.Fprintf(out, "  Gallery: %s%s\n", cfg.Gallery.BaseURL, cfg.Gallery.GalleryPath)
	fmt.Fprintf(out, "  Collections: %v\n", cfg.Gallery.Collections)
	fmt.Fprintf(out, "  Output directory: %s\n", cfg.Output.Directory)
	fmt.Fprintf(out, "  Target size: %dx%d (%s)\n", cfg.Normalize.Width, cfg.Normalize.Height, cfg.Normalize.Interpolation)
	fmt.Fprintf(out, "  Workers: %d resolve, %d download, %d normalize\n",
		cfg.Download.ResolveWorkers, cfg.Download.DownloadWorkers, cfg.NormalizeWorkers())
	fmt.Fprintf(out, "  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Fprintf(out, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
