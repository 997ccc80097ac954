package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"eaafetch/pkg/config"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/report"
	"eaafetch/pkg/ui"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagOverrides collects the flags the user set explicitly, keyed by flag
// name, in the form config.MergeCommandLineFlags expects
func flagOverrides(cmd *cobra.Command) (map[string]interface{}, error) {
	flags := make(map[string]interface{})
	var err error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Value.Type() {
		case "int":
			flags[f.Name], err = cmd.Flags().GetInt(f.Name)
		case "bool":
			flags[f.Name], err = cmd.Flags().GetBool(f.Name)
		case "string":
			flags[f.Name], err = cmd.Flags().GetString(f.Name)
		}
	})
	if err != nil {
		return nil, err
	}

	if s, ok := flags["collections"].(string); ok {
		ids, err := config.ParseCollections(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --collections: %w", err)
		}
		flags["collections"] = ids
	}

	// The progress line replaces info logs unless asked otherwise
	if _, set := flags["log-level"]; !set && !verbose && ui.IsTerminal() {
		flags["log-level"] = "error"
	}
	return flags, nil
}

// loadConfig resolves the configuration for cmd and initializes logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags, err := flagOverrides(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.WithField("version", version).Debug("eaafetch starting")
	return cfg, nil
}

// signalContext is cancelled on interrupt so workers stop and partial
// downloads stay on disk
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// writeReports stores the run reports as JSON when a report file is configured.
// Several reports get the report name inserted before the extension.
func writeReports(cfg *config.Config, reports ...*report.Report) {
	path := cfg.Output.ReportFile
	if path == "" {
		return
	}
	fs := afero.NewOsFs()
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		target := path
		if len(reports) > 1 {
			ext := filepath.Ext(path)
			target = strings.TrimSuffix(path, ext) + "-" + rep.Name() + ext
		}
		if err := rep.WriteJSON(fs, target); err != nil {
			ui.PrintWarning("Failed to write report", err)
			continue
		}
		logger.WithField("path", target).Info("Report written")
	}
}
