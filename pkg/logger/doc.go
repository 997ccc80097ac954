// Package logger provides the structured logging interface of the gallery downloader.
//
// It wraps the zerolog library to provide a small API with support for:
//   - Multiple log levels (Debug, Info, Warn, Error)
//   - Structured logging with fields
//   - Console output, colored only when stderr is a terminal
//   - Optional file output
//   - Global logger instance for easy access
//
// Basic Usage:
//
//	import "eaafetch/pkg/logger"
//
//	// Initialize the global logger
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	    File:  "/var/log/eaafetch.log",
//	}
//	err := logger.Initialize(cfg)
//
//	logger.Info("Acquisition started")
//	logger.WithField("collection", 4).Info("Collection listed")
//	logger.WithError(err).Error("Archive ingest failed")
//
// Components receive a Logger explicitly and derive scoped loggers from it:
//
//	log := base.WithField("component", "acquisition")
//	log.InfoWithFields("Archive extracted", map[string]interface{}{
//	    "archive": "lake-eyre",
//	    "files":   1,
//	})
//
// Tests use NewTestLogger to capture and assert on emitted entries.
package logger
