package logger

import (
	"fmt"
	"time"
)

// LogRequest logs HTTP request information
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("HTTP request client error", fields)
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	}
}

// LogArchive logs the outcome of one archive download and extraction
func LogArchive(l Logger, collection int, archive string, files int, err error) {
	entry := l.WithFields(map[string]interface{}{
		"collection": collection,
		"archive":    archive,
		"files":      files,
	})

	if err != nil {
		entry.WithError(err).Error("Archive ingest failed")
		return
	}
	entry.Info("Archive extracted")
}

// LogCrop logs the outcome of one auto-crop
func LogCrop(l Logger, image string, region fmt.Stringer, skipped bool, err error) {
	entry := l.WithField("image", image)
	switch {
	case err != nil:
		entry.WithError(err).Error("Normalization failed")
	case skipped:
		entry.Debug("Image already normalized")
	default:
		entry.WithField("region", region.String()).Info("Image normalized")
	}
}

// LogCollectionProgress logs how far the listing of a collection has come
func LogCollectionProgress(l Logger, collection, page, refs int) {
	l.WithFields(map[string]interface{}{
		"collection": collection,
		"page":       page,
		"refs":       refs,
	}).Info("Collection page listed")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
