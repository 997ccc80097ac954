package logger

import (
	"bytes"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eaafetch/pkg/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid log level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	}
	for input, want := range tests {
		got, err := parseLogLevel(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestConsoleWriterNoColor(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	zlog := zerolog.New(consoleWriter(&buf, false))
	l := &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}

	l.WithField("collection", 4).Info("listing")

	out := buf.String()
	assert.Contains(t, out, "listing")
	assert.Contains(t, out, "collection=4")
	assert.NotContains(t, out, "\033[")
}

func TestZerologLoggerFieldsAreCopied(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf)
	base := &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}

	a := base.WithField("stage", "resolve")
	b := a.WithField("stage", "download")

	a.Info("first")
	b.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"stage":"resolve"`)
	assert.Contains(t, lines[1], `"stage":"download"`)
}

func TestTestLoggerCapturesFieldsAndErrors(t *testing.T) {
	l := NewTestLogger()
	l.WithField("archive", "EAA1").WithError(errors.New("bad zip")).Error("Archive ingest failed")
	l.InfoWithFields("done", map[string]interface{}{"files": 2})

	msgs := l.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "EAA1", msgs[0].Fields["archive"])
	assert.EqualError(t, msgs[0].Error, "bad zip")
	assert.True(t, l.HasError())
	assert.True(t, l.HasMessage("done"))

	l.Clear()
	assert.Empty(t, l.GetMessages())
}

func TestHelpers(t *testing.T) {
	l := NewTestLogger()

	LogRequest(l, "GET", "http://x", 503, 20*time.Millisecond)
	LogArchive(l, 4, "EAA4_01", 1, nil)
	LogCrop(l, "a.jpg", image.Rect(0, 0, 10, 10), false, nil)
	LogCollectionProgress(l, 2, 1, 12)

	assert.Len(t, l.GetMessagesByLevel("ERROR"), 1)
	assert.True(t, l.HasMessage("Archive extracted"))
	assert.True(t, l.HasMessage("Image normalized"))
	assert.True(t, l.HasMessage("Collection page listed"))
}
