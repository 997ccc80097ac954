package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConfigFile(t *testing.T) {
	t.Run("finds config in current directory", func(t *testing.T) {
		tempDir := t.TempDir()
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)

		require.NoError(t, os.Chdir(tempDir))
		t.Setenv("HOME", tempDir)

		err := os.WriteFile(filepath.Join(tempDir, ".eaafetch.yaml"), []byte("gallery: {}"), 0644)
		require.NoError(t, err)

		cfg := DefaultConfig()
		assert.Equal(t, ".eaafetch.yaml", cfg.findConfigFile())
	})

	t.Run("finds config in home directory", func(t *testing.T) {
		tempDir := t.TempDir()
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)

		require.NoError(t, os.Chdir(t.TempDir()))
		t.Setenv("HOME", tempDir)

		configPath := filepath.Join(tempDir, ".config", "eaafetch", "config.yml")
		require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
		require.NoError(t, os.WriteFile(configPath, []byte("gallery: {}"), 0644))

		cfg := DefaultConfig()
		assert.Equal(t, configPath, cfg.findConfigFile())
	})

	t.Run("no config file found", func(t *testing.T) {
		tempDir := t.TempDir()
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)

		require.NoError(t, os.Chdir(tempDir))
		t.Setenv("HOME", tempDir)

		cfg := DefaultConfig()
		assert.Empty(t, cfg.findConfigFile())
	})
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gallery: [unclosed"), 0644))
	err = cfg.LoadFromFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadPrecedence(t *testing.T) {
	tempDir := t.TempDir()
	oldDir, _ := os.Getwd()
	defer os.Chdir(oldDir)
	require.NoError(t, os.Chdir(tempDir))
	t.Setenv("HOME", tempDir)

	configPath := filepath.Join(tempDir, "eaafetch.yaml")
	content := `
gallery:
  base_url: http://from-file
  collections: [1, 2]
output:
  directory: /from/file
normalize:
  width: 640
  height: 640
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	// env beats the file, flags beat env
	t.Setenv("EAAFETCH_BASE_URL", "http://from-env")
	t.Setenv("EAAFETCH_OUTPUT_DIR", "/from/env")

	cfg, err := Load(configPath, map[string]interface{}{
		"output": "/from/flag",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.Gallery.BaseURL)
	assert.Equal(t, []int{1, 2}, cfg.Gallery.Collections)
	assert.Equal(t, "/from/flag", cfg.Output.Directory)
	assert.Equal(t, 640, cfg.Normalize.Width)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tempDir := t.TempDir()
	oldDir, _ := os.Getwd()
	defer os.Chdir(oldDir)
	require.NoError(t, os.Chdir(tempDir))
	t.Setenv("HOME", tempDir)

	_, err := Load("", map[string]interface{}{
		"interpolation": "bicubic",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.RequestsPerMinute = -1
	cfg.RateLimit.BurstSize = 0
	cfg.Retry.MaxAttempts = -1
	cfg.Download.ChunkSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"requests per minute must be positive",
		"burst size must be positive",
		"max retries cannot be negative",
		"chunk size must be positive",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNormalizeWorkers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, runtime.NumCPU(), cfg.NormalizeWorkers())

	cfg.Normalize.Workers = 3
	assert.Equal(t, 3, cfg.NormalizeWorkers())
}

func TestDurationParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durations.yaml")
	content := `
download:
  timeout: 2m30s
retry:
  base_delay: 250ms
  max_delay: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 150*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, time.Minute, cfg.Retry.MaxDelay)
}
