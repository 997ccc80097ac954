package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the gallery downloader
type Config struct {
	// Source website layout
	Gallery GalleryConfig `yaml:"gallery" json:"gallery"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Auto-crop settings
	Normalize NormalizeConfig `yaml:"normalize" json:"normalize"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Retry configuration for transient fetch failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GalleryConfig describes where the collections live
type GalleryConfig struct {
	BaseURL     string `yaml:"base_url" json:"base_url"`
	GalleryPath string `yaml:"gallery_path" json:"gallery_path"`
	Collections []int  `yaml:"collections" json:"collections"`
	MaxPages    int    `yaml:"max_pages" json:"max_pages"`
	UserAgent   string `yaml:"user_agent" json:"user_agent"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	Directory         string `yaml:"directory" json:"directory"`
	QuirkDirectory    string `yaml:"quirk_directory" json:"quirk_directory"`
	FullSizeDirectory string `yaml:"full_size_directory" json:"full_size_directory"`
	ReportFile        string `yaml:"report_file" json:"report_file"`
}

// NormalizeConfig holds the auto-crop and resize settings
type NormalizeConfig struct {
	Width         int    `yaml:"width" json:"width"`
	Height        int    `yaml:"height" json:"height"`
	Threshold     uint8  `yaml:"threshold" json:"threshold"`
	Interpolation string `yaml:"interpolation" json:"interpolation"`
	KeepFullSize  bool   `yaml:"keep_full_size" json:"keep_full_size"`
	Workers       int    `yaml:"workers" json:"workers"`
	JPEGQuality   int    `yaml:"jpeg_quality" json:"jpeg_quality"`
}

// RateLimitConfig holds the shared outbound token bucket settings
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ResolveWorkers  int           `yaml:"resolve_workers" json:"resolve_workers"`
	DownloadWorkers int           `yaml:"download_workers" json:"download_workers"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	ChunkSize       int           `yaml:"chunk_size" json:"chunk_size"`
	FailFast        bool          `yaml:"fail_fast" json:"fail_fast"`
	Resume          bool          `yaml:"resume" json:"resume"`
}

// RetryConfig holds backoff settings for retryable fetch errors
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Strategy     string        `yaml:"strategy" json:"strategy"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Backoff strategies accepted by RetryConfig.Strategy
const (
	BackoffExponential = "exponential"
	BackoffConstant    = "constant"
)

// Interpolation modes accepted by NormalizeConfig.Interpolation
const (
	InterpolationArea    = "area"
	InterpolationLanczos = "lanczos"
)

// DefaultConfig returns a Config instance with the values the gallery was built for
func DefaultConfig() *Config {
	return &Config{
		Gallery: GalleryConfig{
			BaseURL:     "https://eros.usgs.gov",
			GalleryPath: "/image-gallery/earth-art",
			Collections: []int{1, 2, 3, 4, 5, 6},
			MaxPages:    50,
			UserAgent:   "eaafetch/1.0 (+https://eros.usgs.gov/image-gallery)",
		},
		Output: OutputConfig{
			Directory:         "./EarthAsArt",
			QuirkDirectory:    "EAA4_Final_JPGS",
			FullSizeDirectory: "fullsize",
		},
		Normalize: NormalizeConfig{
			Width:         1024,
			Height:        1024,
			Threshold:     1,
			Interpolation: InterpolationArea,
			JPEGQuality:   95,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         5,
		},
		Download: DownloadConfig{
			ResolveWorkers:  4,
			DownloadWorkers: 2,
			Timeout:         5 * time.Minute,
			ChunkSize:       100000,
		},
		Retry: RetryConfig{
			Enabled:      true,
			Strategy:     BackoffExponential,
			MaxAttempts:  3,
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// NormalizeWorkers returns the crop worker count, defaulting to the CPU count
func (c *Config) NormalizeWorkers() int {
	if c.Normalize.Workers > 0 {
		return c.Normalize.Workers
	}
	return runtime.NumCPU()
}

// ParseCollections parses a comma separated list of collection numbers
func ParseCollections(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid collection %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("EAAFETCH_BASE_URL"); baseURL != "" {
		c.Gallery.BaseURL = baseURL
	}
	if collections := os.Getenv("EAAFETCH_COLLECTIONS"); collections != "" {
		ids, err := ParseCollections(collections)
		if err != nil {
			return fmt.Errorf("EAAFETCH_COLLECTIONS: %w", err)
		}
		c.Gallery.Collections = ids
	}
	if outputDir := os.Getenv("EAAFETCH_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}

	intVars := map[string]*int{
		"EAAFETCH_TARGET_WIDTH":        &c.Normalize.Width,
		"EAAFETCH_TARGET_HEIGHT":       &c.Normalize.Height,
		"EAAFETCH_REQUESTS_PER_MINUTE": &c.RateLimit.RequestsPerMinute,
	}
	for name, dst := range intVars {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if val > 0 {
			*dst = val
		}
	}

	if keep := os.Getenv("EAAFETCH_KEEP_FULL_SIZE"); keep != "" {
		c.Normalize.KeepFullSize = strings.ToLower(keep) == "true"
	}
	if logLevel := os.Getenv("EAAFETCH_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".eaafetch.yaml",
		".eaafetch.yml",
		filepath.Join(home, ".config", "eaafetch", "config.yaml"),
		filepath.Join(home, ".config", "eaafetch", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Gallery.BaseURL == "" {
		errs = append(errs, errors.New("gallery base URL is required"))
	}
	if len(c.Gallery.Collections) == 0 {
		errs = append(errs, errors.New("at least one collection is required"))
	}
	for _, id := range c.Gallery.Collections {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("collection %d is not a positive number", id))
		}
	}
	if c.Gallery.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if strings.ContainsAny(c.Output.FullSizeDirectory, `/\`) {
		errs = append(errs, errors.New("full size directory must be a plain name"))
	}

	if c.Normalize.Width <= 0 || c.Normalize.Height <= 0 {
		errs = append(errs, errors.New("target width and height must be positive"))
	}
	switch c.Normalize.Interpolation {
	case InterpolationArea, InterpolationLanczos:
	default:
		errs = append(errs, fmt.Errorf("invalid interpolation %q", c.Normalize.Interpolation))
	}
	if c.Normalize.JPEGQuality < 1 || c.Normalize.JPEGQuality > 100 {
		errs = append(errs, errors.New("jpeg quality must be between 1 and 100"))
	}
	if c.Normalize.Workers < 0 {
		errs = append(errs, errors.New("normalize workers cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Download.ResolveWorkers <= 0 || c.Download.DownloadWorkers <= 0 {
		errs = append(errs, errors.New("worker counts must be positive"))
	}
	if c.Download.ResolveWorkers > 16 || c.Download.DownloadWorkers > 16 {
		errs = append(errs, errors.New("worker counts should not exceed 16"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	switch c.Retry.Strategy {
	case "", BackoffExponential, BackoffConstant:
	default:
		errs = append(errs, fmt.Errorf("invalid retry strategy %q", c.Retry.Strategy))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if ids, ok := flags["collections"].([]int); ok && len(ids) > 0 {
		c.Gallery.Collections = ids
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if width, ok := flags["width"].(int); ok && width > 0 {
		c.Normalize.Width = width
	}
	if height, ok := flags["height"].(int); ok && height > 0 {
		c.Normalize.Height = height
	}
	if threshold, ok := flags["threshold"].(int); ok && threshold >= 0 && threshold < 256 {
		c.Normalize.Threshold = uint8(threshold)
	}
	if interp, ok := flags["interpolation"].(string); ok && interp != "" {
		c.Normalize.Interpolation = interp
	}
	if keep, ok := flags["keep-full-size"].(bool); ok {
		c.Normalize.KeepFullSize = keep
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Normalize.Workers = workers
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if n, ok := flags["resolve-workers"].(int); ok && n > 0 {
		c.Download.ResolveWorkers = n
	}
	if n, ok := flags["download-workers"].(int); ok && n > 0 {
		c.Download.DownloadWorkers = n
	}
	if failFast, ok := flags["fail-fast"].(bool); ok {
		c.Download.FailFast = failFast
	}
	if resume, ok := flags["resume"].(bool); ok {
		c.Download.Resume = resume
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".eaafetch.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
