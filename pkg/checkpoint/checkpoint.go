package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"eaafetch/pkg/logger"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

// Version of the checkpoint file format
const Version = 1

// ArchiveRecord describes one archive that was extracted into the output root
type ArchiveRecord struct {
	Collection  int       `json:"collection"`
	Files       []string  `json:"files"`
	Digest      string    `json:"digest,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Checkpoint represents the state of an acquisition run for one output root
type Checkpoint struct {
	mu sync.RWMutex

	OutputDir      string                   `json:"output_dir"`
	Collections    []int                    `json:"collections"`
	Listed         map[int]int              `json:"listed"`   // collection -> landing pages found
	Archives       map[string]ArchiveRecord `json:"archives"` // archive name -> record
	TotalExtracted int                      `json:"total_extracted"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	Version        int                      `json:"version"`
}

// IsArchiveExtracted checks if an archive has already been extracted
func (c *Checkpoint) IsArchiveExtracted(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.Archives[name]
	return exists
}

// Archive returns the record of an extracted archive
func (c *Checkpoint) Archive(name string) (ArchiveRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, exists := c.Archives[name]
	return record, exists
}

// IsCollectionListed checks if every listing page of a collection was read
func (c *Checkpoint) IsCollectionListed(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.Listed[id]
	return exists
}

// ExtractedCount returns the number of archives recorded
func (c *Checkpoint) ExtractedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Archives)
}

// Manager handles checkpoint operations
type Manager struct {
	fs             afero.Fs
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager for outputDir in the platform data directory
func NewManager(outputDir string, log logger.Logger) (*Manager, error) {
	dataDir, err := DataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerWithFs(afero.NewOsFs(), dataDir, outputDir, log)
}

// NewManagerWithFs creates a checkpoint manager storing its files below dataDir
func NewManagerWithFs(fs afero.Fs, dataDir, outputDir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	if err := fs.MkdirAll(checkpointsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		fs:             fs,
		checkpointPath: filepath.Join(checkpointsDir, FileName(outputDir)),
		logger:         log,
	}, nil
}

// FileName returns the checkpoint file name for an output root. Different
// roots with the same base name get different files.
func FileName(outputDir string) string {
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		abs = filepath.Clean(outputDir)
	}
	sum := blake2b.Sum256([]byte(abs))

	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, filepath.Base(abs))

	return fmt.Sprintf("%s-%s.checkpoint.json", base, hex.EncodeToString(sum[:6]))
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create creates a new checkpoint
func (m *Manager) Create(outputDir string, collections []int) (*Checkpoint, error) {
	checkpoint := &Checkpoint{
		OutputDir:   outputDir,
		Collections: append([]int(nil), collections...),
		Archives:    make(map[string]ArchiveRecord),
		Listed:      make(map[int]int),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Version:     Version,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"output_dir": outputDir,
		"path":       m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads an existing checkpoint; nil without error when there is none
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := m.fs.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version != Version {
		return nil, fmt.Errorf("unsupported checkpoint version %d", checkpoint.Version)
	}
	if checkpoint.Archives == nil {
		checkpoint.Archives = make(map[string]ArchiveRecord)
	}
	if checkpoint.Listed == nil {
		checkpoint.Listed = make(map[int]int)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"output_dir":      checkpoint.OutputDir,
		"total_extracted": checkpoint.TotalExtracted,
		"updated_at":      checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.mu.Lock()
	defer checkpoint.mu.Unlock()
	return m.save(checkpoint)
}

// save writes the checkpoint; the caller holds checkpoint.mu
func (m *Manager) save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := m.fs.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := m.fs.Rename(tempPath, m.checkpointPath); err != nil {
		m.fs.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"total_extracted": checkpoint.TotalExtracted,
	})

	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := m.fs.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := m.fs.Stat(m.checkpointPath)
	return err == nil
}

// RecordArchive records a successfully extracted archive and persists the checkpoint
func (m *Manager) RecordArchive(checkpoint *Checkpoint, name string, record ArchiveRecord) error {
	checkpoint.mu.Lock()
	defer checkpoint.mu.Unlock()

	if record.ExtractedAt.IsZero() {
		record.ExtractedAt = time.Now()
	}
	if _, exists := checkpoint.Archives[name]; !exists {
		checkpoint.TotalExtracted++
	}
	checkpoint.Archives[name] = record
	return m.save(checkpoint)
}

// RecordListing records that collection id was listed completely with refs
// landing pages and persists the checkpoint
func (m *Manager) RecordListing(checkpoint *Checkpoint, id, refs int) error {
	checkpoint.mu.Lock()
	defer checkpoint.mu.Unlock()

	checkpoint.Listed[id] = refs
	return m.save(checkpoint)
}

// DataDirectory returns the appropriate data directory for the current OS
func DataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		// Use XDG_DATA_HOME if set, otherwise ~/.local/share
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "eaafetch")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "eaafetch")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "eaafetch")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "eaafetch")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return dataDir, nil
}
