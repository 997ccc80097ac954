package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	errs "eaafetch/pkg/errors"

	"github.com/spf13/afero"
)

// PartialSuffix marks an archive whose download has not finished
const PartialSuffix = ".part"

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Manager owns the output root and every file written below it
type Manager struct {
	fs   afero.Fs
	root string
}

// NewManager creates a storage manager for root on the host filesystem
func NewManager(root string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), root)
}

// NewManagerWithFs creates a storage manager on an arbitrary filesystem
func NewManagerWithFs(fs afero.Fs, root string) *Manager {
	return &Manager{fs: fs, root: filepath.Clean(root)}
}

// Fs returns the filesystem the manager writes to
func (m *Manager) Fs() afero.Fs {
	return m.fs
}

// Root returns the output root path
func (m *Manager) Root() string {
	return m.root
}

// CreateRoot creates the output root. An existing root is an
// AlreadyExistsError unless resume is set. created reports whether this call
// made the directory.
func (m *Manager) CreateRoot(resume bool) (created bool, err error) {
	info, err := m.fs.Stat(m.root)
	switch {
	case err == nil:
		if !info.IsDir() {
			return false, errs.NewLayoutError(m.root, "output path exists and is not a directory")
		}
		if !resume {
			return false, errs.NewAlreadyExistsError(m.root)
		}
		return false, nil
	case !os.IsNotExist(err):
		return false, fmt.Errorf("failed to stat output directory: %w", err)
	}

	if err := m.fs.MkdirAll(m.root, 0755); err != nil {
		return false, fmt.Errorf("failed to create output directory: %w", err)
	}
	return true, nil
}

// RemoveIfEmpty deletes the output root when nothing was written to it
func (m *Manager) RemoveIfEmpty() (bool, error) {
	empty, err := afero.IsEmpty(m.fs, m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !empty {
		return false, nil
	}
	if err := m.fs.Remove(m.root); err != nil {
		return false, fmt.Errorf("failed to remove empty output directory: %w", err)
	}
	return true, nil
}

// ArchivePath returns where the archive called name is stored
func (m *Manager) ArchivePath(name string) string {
	return filepath.Join(m.root, name+".zip")
}

// Exists reports whether path exists
func (m *Manager) Exists(path string) bool {
	ok, err := afero.Exists(m.fs, path)
	return err == nil && ok
}

// CreatePartial opens the in-progress file for the archive at finalPath
func (m *Manager) CreatePartial(finalPath string) (afero.File, error) {
	f, err := m.fs.Create(finalPath + PartialSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create partial file: %w", err)
	}
	return f, nil
}

// Commit moves a finished partial file to its final name
func (m *Manager) Commit(finalPath string) error {
	if err := m.fs.Rename(finalPath+PartialSuffix, finalPath); err != nil {
		return fmt.Errorf("failed to rename partial file: %w", err)
	}
	return nil
}

// WriteAtomic writes path through a temporary sibling and renames it into
// place, so a reader never sees a half-written file.
func (m *Manager) WriteAtomic(path string, write func(w io.Writer) error) error {
	tempFile := path + ".tmp"
	out, err := m.fs.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	err = write(out)
	closeErr := out.Close()

	if err != nil {
		m.fs.Remove(tempFile)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if closeErr != nil {
		m.fs.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := m.fs.Rename(tempFile, path); err != nil {
		m.fs.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// ListImages returns the image files directly under the output root, sorted
func (m *Manager) ListImages() ([]string, error) {
	entries, err := afero.ReadDir(m.fs, m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		images = append(images, filepath.Join(m.root, entry.Name()))
	}
	sort.Strings(images)
	return images, nil
}

// IsImage reports whether name has a supported image extension
func IsImage(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}
