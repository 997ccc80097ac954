// Package layout keeps the output root flat after extraction.
//
// One collection of the gallery ships its images inside an extra wrapper
// directory. Fixer hoists the children of that directory into the output
// root and removes the wrapper.
package layout

import (
	"os"
	"path/filepath"

	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/logger"

	"github.com/spf13/afero"
)

// Fixer reconciles the known nested collection directory
type Fixer struct {
	fs       afero.Fs
	quirkDir string
	logger   logger.Logger
}

// NewFixer creates a fixer for the wrapper directory called quirkDir
func NewFixer(fs afero.Fs, quirkDir string, log logger.Logger) *Fixer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fixer{fs: fs, quirkDir: quirkDir, logger: log}
}

// ReconcileNestedCollection moves every direct child of the wrapper directory
// to outputDir and removes the wrapper. A missing wrapper is a no-op, so the
// call is safe to repeat. Name collisions abort before anything is moved,
// except when resumed: a run continuing into an existing root re-extracts
// archives it has no record of, and the fresh file replaces its hoisted copy.
// Directories never replace or get replaced.
func (f *Fixer) ReconcileNestedCollection(outputDir string, resumed bool) (int, error) {
	if f.quirkDir == "" {
		return 0, nil
	}
	nested := filepath.Join(outputDir, f.quirkDir)

	info, err := f.fs.Stat(nested)
	if err != nil {
		if os.IsNotExist(err) {
			f.logger.DebugWithFields("No nested collection directory", map[string]interface{}{
				"path": nested,
			})
			return 0, nil
		}
		return 0, errs.NewLayoutError(nested, "cannot inspect nested directory: %v", err)
	}
	if !info.IsDir() {
		return 0, errs.NewLayoutError(nested, "expected a directory")
	}

	entries, err := afero.ReadDir(f.fs, nested)
	if err != nil {
		return 0, errs.NewLayoutError(nested, "cannot list nested directory: %v", err)
	}

	var replace []string
	for _, entry := range entries {
		target := filepath.Join(outputDir, entry.Name())
		existing, err := f.fs.Stat(target)
		if err != nil {
			continue
		}
		if !resumed || entry.IsDir() || existing.IsDir() {
			return 0, errs.NewLayoutError(target, "%s already exists in the output root", entry.Name())
		}
		replace = append(replace, target)
	}

	for _, target := range replace {
		if err := f.fs.Remove(target); err != nil {
			return 0, errs.NewLayoutError(target, "cannot replace file in output root: %v", err)
		}
	}
	if len(replace) > 0 {
		f.logger.WarnWithFields("Replaced hoisted files with re-extracted copies", map[string]interface{}{
			"directory": f.quirkDir,
			"replaced":  len(replace),
		})
	}

	moved := 0
	for _, entry := range entries {
		from := filepath.Join(nested, entry.Name())
		to := filepath.Join(outputDir, entry.Name())
		if err := f.fs.Rename(from, to); err != nil {
			return moved, errs.NewLayoutError(from, "cannot move to output root: %v", err)
		}
		moved++
	}

	if err := f.fs.Remove(nested); err != nil {
		return moved, errs.NewLayoutError(nested, "cannot remove nested directory: %v", err)
	}

	f.logger.InfoWithFields("Nested collection hoisted", map[string]interface{}{
		"directory": f.quirkDir,
		"moved":     moved,
	})
	return moved, nil
}
