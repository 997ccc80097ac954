package storage

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"testing"

	errs "eaafetch/pkg/errors"

	"github.com/spf13/afero"
)

func TestCreateRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManagerWithFs(fs, "/out")

	created, err := manager.CreateRoot(false)
	if err != nil {
		t.Fatalf("Failed to create root: %v", err)
	}
	if !created {
		t.Error("Expected root to be reported as created")
	}

	// Second run without resume must fail
	_, err = manager.CreateRoot(false)
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("Expected already exists error, got %v", err)
	}

	// Resume accepts the existing root
	created, err = manager.CreateRoot(true)
	if err != nil {
		t.Fatalf("Expected resume to accept existing root: %v", err)
	}
	if created {
		t.Error("Expected existing root not to be reported as created")
	}
}

func TestCreateRootOverFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/out", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewManagerWithFs(fs, "/out").CreateRoot(true)
	if !errors.Is(err, errs.ErrLayout) {
		t.Errorf("Expected layout error, got %v", err)
	}
}

func TestRemoveIfEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManagerWithFs(fs, "/out")
	if _, err := manager.CreateRoot(false); err != nil {
		t.Fatal(err)
	}

	removed, err := manager.RemoveIfEmpty()
	if err != nil || !removed {
		t.Fatalf("Expected empty root to be removed, got removed=%v err=%v", removed, err)
	}
	if manager.Exists("/out") {
		t.Error("Expected root to be gone")
	}

	// Missing root is not an error
	removed, err = manager.RemoveIfEmpty()
	if err != nil || removed {
		t.Errorf("Expected no-op on missing root, got removed=%v err=%v", removed, err)
	}

	// A root with content is kept
	if _, err := manager.CreateRoot(false); err != nil {
		t.Fatal(err)
	}
	afero.WriteFile(fs, "/out/a.jpg", []byte("x"), 0644)
	removed, err = manager.RemoveIfEmpty()
	if err != nil || removed {
		t.Errorf("Expected non-empty root to be kept, got removed=%v err=%v", removed, err)
	}
}

func TestPartialAndCommit(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManagerWithFs(fs, "/out")
	manager.CreateRoot(false)

	final := manager.ArchivePath("lake")
	if final != filepath.Join("/out", "lake.zip") {
		t.Errorf("Unexpected archive path %s", final)
	}

	f, err := manager.CreatePartial(final)
	if err != nil {
		t.Fatalf("Failed to create partial: %v", err)
	}
	f.Write([]byte("zipdata"))
	f.Close()

	if manager.Exists(final) {
		t.Error("Final archive must not exist before commit")
	}
	if err := manager.Commit(final); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if !manager.Exists(final) || manager.Exists(final+PartialSuffix) {
		t.Error("Expected partial file to be renamed")
	}
}

func TestWriteAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManagerWithFs(fs, "/out")
	manager.CreateRoot(false)

	path := "/out/img.jpg"
	testData := []byte("image data")
	err := manager.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(testData)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	content, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("Failed to read written file: %v", err)
	}
	if !bytes.Equal(content, testData) {
		t.Error("File content does not match expected data")
	}

	// A failing writer leaves the old content and no temp file
	err = manager.WriteAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return errors.New("encoder failed")
	})
	if err == nil {
		t.Fatal("Expected write error")
	}
	content, _ = afero.ReadFile(fs, path)
	if !bytes.Equal(content, testData) {
		t.Error("Original content should survive a failed write")
	}
	if manager.Exists(path + ".tmp") {
		t.Error("Temporary file should be cleaned up")
	}
}

func TestListImages(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManagerWithFs(fs, "/out")
	manager.CreateRoot(false)

	for _, name := range []string{"b.JPG", "a.png", "notes.txt", ".hidden.jpg", "c.tif", "pending.zip.part"} {
		afero.WriteFile(fs, filepath.Join("/out", name), []byte("x"), 0644)
	}
	fs.MkdirAll("/out/fullsize", 0755)
	afero.WriteFile(fs, "/out/fullsize/a.png", []byte("x"), 0644)

	images, err := manager.ListImages()
	if err != nil {
		t.Fatalf("Failed to list images: %v", err)
	}

	expected := []string{"/out/a.png", "/out/b.JPG", "/out/c.tif"}
	if !reflect.DeepEqual(images, expected) {
		t.Errorf("Expected %v, got %v", expected, images)
	}
}

func TestIsImage(t *testing.T) {
	cases := map[string]bool{
		"x.jpg":     true,
		"x.JPEG":    true,
		"x.bmp":     true,
		"x.zip":     false,
		"x":         false,
		".x.png":    false,
		"dir/y.gif": true,
	}
	for name, want := range cases {
		if got := IsImage(name); got != want {
			t.Errorf("IsImage(%q) = %v, want %v", name, got, want)
		}
	}
}
