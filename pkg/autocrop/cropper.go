// Package autocrop removes uniform dark padding around an image and scales
// the remaining square to a fixed resolution.
//
// The background is assumed to be near black: every pixel brighter than the
// threshold counts as content. The largest content region decides the crop,
// which is forced square by shrinking its longer side from the top-left
// corner. The result replaces the source file.
package autocrop

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/storage"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Options controls a Cropper
type Options struct {
	Width         int
	Height        int
	Threshold     uint8
	Interpolation string
	// KeepFullSize writes the square crop, before resizing, to
	// FullSizeDirectory next to the source image.
	KeepFullSize      bool
	FullSizeDirectory string
	JPEGQuality       int
}

// Result describes one normalized image
type Result struct {
	Path string
	// Source is the bounds of the decoded image
	Source image.Rectangle
	// Region is the square crop taken from the source
	Region image.Rectangle
	// Output is the bounds of the written image
	Output image.Rectangle
	// Skipped is set when the image already had the target size and no padding
	Skipped bool
	// FullSizePath is set when the unresized crop was kept
	FullSizePath string
}

// Cropper normalizes images in place
type Cropper struct {
	store  *storage.Manager
	opts   Options
	logger logger.Logger
}

// NewCropper creates a cropper writing through store
func NewCropper(store *storage.Manager, opts Options, log logger.Logger) (*Cropper, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", opts.Width, opts.Height)
	}
	switch opts.Interpolation {
	case "":
		opts.Interpolation = InterpolationArea
	case InterpolationArea, InterpolationLanczos:
	default:
		return nil, fmt.Errorf("unknown interpolation %q", opts.Interpolation)
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 95
	}
	if opts.FullSizeDirectory == "" {
		opts.FullSizeDirectory = "fullsize"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Cropper{store: store, opts: opts, logger: log}, nil
}

// Normalize crops the image at path to its content and overwrites it with a
// Width x Height version.
func (c *Cropper) Normalize(path string) (*Result, error) {
	img, err := c.decode(path)
	if err != nil {
		return nil, err
	}

	region, err := DetectRegion(img, c.opts.Threshold)
	if err != nil {
		if errors.Is(err, errs.ErrNoContent) {
			return nil, errs.NewNoContentError(path)
		}
		return nil, err
	}

	square := SquareRegion(region)
	result := &Result{
		Path:   path,
		Source: img.Bounds(),
		Region: square,
		Output: image.Rect(0, 0, c.opts.Width, c.opts.Height),
	}

	if square == img.Bounds() && square.Dx() == c.opts.Width && square.Dy() == c.opts.Height {
		result.Skipped = true
		return result, nil
	}

	cropped := crop(img, square)

	if c.opts.KeepFullSize {
		full := filepath.Join(filepath.Dir(path), c.opts.FullSizeDirectory, filepath.Base(path))
		if err := c.store.Fs().MkdirAll(filepath.Dir(full), 0755); err != nil {
			return nil, fmt.Errorf("failed to create full size directory: %w", err)
		}
		if err := c.encodeTo(full, cropped); err != nil {
			return nil, fmt.Errorf("failed to write full size copy: %w", err)
		}
		result.FullSizePath = full
	}

	out, err := Resize(cropped, c.opts.Width, c.opts.Height, c.opts.Interpolation)
	if err != nil {
		return nil, err
	}
	if err := c.encodeTo(path, out); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return result, nil
}

func (c *Cropper) decode(path string) (image.Image, error) {
	f, err := c.store.Fs().Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// encodeTo writes img to path in the format its extension names
func (c *Cropper) encodeTo(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	return c.store.WriteAtomic(path, func(w io.Writer) error {
		switch ext {
		case ".jpg", ".jpeg":
			return jpeg.Encode(w, img, &jpeg.Options{Quality: c.opts.JPEGQuality})
		case ".png":
			return png.Encode(w, img)
		case ".gif":
			return gif.Encode(w, img, nil)
		case ".tif", ".tiff":
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		case ".bmp":
			return bmp.Encode(w, img)
		default:
			return fmt.Errorf("unsupported image format %q", ext)
		}
	})
}
