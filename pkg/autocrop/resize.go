package autocrop

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Interpolation modes
const (
	InterpolationArea    = "area"
	InterpolationLanczos = "lanczos"
)

// areaKernel is a unit box. Kernel.Scale widens it by the scale factor when
// shrinking, so each output pixel averages the source area it covers. It is
// only used for shrinking; enlarging falls back to bilinear.
var areaKernel = &draw.Kernel{
	Support: 0.5,
	At: func(t float64) float64 {
		return 1
	},
}

// Resize scales img to exactly width x height
func Resize(img image.Image, width, height int, interpolation string) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	switch interpolation {
	case InterpolationArea, "":
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		src := img.Bounds()
		if width > src.Dx() || height > src.Dy() {
			draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
		} else {
			areaKernel.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
		}
		return dst, nil
	case InterpolationLanczos:
		return resize.Resize(uint(width), uint(height), img, resize.Lanczos3), nil
	default:
		return nil, fmt.Errorf("unknown interpolation %q", interpolation)
	}
}

// crop returns the part of img inside r, sharing pixels when possible
func crop(img image.Image, r image.Rectangle) image.Image {
	if si, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
