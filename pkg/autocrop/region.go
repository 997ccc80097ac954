package autocrop

import (
	"image"

	errs "eaafetch/pkg/errors"

	"golang.org/x/image/draw"
)

// mask cell states
const (
	cellBackground uint8 = iota
	cellForeground
	cellOutside
	cellLabelled
)

// DetectRegion returns the bounding rectangle of the largest foreground
// region of img. A pixel is foreground when its luminance is above threshold.
//
// Regions are the external outlines of 8-connected foreground pixels: holes
// and anything inside them belong to the enclosing region, and a region's
// size is the area its outline encloses. Among regions of equal size the one
// reached first in row-major order wins.
func DetectRegion(img image.Image, threshold uint8) (image.Rectangle, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.Rectangle{}, errs.NewNoContentError("")
	}

	gray := toGray(img)
	mask := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, v := range row {
			if v > threshold {
				mask[y*w+x] = cellForeground
			}
		}
	}

	markOutside(mask, w, h)

	region, ok := largestRegion(mask, w, h)
	if !ok {
		return image.Rectangle{}, errs.NewNoContentError("")
	}
	return region.Add(b.Min), nil
}

// SquareRegion shrinks the longer side of r to the shorter one. The origin
// stays at r.Min, so the square sits in the top-left corner of r rather than
// its center. Output images depend on this anchoring.
func SquareRegion(r image.Rectangle) image.Rectangle {
	side := r.Dx()
	if r.Dy() < side {
		side = r.Dy()
	}
	return image.Rect(r.Min.X, r.Min.Y, r.Min.X+side, r.Min.Y+side)
}

// toGray converts img to 8-bit luminance with its origin at (0, 0)
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// markOutside flags every background cell 4-connected to the image border.
// Background cells left unflagged are holes enclosed by foreground.
func markOutside(mask []uint8, w, h int) {
	queue := make([]int, 0, 2*(w+h))
	push := func(i int) {
		if mask[i] == cellBackground {
			mask[i] = cellOutside
			queue = append(queue, i)
		}
	}

	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}

	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}
}

// largestRegion labels the 8-connected groups of cells not flagged outside
// and returns the bounding box of the biggest one.
func largestRegion(mask []uint8, w, h int) (image.Rectangle, bool) {
	var (
		best     image.Rectangle
		bestArea int
		queue    []int
	)

	for start := range mask {
		if mask[start] == cellOutside || mask[start] == cellLabelled {
			continue
		}

		area := 0
		minX, minY := w, h
		maxX, maxY := -1, -1

		mask[start] = cellLabelled
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w

			area++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					j := ny*w + nx
					if mask[j] == cellForeground || mask[j] == cellBackground {
						mask[j] = cellLabelled
						queue = append(queue, j)
					}
				}
			}
		}

		if area > bestArea {
			bestArea = area
			best = image.Rect(minX, minY, maxX+1, maxY+1)
		}
	}

	return best, bestArea > 0
}
