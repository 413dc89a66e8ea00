// Package visualization renders slices of density and prediction grids as
// grayscale JPEG images for inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"nucleofind/pkg/grid"
)

// Viewer extracts and saves 2D slices of a 3D grid.
type Viewer struct {
	// g is the grid being viewed
	g *grid.Grid

	// lo and scale map sample values onto [0,1] before quantisation
	lo    float64
	scale float64
}

// NewViewer creates a viewer for g. Sample values are rescaled linearly so
// that the grid minimum is black and the maximum white.
func NewViewer(g *grid.Grid) *Viewer {
	s := g.Summarize()
	scale := 0.0
	if s.Max > s.Min {
		scale = 1 / (s.Max - s.Min)
	}
	return &Viewer{g: g, lo: s.Min, scale: scale}
}

func (v *Viewer) gray(x, y, z int) color.Gray16 {
	f := (float64(v.g.At(x, y, z)) - v.lo) * v.scale
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, f*65535)))}
}

// axisIndex maps "x", "y", "z" (either case) to 0, 1, 2.
func axisIndex(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts the plane at position along axis. An x slice is
// laid out with z horizontal and y vertical, a y slice with x horizontal and
// z vertical, and a z slice with x horizontal and y vertical.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	n := v.g.Shape
	if position >= n[a] {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, axis, n[a])
	}

	var img *image.Gray16
	switch a {
	case 0:
		img = image.NewGray16(image.Rect(0, 0, n[2], n[1]))
		for y := 0; y < n[1]; y++ {
			for z := 0; z < n[2]; z++ {
				img.SetGray16(z, y, v.gray(position, y, z))
			}
		}
	case 1:
		img = image.NewGray16(image.Rect(0, 0, n[0], n[2]))
		for z := 0; z < n[2]; z++ {
			for x := 0; x < n[0]; x++ {
				img.SetGray16(x, z, v.gray(x, position, z))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, n[0], n[1]))
		for y := 0; y < n[1]; y++ {
			for x := 0; x < n[0]; x++ {
				img.SetGray16(x, y, v.gray(x, y, position))
			}
		}
	}
	return img, nil
}

// ExtractRegion copies a block of raw sample values, x-major.
func (v *Viewer) ExtractRegion(start, size [3]int) ([]float32, error) {
	for a := 0; a < 3; a++ {
		if start[a] < 0 {
			return nil, fmt.Errorf("start coordinates must be non-negative")
		}
		if size[a] <= 0 {
			return nil, fmt.Errorf("size dimensions must be positive")
		}
		if start[a]+size[a] > v.g.Shape[a] {
			return nil, fmt.Errorf("region extends beyond grid %v", v.g.Shape)
		}
	}
	return v.g.Subvolume(start, size), nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along axis into outputDir
// and returns the number of files written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	for pos := 0; pos < v.g.Shape[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return v.g.Shape[a], nil
}
