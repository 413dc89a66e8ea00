package models

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Translation is the voxel-index origin of one inference tile within the
// isotropic working grid.
type Translation struct {
	X, Y, Z int
}

// String formats the translation as "(x,y,z)".
func (t Translation) String() string {
	return fmt.Sprintf("(%d,%d,%d)", t.X, t.Y, t.Z)
}

// BoundingBox is an axis-aligned box in orthogonal (physical) coordinates.
type BoundingBox struct {
	Minimum r3.Vec
	Maximum r3.Vec
}

// Size returns the extent of the box along each axis.
func (b BoundingBox) Size() r3.Vec {
	return r3.Sub(b.Maximum, b.Minimum)
}

// Degenerate reports whether any axis has zero or negative extent.
func (b BoundingBox) Degenerate() bool {
	s := b.Size()
	return s.X <= 0 || s.Y <= 0 || s.Z <= 0
}

// OutputMode selects how a per-voxel class-probability vector is reduced to
// the scalar accumulated into the prediction.
type OutputMode int

const (
	// OutputRaw keeps the probability of the positive class (index 1).
	OutputRaw OutputMode = iota
	// OutputArgmax keeps the index of the most probable class.
	OutputArgmax
)

// String returns the configuration name of the mode.
func (m OutputMode) String() string {
	switch m {
	case OutputRaw:
		return "raw"
	case OutputArgmax:
		return "argmax"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// ParseOutputMode converts "raw" or "argmax" to an OutputMode.
func ParseOutputMode(s string) (OutputMode, error) {
	switch s {
	case "raw":
		return OutputRaw, nil
	case "argmax":
		return OutputArgmax, nil
	default:
		return 0, fmt.Errorf("unknown output mode %q (must be raw or argmax)", s)
	}
}
