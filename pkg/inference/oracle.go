// Package inference dispatches tiles of a working grid to a fixed-input-size
// classifier and accumulates the per-voxel results.
package inference

import (
	"context"
	"fmt"

	"nucleofind/internal/models"
	"nucleofind/pkg/errors"
)

// Cube is one single-channel tile handed to the oracle, Size^3 samples in
// x-major order.
type Cube struct {
	Size int
	Data []float32
}

// ClassVolume is the oracle's answer for a cube: Classes probabilities per
// voxel, stored at ((x*Size+y)*Size+z)*Classes + class.
type ClassVolume struct {
	Size    int
	Classes int
	Data    []float32
}

// Oracle classifies cubes. Implementations wrap a trained model; nucleofind
// never loads or owns one.
type Oracle interface {
	Infer(ctx context.Context, cube Cube) (ClassVolume, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, cube Cube) (ClassVolume, error)

// Infer calls f.
func (f OracleFunc) Infer(ctx context.Context, cube Cube) (ClassVolume, error) {
	return f(ctx, cube)
}

// Reduce turns a class volume into one scalar per voxel. OutputRaw keeps the
// probability of class 1; OutputArgmax keeps the index of the most probable
// class, the first one on ties.
func Reduce(vol ClassVolume, size int, mode models.OutputMode) ([]float32, error) {
	if vol.Size != size {
		return nil, errors.New(errors.KindModelUnusable, "inference", "oracle returned a %d^3 volume for a %d^3 cube", vol.Size, size)
	}
	if vol.Classes < 2 {
		return nil, errors.New(errors.KindModelUnusable, "inference", "oracle returned %d classes, need at least 2", vol.Classes)
	}
	n := size * size * size
	if len(vol.Data) != n*vol.Classes {
		return nil, errors.New(errors.KindModelUnusable, "inference",
			"oracle returned %d values, want %d (%d^3 x %d classes)", len(vol.Data), n*vol.Classes, size, vol.Classes)
	}

	out := make([]float32, n)
	c := vol.Classes
	switch mode {
	case models.OutputRaw:
		for i := 0; i < n; i++ {
			out[i] = vol.Data[i*c+1]
		}
	case models.OutputArgmax:
		for i := 0; i < n; i++ {
			probs := vol.Data[i*c : (i+1)*c]
			best := 0
			for k := 1; k < c; k++ {
				if probs[k] > probs[best] {
					best = k
				}
			}
			out[i] = float32(best)
		}
	default:
		return nil, fmt.Errorf("unknown output mode %v", mode)
	}
	return out, nil
}
