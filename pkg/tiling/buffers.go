package tiling

import (
	"fmt"
	"math"

	"nucleofind/internal/models"
	"nucleofind/pkg/errors"
)

// Buffers accumulates tile results. Sum holds the running sum of every
// contribution and Count how many tiles covered each voxel. Both are x-major
// with the same Shape. Buffers are not safe for concurrent use; callers
// serialise Add.
type Buffers struct {
	Shape [3]int
	Sum   []float32
	Count []float32
}

// NewBuffers allocates zeroed buffers of the given shape.
func NewBuffers(shape [3]int) *Buffers {
	n := shape[0] * shape[1] * shape[2]
	return &Buffers{Shape: shape, Sum: make([]float32, n), Count: make([]float32, n)}
}

func (b *Buffers) index(x, y, z int) int {
	return (x*b.Shape[1]+y)*b.Shape[2] + z
}

// Add accumulates a cube of edge size at origin t. values may be nil, in which
// case only the coverage count is incremented. The footprint must lie within
// the buffers.
func (b *Buffers) Add(t models.Translation, size int, values []float32) error {
	if values != nil && len(values) != size*size*size {
		return fmt.Errorf("tile at %s has %d values, want %d", t, len(values), size*size*size)
	}
	if t.X < 0 || t.Y < 0 || t.Z < 0 ||
		t.X+size > b.Shape[0] || t.Y+size > b.Shape[1] || t.Z+size > b.Shape[2] {
		return fmt.Errorf("tile at %s of size %d exceeds buffers %v", t, size, b.Shape)
	}
	i := 0
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			row := b.index(t.X+x, t.Y+y, t.Z)
			for z := 0; z < size; z++ {
				if values != nil {
					b.Sum[row+z] += values[i]
				}
				b.Count[row+z]++
				i++
			}
		}
	}
	return nil
}

// Crop returns new buffers holding [0, shape) of b.
func (b *Buffers) Crop(shape [3]int) (*Buffers, error) {
	for a := 0; a < 3; a++ {
		if shape[a] <= 0 || shape[a] > b.Shape[a] {
			return nil, fmt.Errorf("crop %v outside buffers %v", shape, b.Shape)
		}
	}
	out := NewBuffers(shape)
	for x := 0; x < shape[0]; x++ {
		for y := 0; y < shape[1]; y++ {
			src := b.index(x, y, 0)
			dst := out.index(x, y, 0)
			copy(out.Sum[dst:dst+shape[2]], b.Sum[src:src+shape[2]])
			copy(out.Count[dst:dst+shape[2]], b.Count[src:src+shape[2]])
		}
	}
	return out, nil
}

// Normalize returns Sum/Count. A voxel with zero coverage is a tiling defect
// and is reported as a CoverageInvariant error; NaNs that survive the
// division are replaced by 0.
func (b *Buffers) Normalize() ([]float32, error) {
	out := make([]float32, len(b.Sum))
	for i, c := range b.Count {
		if c == 0 {
			x := i / (b.Shape[1] * b.Shape[2])
			y := (i / b.Shape[2]) % b.Shape[1]
			z := i % b.Shape[2]
			return nil, errors.New(errors.KindCoverageInvariant, "reassemble",
				"voxel (%d,%d,%d) of %v was not covered by any tile", x, y, z, b.Shape)
		}
		v := b.Sum[i] / c
		if math.IsNaN(float64(v)) {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// MinCoverage returns the smallest coverage count.
func (b *Buffers) MinCoverage() float32 {
	if len(b.Count) == 0 {
		return 0
	}
	m := b.Count[0]
	for _, c := range b.Count[1:] {
		if c < m {
			m = c
		}
	}
	return m
}
