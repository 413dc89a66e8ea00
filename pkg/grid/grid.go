// Package grid provides dense 3-D scalar grids with an affine map from voxel
// indices to orthogonal positions, trilinear interpolation, sub-volume
// extraction and resampling between grids.
//
// Data is stored x-major: the sample at (x, y, z) lives at (x*ny+y)*nz+z.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"nucleofind/pkg/crystal"
)

// Boundary selects what lies beyond the edges of a grid.
type Boundary int

const (
	// BoundaryZero reads every out-of-range sample as 0.
	BoundaryZero Boundary = iota
	// BoundaryPeriodic wraps indices, as for a grid spanning a unit cell.
	BoundaryPeriodic
)

// Transform is an affine map v' = Linear·v + Offset, with Linear row-major.
type Transform struct {
	Linear [9]float64
	Offset r3.Vec
}

// ScaleTransform maps index i to origin + spacing*i.
func ScaleTransform(spacing float64, origin r3.Vec) Transform {
	return Transform{
		Linear: [9]float64{spacing, 0, 0, 0, spacing, 0, 0, 0, spacing},
		Offset: origin,
	}
}

// Apply maps v through the transform.
func (t Transform) Apply(v r3.Vec) r3.Vec {
	m := &t.Linear
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z + t.Offset.X,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z + t.Offset.Y,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z + t.Offset.Z,
	}
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() (Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, append([]float64(nil), t.Linear[:]...))); err != nil {
		return Transform{}, fmt.Errorf("transform is not invertible: %w", err)
	}
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Linear[3*i+j] = inv.At(i, j)
		}
	}
	out.Offset = r3.Scale(-1, out.Apply(t.Offset))
	return out, nil
}

// Grid is a dense 3-D array of float32 samples.
type Grid struct {
	Data     []float32
	Shape    [3]int
	Cell     crystal.UnitCell
	Boundary Boundary

	transform Transform // index → orthogonal position
	inverse   Transform // orthogonal position → index
}

// NewCellGrid returns a periodic grid sampling cell with shape points per
// axis; point (i,j,k) sits at fractional (i/nx, j/ny, k/nz). data may be nil.
func NewCellGrid(cell crystal.UnitCell, shape [3]int, data []float32) (*Grid, error) {
	if err := cell.Validate(); err != nil {
		return nil, err
	}
	orth := cell.OrthogonalizationMatrix()
	var lin mat.Dense
	lin.Mul(orth, mat.NewDiagDense(3, []float64{
		1 / float64(shape[0]), 1 / float64(shape[1]), 1 / float64(shape[2]),
	}))
	var tr Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			tr.Linear[3*i+j] = lin.At(i, j)
		}
	}
	return newGrid(shape, data, cell, BoundaryPeriodic, tr)
}

// NewOrthogonalGrid returns a zero-boundary grid with isotropic spacing whose
// index (0,0,0) sits at origin.
func NewOrthogonalGrid(shape [3]int, spacing float64, origin r3.Vec, data []float32) (*Grid, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %g", spacing)
	}
	cell, err := crystal.OrthogonalCell(
		float64(shape[0])*spacing, float64(shape[1])*spacing, float64(shape[2])*spacing)
	if err != nil {
		return nil, err
	}
	return newGrid(shape, data, cell, BoundaryZero, ScaleTransform(spacing, origin))
}

func newGrid(shape [3]int, data []float32, cell crystal.UnitCell, b Boundary, tr Transform) (*Grid, error) {
	if shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, fmt.Errorf("grid shape must be positive, got %v", shape)
	}
	n := shape[0] * shape[1] * shape[2]
	if data == nil {
		data = make([]float32, n)
	} else if len(data) != n {
		return nil, fmt.Errorf("grid data has %d samples, shape %v needs %d", len(data), shape, n)
	}
	inv, err := tr.Inverse()
	if err != nil {
		return nil, err
	}
	return &Grid{Data: data, Shape: shape, Cell: cell, Boundary: b, transform: tr, inverse: inv}, nil
}

// Transform returns the index→position map.
func (g *Grid) Transform() Transform {
	return g.transform
}

// Len returns the number of samples.
func (g *Grid) Len() int {
	return len(g.Data)
}

// Index returns the offset of (x, y, z) in Data. It does not bounds-check.
func (g *Grid) Index(x, y, z int) int {
	return (x*g.Shape[1]+y)*g.Shape[2] + z
}

// At returns the sample at (x, y, z).
func (g *Grid) At(x, y, z int) float32 {
	return g.Data[g.Index(x, y, z)]
}

// Set stores v at (x, y, z).
func (g *Grid) Set(x, y, z int, v float32) {
	g.Data[g.Index(x, y, z)] = v
}

// value applies the boundary rule to a possibly out-of-range index.
func (g *Grid) value(x, y, z int) float32 {
	if g.Boundary == BoundaryPeriodic {
		return g.Data[g.Index(wrap(x, g.Shape[0]), wrap(y, g.Shape[1]), wrap(z, g.Shape[2]))]
	}
	if x < 0 || y < 0 || z < 0 || x >= g.Shape[0] || y >= g.Shape[1] || z >= g.Shape[2] {
		return 0
	}
	return g.Data[g.Index(x, y, z)]
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// PointPosition returns the orthogonal position of grid point (x, y, z).
func (g *Grid) PointPosition(x, y, z int) r3.Vec {
	return g.transform.Apply(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
}

// Fractional returns the fractional coordinates of grid point (x, y, z)
// within the grid's cell.
func (g *Grid) Fractional(x, y, z int) r3.Vec {
	return g.Cell.Fractionalize(g.PointPosition(x, y, z))
}

// Interpolate returns the trilinear interpolation of the grid at orthogonal
// position pos. Corners outside a zero-boundary grid contribute 0.
func (g *Grid) Interpolate(pos r3.Vec) float32 {
	u := g.inverse.Apply(pos)
	if math.IsNaN(u.X) || math.IsNaN(u.Y) || math.IsNaN(u.Z) {
		return 0
	}
	fx, fy, fz := math.Floor(u.X), math.Floor(u.Y), math.Floor(u.Z)
	x0, y0, z0 := int(fx), int(fy), int(fz)
	tx, ty, tz := u.X-fx, u.Y-fy, u.Z-fz

	var acc float64
	for dx := 0; dx < 2; dx++ {
		wx := 1 - tx
		if dx == 1 {
			wx = tx
		}
		for dy := 0; dy < 2; dy++ {
			wy := 1 - ty
			if dy == 1 {
				wy = ty
			}
			for dz := 0; dz < 2; dz++ {
				wz := 1 - tz
				if dz == 1 {
					wz = tz
				}
				w := wx * wy * wz
				if w == 0 {
					continue
				}
				acc += w * float64(g.value(x0+dx, y0+dy, z0+dz))
			}
		}
	}
	return float32(acc)
}

// Subvolume copies the block [origin, origin+shape) into a new x-major slice.
// Samples outside the grid follow the boundary rule, so a zero-boundary grid
// is zero-padded explicitly.
func (g *Grid) Subvolume(origin, shape [3]int) []float32 {
	out := make([]float32, shape[0]*shape[1]*shape[2])
	i := 0
	for x := 0; x < shape[0]; x++ {
		for y := 0; y < shape[1]; y++ {
			for z := 0; z < shape[2]; z++ {
				out[i] = g.value(origin[0]+x, origin[1]+y, origin[2]+z)
				i++
			}
		}
	}
	return out
}

// Normalize rescales the samples to zero mean and unit (population) standard
// deviation. A constant grid is only shifted to zero.
func (g *Grid) Normalize() {
	vals := make([]float64, len(g.Data))
	for i, v := range g.Data {
		vals[i] = float64(v)
	}
	mean, std := stat.PopMeanStdDev(vals, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	for i, v := range vals {
		g.Data[i] = float32((v - mean) / std)
	}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Data = append([]float32(nil), g.Data...)
	return &c
}

// Summary holds descriptive statistics of a grid.
type Summary struct {
	Min, Max, Mean, StdDev float64
}

// Summarize computes descriptive statistics of the samples.
func (g *Grid) Summarize() Summary {
	vals := make([]float64, len(g.Data))
	for i, v := range g.Data {
		vals[i] = float64(v)
	}
	mean, std := stat.PopMeanStdDev(vals, nil)
	s := Summary{Mean: mean, StdDev: std, Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range vals {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	return s
}

// String describes the grid shape and cell.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid%v cell=%s", g.Shape, g.Cell)
}
