package grid

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"nucleofind/internal/models"
	"nucleofind/pkg/errors"
)

// Resample samples src at every integer lattice point of shape. Lattice index
// i is mapped to an orthogonal position through tr and src is trilinearly
// interpolated there.
func Resample(src *Grid, shape [3]int, tr Transform) []float32 {
	out := make([]float32, shape[0]*shape[1]*shape[2])
	i := 0
	for x := 0; x < shape[0]; x++ {
		for y := 0; y < shape[1]; y++ {
			for z := 0; z < shape[2]; z++ {
				out[i] = src.Interpolate(tr.Apply(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}))
				i++
			}
		}
	}
	return out
}

// IsotropicShape returns floor(size/spacing) along each axis of box.
func IsotropicShape(box models.BoundingBox, spacing float64) [3]int {
	size := box.Size()
	return [3]int{
		int(math.Floor(size.X / spacing)),
		int(math.Floor(size.Y / spacing)),
		int(math.Floor(size.Z / spacing)),
	}
}

// Isotropic resamples src onto a grid of the given spacing covering box. The
// returned grid has a local origin: its index (0,0,0) corresponds to
// box.Minimum in src's coordinates, so positions in src map to the working
// grid by subtracting box.Minimum.
func Isotropic(src *Grid, box models.BoundingBox, spacing float64) (*Grid, error) {
	if spacing <= 0 || math.IsNaN(spacing) {
		return nil, errors.New(errors.KindInvalidConfig, "resample", "working spacing must be positive, got %g", spacing)
	}
	if box.Degenerate() {
		return nil, errors.New(errors.KindGeometryDegenerate, "resample", "bounding box %v has non-positive extent", box.Size())
	}
	shape := IsotropicShape(box, spacing)
	if shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, errors.New(errors.KindGeometryDegenerate, "resample",
			"box %v is smaller than one %g Å sample (shape %v)", box.Size(), spacing, shape)
	}

	data := Resample(src, shape, ScaleTransform(spacing, box.Minimum))
	g, err := NewOrthogonalGrid(shape, spacing, r3.Vec{}, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindGeometryDegenerate, "resample", "build isotropic grid")
	}
	return g, nil
}
