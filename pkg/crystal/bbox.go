package crystal

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"nucleofind/internal/models"
)

// BoundingBox returns the smallest orthogonal box containing the fractional
// asymmetric-unit brick of sg, or the whole cell when sg is nil or its
// asymmetric unit is unknown. Cells are generally skewed, so all eight
// corners of the brick are orthogonalised and bounded.
func BoundingBox(cell UnitCell, sg *SpaceGroup) models.BoundingBox {
	b := sg.Brick()
	box := models.BoundingBox{
		Minimum: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Maximum: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, corner := range brickCorners(b) {
		p := cell.Orthogonalize(corner)
		box.Minimum = r3.Vec{X: math.Min(box.Minimum.X, p.X), Y: math.Min(box.Minimum.Y, p.Y), Z: math.Min(box.Minimum.Z, p.Z)}
		box.Maximum = r3.Vec{X: math.Max(box.Maximum.X, p.X), Y: math.Max(box.Maximum.Y, p.Y), Z: math.Max(box.Maximum.Z, p.Z)}
	}
	return box
}

func brickCorners(b Brick) [8]r3.Vec {
	lo, hi := b.Min, b.Max
	return [8]r3.Vec{
		lo,
		{X: hi.X, Y: lo.Y, Z: lo.Z},
		{X: lo.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: hi.Y, Z: lo.Z},
		{X: hi.X, Y: lo.Y, Z: hi.Z},
		{X: lo.X, Y: hi.Y, Z: hi.Z},
		hi,
	}
}
