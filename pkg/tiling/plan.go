// Package tiling decomposes a working grid into fixed-size cubic tiles placed
// at a fixed stride and owns the buffers that tiles are accumulated into.
package tiling

import (
	"nucleofind/internal/models"
	"nucleofind/pkg/errors"
)

const (
	// DefaultTileSize is the edge of the cube the classifier accepts.
	DefaultTileSize = 32
	// DefaultOverlap is the distance between neighbouring tile origins.
	DefaultOverlap = 16
)

// Plan is the tiling of one working grid.
//
// Overlap is the stride between neighbouring tile origins; neighbours share
// TileSize-Overlap voxels along each axis.
type Plan struct {
	Shape    [3]int
	TileSize int
	Overlap  int

	// CoarseCount is shape/overlap+1 per axis: the number of tile origins.
	CoarseCount [3]int
	// TileCount is shape/tileSize+1 per axis; it sizes the buffers.
	TileCount [3]int
}

// ValidateTiling checks tile parameters independently of any grid. The
// stride must divide the tile size, otherwise the last origin along an axis
// can stop short of the valid region and leave voxels uncovered.
func ValidateTiling(tileSize, overlap int) error {
	if tileSize <= 0 {
		return errors.New(errors.KindInvalidConfig, "tiling", "tile size must be positive, got %d", tileSize)
	}
	if overlap <= 0 || overlap > tileSize {
		return errors.New(errors.KindInvalidConfig, "tiling", "overlap must satisfy 0 < overlap <= %d, got %d", tileSize, overlap)
	}
	if tileSize%overlap != 0 {
		return errors.New(errors.KindInvalidConfig, "tiling", "overlap %d must divide tile size %d", overlap, tileSize)
	}
	return nil
}

// NewPlan tiles a grid of the given shape.
func NewPlan(shape [3]int, tileSize, overlap int) (*Plan, error) {
	if err := ValidateTiling(tileSize, overlap); err != nil {
		return nil, err
	}
	if shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, errors.New(errors.KindGeometryDegenerate, "tiling", "grid shape %v has non-positive extent", shape)
	}
	p := &Plan{Shape: shape, TileSize: tileSize, Overlap: overlap}
	for a := 0; a < 3; a++ {
		p.CoarseCount[a] = shape[a]/overlap + 1
		p.TileCount[a] = shape[a]/tileSize + 1
	}
	return p, nil
}

// Len returns the number of tiles.
func (p *Plan) Len() int {
	return p.CoarseCount[0] * p.CoarseCount[1] * p.CoarseCount[2]
}

// Translations returns the tile origins ordered by x, then y, then z.
func (p *Plan) Translations() []models.Translation {
	out := make([]models.Translation, 0, p.Len())
	for x := 0; x < p.CoarseCount[0]; x++ {
		for y := 0; y < p.CoarseCount[1]; y++ {
			for z := 0; z < p.CoarseCount[2]; z++ {
				out = append(out, models.Translation{X: x * p.Overlap, Y: y * p.Overlap, Z: z * p.Overlap})
			}
		}
	}
	return out
}

// ValidShape is the region kept after accumulation: tileSize*tileCount per axis.
func (p *Plan) ValidShape() [3]int {
	var s [3]int
	for a := 0; a < 3; a++ {
		s[a] = p.TileSize * p.TileCount[a]
	}
	return s
}

// BufferShape is the padded accumulation extent:
// tileSize*tileCount + (tileSize-overlap) per axis.
func (p *Plan) BufferShape() [3]int {
	s := p.ValidShape()
	for a := 0; a < 3; a++ {
		s[a] += p.TileSize - p.Overlap
	}
	return s
}

// TileShape returns the cube shape of one tile.
func (p *Plan) TileShape() [3]int {
	return [3]int{p.TileSize, p.TileSize, p.TileSize}
}

// NewBuffers allocates zeroed accumulation buffers for this plan.
func (p *Plan) NewBuffers() *Buffers {
	return NewBuffers(p.BufferShape())
}
