// Package reassembly turns accumulated tile predictions back into a map over
// the crystallographic unit cell.
package reassembly

import (
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"nucleofind/internal/models"
	"nucleofind/pkg/crystal"
	"nucleofind/pkg/errors"
	"nucleofind/pkg/grid"
	"nucleofind/pkg/tiling"
)

// Params describes the geometry the predictions were made in.
type Params struct {
	// Cell and SpaceGroup of the input map. A nil SpaceGroup means P 1.
	Cell       crystal.UnitCell
	SpaceGroup *crystal.SpaceGroup

	// Box is the bounding box the working grid was resampled over.
	Box models.BoundingBox

	// Spacing of the working grid and the target spacing of the output grid.
	Spacing float64

	Logger *zap.Logger
}

// Reassembler maps a predicted working-grid map onto the unit cell.
type Reassembler struct {
	params Params
	logger *zap.Logger
}

// NewReassembler validates params.
func NewReassembler(params Params) (*Reassembler, error) {
	if err := params.Cell.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.KindGeometryDegenerate, "reassemble", "invalid unit cell")
	}
	if params.Spacing <= 0 {
		return nil, errors.New(errors.KindInvalidConfig, "reassemble", "spacing must be positive, got %g", params.Spacing)
	}
	if params.Box.Degenerate() {
		return nil, errors.New(errors.KindGeometryDegenerate, "reassemble", "bounding box %v has non-positive extent", params.Box.Size())
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reassembler{params: params, logger: logger}, nil
}

// Predicted crops the accumulation buffers to the plan's valid region and
// averages them into a zero-boundary grid whose index (0,0,0) sits at the
// working grid origin.
func (r *Reassembler) Predicted(buf *tiling.Buffers, plan *tiling.Plan) (*grid.Grid, error) {
	valid, err := buf.Crop(plan.ValidShape())
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCoverageInvariant, "reassemble", "crop buffers")
	}
	data, err := valid.Normalize()
	if err != nil {
		return nil, err
	}
	return grid.NewOrthogonalGrid(valid.Shape, r.params.Spacing, r.params.Box.Minimum, data)
}

// Reassemble produces the output map. Every output grid point inside the
// asymmetric unit takes the trilinear interpolation of the predicted map at
// its orthogonal position; the rest of the cell is then filled by taking the
// maximum over each symmetry orbit.
func (r *Reassembler) Reassemble(buf *tiling.Buffers, plan *tiling.Plan) (*grid.Grid, error) {
	start := time.Now()
	predicted, err := r.Predicted(buf, plan)
	if err != nil {
		return nil, err
	}

	shape, err := crystal.GridShape(r.params.Cell, r.params.SpaceGroup, r.params.Spacing)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindGeometryDegenerate, "reassemble", "choose output grid")
	}
	out, err := grid.NewCellGrid(r.params.Cell, shape, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindGeometryDegenerate, "reassemble", "allocate output grid")
	}

	asu := r.params.SpaceGroup.Brick()
	inside := 0
	for x := 0; x < shape[0]; x++ {
		for y := 0; y < shape[1]; y++ {
			for z := 0; z < shape[2]; z++ {
				f := r3.Vec{
					X: float64(x) / float64(shape[0]),
					Y: float64(y) / float64(shape[1]),
					Z: float64(z) / float64(shape[2]),
				}
				if !asu.Contains(f) {
					continue
				}
				out.Set(x, y, z, predicted.Interpolate(out.PointPosition(x, y, z)))
				inside++
			}
		}
	}

	if err := grid.SymmetrizeMax(out, r.params.SpaceGroup); err != nil {
		return nil, errors.Wrap(err, errors.KindGeometryDegenerate, "reassemble", "symmetrize output")
	}

	r.logger.Info("Reassembled predicted map",
		zap.Ints("shape", shape[:]),
		zap.Int("asu_points", inside),
		zap.Stringer("space_group", r.params.SpaceGroup),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}
