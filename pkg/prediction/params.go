package prediction

import (
	"nucleofind/internal/models"
	"nucleofind/pkg/config"
	"nucleofind/pkg/crystal"
	"nucleofind/pkg/errors"
	"nucleofind/pkg/grid"
	"nucleofind/pkg/tiling"
)

// Params holds the prediction parameters.
type Params struct {
	// TileSize is the edge of the cube the model accepts.
	TileSize int

	// Overlap is the stride between tile origins. It must divide TileSize.
	Overlap int

	// Spacing is the working grid spacing in Å. The output grid uses it as
	// its target spacing too.
	Spacing float64

	// OutputMode selects raw probabilities or argmax class indices.
	OutputMode models.OutputMode

	// Workers bounds concurrent model calls; zero means one per CPU.
	Workers int

	// NormalizeMaps rescales map inputs to zero mean and unit variance
	// before resampling. Reflection inputs are never rescaled.
	NormalizeMaps bool

	// FullCell predicts over the whole unit cell rather than the bounding box
	// of the asymmetric unit.
	FullCell bool

	// Load is handed to the Loader.
	Load LoadOptions

	// SaveIntermediaryResults writes JPEG slices of the working and predicted
	// grids under IntermediaryDir/<run id>.
	SaveIntermediaryResults bool
	IntermediaryDir         string

	// Progress, when set, is called after every tile.
	Progress func(completed, total int, message string)
}

// DefaultParams returns the parameters the published models were trained with.
func DefaultParams() Params {
	return Params{
		TileSize:      tiling.DefaultTileSize,
		Overlap:       tiling.DefaultOverlap,
		Spacing:       0.7,
		OutputMode:    models.OutputRaw,
		NormalizeMaps: true,
	}
}

// ParamsFromConfig converts a validated configuration.
func ParamsFromConfig(cfg *config.Config) (Params, error) {
	if err := cfg.Validate(); err != nil {
		return Params{}, err
	}
	mode, err := models.ParseOutputMode(cfg.Inference.OutputMode)
	if err != nil {
		return Params{}, errors.Wrap(err, errors.KindInvalidConfig, "config", "inference.outputMode")
	}
	load := LoadOptions{
		ResolutionCutoff: cfg.Input.ResolutionCutoff,
		Columns:          [2]string{cfg.Input.Columns.Amplitude, cfg.Input.Columns.Phase},
	}
	return Params{
		TileSize:                cfg.Tiling.TileSize,
		Overlap:                 cfg.Tiling.Overlap,
		Spacing:                 cfg.Sampling.Spacing,
		OutputMode:              mode,
		Workers:                 cfg.Inference.Workers,
		NormalizeMaps:           cfg.Input.NormalizeMaps,
		FullCell:                cfg.Sampling.FullCell,
		Load:                    load,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
	}, nil
}

// Validate checks the parameters that do not depend on the input.
func (p Params) Validate() error {
	if err := tiling.ValidateTiling(p.TileSize, p.Overlap); err != nil {
		return err
	}
	if p.Spacing <= 0 {
		return errors.New(errors.KindInvalidConfig, "params", "spacing must be positive, got %g", p.Spacing)
	}
	if p.Workers < 0 {
		return errors.New(errors.KindInvalidConfig, "params", "workers must not be negative, got %d", p.Workers)
	}
	if p.SaveIntermediaryResults && p.IntermediaryDir == "" {
		return errors.New(errors.KindInvalidConfig, "params", "intermediary results requested without a directory")
	}
	return nil
}

// Geometry is everything about a run that follows from the cell, the space
// group and the parameters alone.
type Geometry struct {
	Box          models.BoundingBox
	WorkingShape [3]int
	Plan         *tiling.Plan
	OutputShape  [3]int
}

// PlanGeometry computes the bounding box, working grid, tiling and output
// grid for a cell without touching any density.
func PlanGeometry(cell crystal.UnitCell, sg *crystal.SpaceGroup, p Params) (*Geometry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := cell.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.KindGeometryDegenerate, "geometry", "invalid unit cell")
	}

	boxGroup := sg
	if p.FullCell {
		boxGroup = nil
	}
	box := crystal.BoundingBox(cell, boxGroup)
	if box.Degenerate() {
		return nil, errors.New(errors.KindGeometryDegenerate, "geometry", "bounding box %v has non-positive extent", box.Size())
	}
	shape := grid.IsotropicShape(box, p.Spacing)
	plan, err := tiling.NewPlan(shape, p.TileSize, p.Overlap)
	if err != nil {
		return nil, err
	}
	out, err := crystal.GridShape(cell, sg, p.Spacing)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindGeometryDegenerate, "geometry", "choose output grid")
	}
	return &Geometry{Box: box, WorkingShape: shape, Plan: plan, OutputShape: out}, nil
}
