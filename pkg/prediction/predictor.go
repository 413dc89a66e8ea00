// Package prediction runs the complete sliding-window prediction pipeline:
// load a density map, resample it onto an isotropic working grid, classify
// it tile by tile and project the result back onto the unit cell.
package prediction

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nucleofind/pkg/crystal"
	"nucleofind/pkg/errors"
	"nucleofind/pkg/grid"
	"nucleofind/pkg/inference"
	"nucleofind/pkg/reassembly"
	"nucleofind/pkg/visualization"
)

// Result is the outcome of one prediction run.
type Result struct {
	RunID string

	// Predicted is the output map over the unit cell.
	Predicted *grid.Grid
	// Interpolated is the isotropic working grid the model saw.
	Interpolated *grid.Grid
	// Raw is the input grid after optional normalisation.
	Raw *grid.Grid

	SpaceGroup *crystal.SpaceGroup
	Geometry   *Geometry
	Stats      inference.Stats
	Elapsed    time.Duration
}

// Predictor handles the prediction process.
//
// The pipeline consists of several steps:
// 1. Opening the model
// 2. Loading the input and normalising map inputs
// 3. Computing the bounding box, working grid and tiling
// 4. Resampling the input onto the isotropic working grid
// 5. Classifying every tile
// 6. Reassembling the predictions onto the unit cell
type Predictor struct {
	params  Params
	loader  Loader
	models  ModelSource
	logger  *zap.Logger
	metrics inference.Metrics
}

// Option customises a Predictor.
type Option func(*Predictor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Predictor) { p.logger = l }
}

// WithMetrics sets the orchestrator metrics sink.
func WithMetrics(m inference.Metrics) Option {
	return func(p *Predictor) { p.metrics = m }
}

// NewPredictor creates a predictor. It fails only on invalid parameters.
func NewPredictor(params Params, loader Loader, source ModelSource, opts ...Option) (*Predictor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, errors.New(errors.KindInvalidConfig, "predict", "no loader configured")
	}
	if source == nil {
		return nil, errors.New(errors.KindModelUnusable, "predict", "no model configured")
	}
	p := &Predictor{
		params:  params,
		loader:  loader,
		models:  source,
		logger:  zap.NewNop(),
		metrics: inference.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Predict runs the complete pipeline on the file at path. Nothing is written
// except optional intermediary previews; persist the result with Save.
func (p *Predictor) Predict(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := p.logger.With(zap.String("run_id", res.RunID), zap.String("input", path))

	// Step 1: Open the model
	log.Info("Step 1: Opening model")
	oracle, err := p.models.Open(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindModelUnusable, "model", "failed to open model").WithHint(errors.ModelHint)
	}
	if c, ok := oracle.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				log.Warn("Failed to close model", zap.Error(err))
			}
		}()
	}

	// Step 2: Load the input
	kind, err := DetectInputKind(path)
	if err != nil {
		return nil, err
	}
	log.Info("Step 2: Loading input", zap.Stringer("kind", kind))
	in, err := p.loader.Load(ctx, path, kind, p.params.Load)
	if err != nil {
		return nil, loadError(ctx, path, err)
	}
	if in == nil || in.Grid == nil {
		return nil, errors.New(errors.KindInputFormat, "load", "loader returned no grid for %s", path)
	}
	if in.Grid.Boundary != grid.BoundaryPeriodic {
		return nil, errors.New(errors.KindInputFormat, "load", "input grid must span a unit cell")
	}
	in.Kind = kind
	if kind == KindMap && p.params.NormalizeMaps {
		in.Grid.Normalize()
	}
	res.Raw = in.Grid
	res.SpaceGroup = in.SpaceGroup
	log.Info("Raw unit cell",
		zap.Stringer("cell", in.Grid.Cell),
		zap.Stringer("space_group", in.SpaceGroup),
		zap.Ints("shape", in.Grid.Shape[:]))

	// Step 3: Geometry
	log.Info("Step 3: Planning geometry")
	geo, err := PlanGeometry(in.Grid.Cell, in.SpaceGroup, p.params)
	if err != nil {
		return nil, err
	}
	res.Geometry = geo
	log.Debug("Geometry",
		zap.Any("box_minimum", geo.Box.Minimum),
		zap.Any("box_size", geo.Box.Size()),
		zap.Ints("working_shape", geo.WorkingShape[:]),
		zap.Int("tiles", geo.Plan.Len()),
		zap.Ints("output_shape", geo.OutputShape[:]))

	// Step 4: Resample onto the working grid
	log.Info("Step 4: Interpolating onto working grid", zap.Float64("spacing", p.params.Spacing))
	working, err := grid.Isotropic(in.Grid, geo.Box, p.params.Spacing)
	if err != nil {
		return nil, err
	}
	res.Interpolated = working
	previews := []preview{{"01_interpolated", working}}

	// Step 5: Classify every tile
	log.Info("Step 5: Predicting tiles", zap.Int("tiles", geo.Plan.Len()))
	orch, err := inference.NewOrchestrator(oracle, inference.Params{
		OutputMode: p.params.OutputMode,
		Workers:    p.params.Workers,
		Logger:     log,
		Metrics:    p.metrics,
		Progress:   p.params.Progress,
	})
	if err != nil {
		return nil, err
	}
	buffers, stats, err := orch.Run(ctx, working, geo.Plan)
	if err != nil {
		return nil, err
	}
	res.Stats = stats

	// Step 6: Reassemble onto the unit cell
	log.Info("Step 6: Reinterpolating onto unit cell")
	rs, err := reassembly.NewReassembler(reassembly.Params{
		Cell:       in.Grid.Cell,
		SpaceGroup: in.SpaceGroup,
		Box:        geo.Box,
		Spacing:    p.params.Spacing,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	if p.params.SaveIntermediaryResults {
		if predicted, err := rs.Predicted(buffers, geo.Plan); err == nil {
			previews = append(previews, preview{"02_predicted_working", predicted})
		}
	}
	out, err := rs.Reassemble(buffers, geo.Plan)
	if err != nil {
		return nil, err
	}
	res.Predicted = out
	previews = append(previews, preview{"03_predicted", out})

	// Previews are written only once the whole run has succeeded.
	for _, pv := range previews {
		p.saveIntermediary(log, res.RunID, pv.stage, pv.grid)
	}

	res.Elapsed = time.Since(start)
	log.Info("Prediction complete",
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("inferred", stats.Inferred),
		zap.Int("skipped", stats.Skipped))
	return res, nil
}

// preview is a grid kept for the intermediary output of one stage.
type preview struct {
	stage string
	grid  *grid.Grid
}

// loadError classifies a loader failure. Cancellation and errors that already
// carry a kind pass through; file system errors are wrapped plainly; anything
// else means the file could not be read as the detected format.
func loadError(ctx context.Context, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && stderrors.Is(err, ctxErr) {
		return err
	}
	if errors.KindOf(err) != errors.KindUnknown {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	var pathErr *fs.PathError
	if stderrors.As(err, &pathErr) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return errors.Wrap(err, errors.KindInputFormat, "load", "failed to load %s", path)
}

// saveIntermediary writes z slices of g. Failures are logged, never fatal.
func (p *Predictor) saveIntermediary(log *zap.Logger, runID, stage string, g *grid.Grid) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	dir := filepath.Join(p.params.IntermediaryDir, runID, stage)
	n, err := visualization.NewViewer(g).SaveSliceSequence("z", dir)
	if err != nil {
		log.Warn("Failed to save intermediary slices", zap.String("stage", stage), zap.Error(err))
		return
	}
	log.Debug("Saved intermediary slices", zap.String("stage", stage), zap.Int("slices", n), zap.String("dir", dir))
}

// Save writes the predicted map to path.
func (r *Result) Save(ctx context.Context, w MapWriter, path string) error {
	if r.Predicted == nil {
		return fmt.Errorf("no predicted map to save")
	}
	return writeMap(ctx, w, path, r.Predicted, r.SpaceGroup)
}

// SaveInterpolated writes the working grid to path. It has no symmetry.
func (r *Result) SaveInterpolated(ctx context.Context, w MapWriter, path string) error {
	if r.Interpolated == nil {
		return fmt.Errorf("no interpolated map to save")
	}
	return writeMap(ctx, w, path, r.Interpolated, nil)
}

// SaveRaw writes the (possibly normalised) input grid to path.
func (r *Result) SaveRaw(ctx context.Context, w MapWriter, path string) error {
	if r.Raw == nil {
		return fmt.Errorf("no raw map to save")
	}
	return writeMap(ctx, w, path, r.Raw, r.SpaceGroup)
}

func writeMap(ctx context.Context, w MapWriter, path string, g *grid.Grid, sg *crystal.SpaceGroup) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := w.WriteMap(ctx, path, g, sg); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
