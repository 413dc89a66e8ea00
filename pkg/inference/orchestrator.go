package inference

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"nucleofind/internal/models"
	"nucleofind/pkg/errors"
	"nucleofind/pkg/grid"
	"nucleofind/pkg/tiling"
)

// ProgressCallback is called after every finished tile.
type ProgressCallback func(completed, total int, message string)

// Params configures an Orchestrator.
type Params struct {
	// OutputMode selects how class probabilities become one scalar per voxel.
	OutputMode models.OutputMode

	// Workers bounds concurrent oracle calls. Zero means runtime.NumCPU();
	// one processes tiles strictly in translation order.
	Workers int

	Logger   *zap.Logger
	Metrics  Metrics
	Progress ProgressCallback
}

// Stats summarises one run.
type Stats struct {
	Tiles    int
	Inferred int
	Skipped  int
	Elapsed  time.Duration
}

// TileError identifies the tile whose inference failed.
type TileError struct {
	Translation models.Translation
	Err         error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile at %s: %v", e.Translation, e.Err)
}

func (e *TileError) Unwrap() error {
	return e.Err
}

// Orchestrator runs the oracle over every tile of a plan.
type Orchestrator struct {
	oracle Oracle
	params Params
}

// NewOrchestrator wraps oracle. The oracle is borrowed, never closed.
func NewOrchestrator(oracle Oracle, params Params) (*Orchestrator, error) {
	if oracle == nil {
		return nil, errors.New(errors.KindModelUnusable, "inference", "no oracle configured")
	}
	if params.Workers <= 0 {
		params.Workers = runtime.NumCPU()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Metrics == nil {
		params.Metrics = NoopMetrics{}
	}
	return &Orchestrator{oracle: oracle, params: params}, nil
}

// run is the mutable state of one Run call.
type run struct {
	o     *Orchestrator
	src   *grid.Grid
	plan  *tiling.Plan
	total int

	mu        sync.Mutex
	buffers   *tiling.Buffers
	completed int
	stats     Stats
}

// Run classifies every tile of plan over src and returns the accumulated
// buffers. Tiles whose input sums to exactly zero only add coverage and never
// reach the oracle. The first failing tile aborts the run; a tile is
// accumulated only after its inference succeeded, so buffers never contain
// part of a tile.
func (o *Orchestrator) Run(ctx context.Context, src *grid.Grid, plan *tiling.Plan) (*tiling.Buffers, Stats, error) {
	start := time.Now()
	translations := plan.Translations()
	r := &run{
		o:       o,
		src:     src,
		plan:    plan,
		total:   len(translations),
		buffers: plan.NewBuffers(),
	}
	r.stats.Tiles = r.total

	bufferShape := plan.BufferShape()
	o.params.Logger.Info("Predicting map",
		zap.Int("tiles", r.total),
		zap.Int("workers", o.params.Workers),
		zap.Stringer("mode", o.params.OutputMode),
		zap.Ints("buffer_shape", bufferShape[:]))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.params.Workers)
	for _, t := range translations {
		if gctx.Err() != nil {
			break
		}
		t := t
		g.Go(func() error {
			return r.tile(gctx, t)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	r.stats.Elapsed = time.Since(start)
	o.params.Logger.Info("Prediction of tiles complete",
		zap.Int("inferred", r.stats.Inferred),
		zap.Int("skipped", r.stats.Skipped),
		zap.Duration("elapsed", r.stats.Elapsed))
	return r.buffers, r.stats, nil
}

func (r *run) tile(ctx context.Context, t models.Translation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	size := r.plan.TileSize
	cube := r.src.Subvolume([3]int{t.X, t.Y, t.Z}, r.plan.TileShape())

	if cubeSum(cube) == 0 {
		r.o.params.Metrics.TileSkipped()
		return r.accumulate(t, nil, true)
	}

	start := time.Now()
	vol, err := r.o.oracle.Infer(ctx, Cube{Size: size, Data: cube})
	if err != nil {
		r.o.params.Metrics.TileFailed()
		r.o.params.Logger.Error("Oracle failed", zap.Stringer("translation", t), zap.Error(err))
		return errors.Wrap(&TileError{Translation: t, Err: err}, errors.KindInference, "inference", "oracle failed")
	}
	r.o.params.Metrics.TileInferred(time.Since(start))

	values, err := Reduce(vol, size, r.o.params.OutputMode)
	if err != nil {
		r.o.params.Metrics.TileFailed()
		return &TileError{Translation: t, Err: err}
	}
	return r.accumulate(t, values, false)
}

func (r *run) accumulate(t models.Translation, values []float32, skipped bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.buffers.Add(t, r.plan.TileSize, values); err != nil {
		return &TileError{Translation: t, Err: err}
	}
	if skipped {
		r.stats.Skipped++
	} else {
		r.stats.Inferred++
	}
	r.completed++
	r.o.params.Logger.Debug("Tile accumulated", zap.Stringer("translation", t), zap.Bool("skipped", skipped))
	if r.o.params.Progress != nil {
		r.o.params.Progress(r.completed, r.total, fmt.Sprintf("tile %s", t))
	}
	return nil
}

func cubeSum(cube []float32) float64 {
	buf := make([]float64, len(cube))
	for i, v := range cube {
		buf[i] = float64(v)
	}
	return floats.Sum(buf)
}
