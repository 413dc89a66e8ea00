package prediction

import (
	"context"
	"path/filepath"
	"strings"

	"nucleofind/pkg/crystal"
	"nucleofind/pkg/errors"
	"nucleofind/pkg/grid"
	"nucleofind/pkg/inference"
)

// InputKind distinguishes structure-factor files from density maps.
type InputKind int

const (
	// KindReflections is a reflection file (MTZ) from which the loader
	// computes a density map.
	KindReflections InputKind = iota
	// KindMap is a CCP4/MRC density map.
	KindMap
)

func (k InputKind) String() string {
	switch k {
	case KindReflections:
		return "reflections"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// DetectInputKind classifies path by its extension.
func DetectInputKind(path string) (InputKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mtz":
		return KindReflections, nil
	case ".map", ".ccp4", ".mrc":
		return KindMap, nil
	}
	return 0, errors.New(errors.KindInputFormat, "load", "the input file %q is not a mtz or map", path)
}

// Input is a loaded density map in its crystallographic frame.
type Input struct {
	Kind InputKind

	// Grid spans one unit cell and is periodic.
	Grid *grid.Grid

	// SpaceGroup may be nil for P 1.
	SpaceGroup *crystal.SpaceGroup
}

// LoadOptions are passed through to the loader untouched.
type LoadOptions struct {
	// ResolutionCutoff drops reflections beyond this resolution (Å) when set.
	ResolutionCutoff *float64

	// Columns names the amplitude and phase columns of a reflection file;
	// empty means the loader's default (FWT, PHWT).
	Columns [2]string
}

// Loader reads reflection or map files. Implementations live outside this
// module.
type Loader interface {
	Load(ctx context.Context, path string, kind InputKind, opts LoadOptions) (*Input, error)
}

// MapWriter persists a grid, typically as a CCP4 map.
type MapWriter interface {
	WriteMap(ctx context.Context, path string, g *grid.Grid, sg *crystal.SpaceGroup) error
}

// ModelSource opens the classifier for one run. If the returned oracle also
// implements io.Closer it is closed when the run ends.
type ModelSource interface {
	Open(ctx context.Context) (inference.Oracle, error)
}

// StaticModel serves an oracle that is already open.
type StaticModel struct {
	Oracle inference.Oracle
}

// Open returns s.Oracle.
func (s StaticModel) Open(context.Context) (inference.Oracle, error) {
	if s.Oracle == nil {
		return nil, errors.New(errors.KindModelUnusable, "model", "no oracle loaded")
	}
	return s.Oracle, nil
}
