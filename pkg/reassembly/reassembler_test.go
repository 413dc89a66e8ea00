package reassembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"nucleofind/internal/models"
	"nucleofind/pkg/crystal"
	"nucleofind/pkg/errors"
	"nucleofind/pkg/grid"
	"nucleofind/pkg/tiling"
)

const spacing = 0.7

// filledBuffers covers every voxel once with value(x, y, z).
func filledBuffers(plan *tiling.Plan, value func(x, y, z int) float32) *tiling.Buffers {
	b := plan.NewBuffers()
	s := b.Shape
	for x := 0; x < s[0]; x++ {
		for y := 0; y < s[1]; y++ {
			for z := 0; z < s[2]; z++ {
				i := (x*s[1]+y)*s[2] + z
				b.Sum[i] = value(x, y, z)
				b.Count[i] = 1
			}
		}
	}
	return b
}

func setup(t *testing.T, sg *crystal.SpaceGroup) (*Reassembler, *tiling.Plan) {
	t.Helper()
	cell, err := crystal.OrthogonalCell(10, 10, 10)
	require.NoError(t, err)
	box := crystal.BoundingBox(cell, sg)
	plan, err := tiling.NewPlan(grid.IsotropicShape(box, spacing), tiling.DefaultTileSize, tiling.DefaultOverlap)
	require.NoError(t, err)
	r, err := NewReassembler(Params{Cell: cell, SpaceGroup: sg, Box: box, Spacing: spacing})
	require.NoError(t, err)
	return r, plan
}

func TestReassembleConstantP1(t *testing.T) {
	r, plan := setup(t, nil)
	buf := filledBuffers(plan, func(_, _, _ int) float32 { return 0.7 })

	out, err := r.Reassemble(buf, plan)
	require.NoError(t, err)
	assert.Equal(t, [3]int{15, 15, 15}, out.Shape)
	assert.Equal(t, grid.BoundaryPeriodic, out.Boundary)
	for i, v := range out.Data {
		require.InDelta(t, 0.7, v, 1e-6, "sample %d", i)
	}
}

func TestPredictedAveragesAndCrops(t *testing.T) {
	r, plan := setup(t, nil)
	buf := filledBuffers(plan, func(x, _, _ int) float32 { return float32(2 * x) })
	for i := range buf.Count {
		buf.Count[i] = 2
	}

	g, err := r.Predicted(buf, plan)
	require.NoError(t, err)
	assert.Equal(t, plan.ValidShape(), g.Shape)
	assert.Equal(t, grid.BoundaryZero, g.Boundary)
	assert.Equal(t, float32(5), g.At(5, 3, 1))
	assert.InDelta(t, 5.5, g.Interpolate(r3.Vec{X: 5.5 * spacing, Y: 1, Z: 1}), 1e-5)
}

func TestReassembleP21FillsMatesFromAsymmetricUnit(t *testing.T) {
	sg, err := crystal.FindSpaceGroup("P 1 21 1")
	require.NoError(t, err)
	r, plan := setup(t, sg)
	assert.Equal(t, [3]int{14, 7, 14}, plan.Shape)

	// The predicted value grows linearly with x, so interpolation is exact.
	buf := filledBuffers(plan, func(x, _, _ int) float32 { return float32(x) })

	out, err := r.Reassemble(buf, plan)
	require.NoError(t, err)
	n := out.Shape
	require.Equal(t, 0, n[1]%2)
	half := n[1] / 2

	f := func(x int) float32 {
		return float32(float64(x) * 10 / float64(n[0]) / spacing)
	}
	wrap := func(i, m int) int { return ((i % m) + m) % m }

	for x := 0; x < n[0]; x++ {
		for y := 0; y < n[1]; y++ {
			for z := 0; z < n[2]; z++ {
				v := out.At(x, y, z)
				mate := out.At(wrap(-x, n[0]), wrap(y+half, n[1]), wrap(-z, n[2]))
				require.Equal(t, v, mate, "(%d,%d,%d)", x, y, z)

				switch {
				case y > 0 && y < half:
					require.InDelta(t, f(x), v, 1e-4, "(%d,%d,%d)", x, y, z)
				case y > half:
					require.InDelta(t, f(wrap(-x, n[0])), v, 1e-4, "(%d,%d,%d)", x, y, z)
				}
			}
		}
	}
}

func TestReassembleRejectsUncoveredVoxel(t *testing.T) {
	r, plan := setup(t, nil)
	buf := filledBuffers(plan, func(_, _, _ int) float32 { return 1 })
	buf.Count[(3*buf.Shape[1]+4)*buf.Shape[2]+5] = 0

	_, err := r.Reassemble(buf, plan)
	assert.ErrorIs(t, err, errors.ErrCoverageInvariant)
	assert.Contains(t, err.Error(), "(3,4,5)")
}

func TestNewReassemblerValidates(t *testing.T) {
	cell, err := crystal.OrthogonalCell(10, 10, 10)
	require.NoError(t, err)
	box := crystal.BoundingBox(cell, nil)

	_, err = NewReassembler(Params{Cell: cell, Box: box, Spacing: 0})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = NewReassembler(Params{Cell: cell, Box: models.BoundingBox{}, Spacing: spacing})
	assert.ErrorIs(t, err, errors.ErrGeometryDegenerate)

	_, err = NewReassembler(Params{Cell: crystal.UnitCell{A: 10}, Box: box, Spacing: spacing})
	assert.ErrorIs(t, err, errors.ErrGeometryDegenerate)
}
