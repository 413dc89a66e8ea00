package tiling

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleofind/internal/models"
	"nucleofind/pkg/errors"
)

func TestPlanReferenceScenario(t *testing.T) {
	p, err := NewPlan([3]int{14, 14, 14}, 32, 16)
	require.NoError(t, err)

	assert.Equal(t, [3]int{1, 1, 1}, p.CoarseCount)
	assert.Equal(t, [3]int{1, 1, 1}, p.TileCount)
	assert.Equal(t, []models.Translation{{X: 0, Y: 0, Z: 0}}, p.Translations())
	assert.Equal(t, [3]int{48, 48, 48}, p.BufferShape())
	assert.Equal(t, [3]int{32, 32, 32}, p.ValidShape())
}

func TestPlanTranslationOrder(t *testing.T) {
	p, err := NewPlan([3]int{20, 40, 10}, 32, 16)
	require.NoError(t, err)

	want := []models.Translation{
		{X: 0, Y: 0, Z: 0}, {X: 0, Y: 16, Z: 0}, {X: 0, Y: 32, Z: 0},
		{X: 16, Y: 0, Z: 0}, {X: 16, Y: 16, Z: 0}, {X: 16, Y: 32, Z: 0},
	}
	if diff := cmp.Diff(want, p.Translations()); diff != "" {
		t.Errorf("translations mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(want), p.Len())
	assert.Equal(t, [3]int{1, 2, 1}, p.TileCount)
	assert.Equal(t, [3]int{48, 80, 48}, p.BufferShape())
}

func TestValidateTiling(t *testing.T) {
	for _, tc := range []struct {
		tile, overlap int
		ok            bool
	}{
		{32, 16, true},
		{32, 32, true},
		{32, 8, true},
		{16, 4, true},
		{32, 0, false},
		{32, 33, false},
		{32, 20, false},
		{0, 1, false},
	} {
		err := ValidateTiling(tc.tile, tc.overlap)
		if tc.ok {
			assert.NoError(t, err, "%d/%d", tc.tile, tc.overlap)
		} else {
			assert.ErrorIs(t, err, errors.ErrInvalidConfig, "%d/%d", tc.tile, tc.overlap)
		}
	}

	_, err := NewPlan([3]int{0, 10, 10}, 32, 16)
	assert.ErrorIs(t, err, errors.ErrGeometryDegenerate)
}

// coverage runs every tile of the plan through fresh buffers.
func coverage(t *testing.T, p *Plan) *Buffers {
	t.Helper()
	b := p.NewBuffers()
	for _, tr := range p.Translations() {
		require.NoError(t, b.Add(tr, p.TileSize, nil))
	}
	return b
}

func TestCoverageInvariant(t *testing.T) {
	for _, cfg := range [][2]int{{32, 16}, {32, 32}, {32, 8}, {16, 4}, {8, 8}} {
		for _, extent := range []int{1, 7, 14, 15, 16, 31, 32, 33, 47, 63, 64, 65, 100} {
			p, err := NewPlan([3]int{extent, extent/2 + 1, extent + 3}, cfg[0], cfg[1])
			require.NoError(t, err)
			valid, err := coverage(t, p).Crop(p.ValidShape())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, valid.MinCoverage(), float32(1),
				"tile=%d overlap=%d extent=%d", cfg[0], cfg[1], extent)
		}
	}
}

func TestTilesStayInsideBuffers(t *testing.T) {
	p, err := NewPlan([3]int{95, 33, 64}, 32, 16)
	require.NoError(t, err)
	b := p.NewBuffers()
	for _, tr := range p.Translations() {
		assert.NoError(t, b.Add(tr, p.TileSize, nil))
	}
}

func TestBuffersAddAccumulates(t *testing.T) {
	b := NewBuffers([3]int{3, 3, 3})
	ones := make([]float32, 8)
	for i := range ones {
		ones[i] = 1
	}
	require.NoError(t, b.Add(models.Translation{}, 2, ones))
	require.NoError(t, b.Add(models.Translation{X: 1, Y: 1, Z: 1}, 2, ones))

	assert.Equal(t, float32(2), b.Sum[b.index(1, 1, 1)])
	assert.Equal(t, float32(2), b.Count[b.index(1, 1, 1)])
	assert.Equal(t, float32(1), b.Count[b.index(0, 0, 0)])
	assert.Equal(t, float32(0), b.Count[b.index(0, 2, 2)])

	assert.Error(t, b.Add(models.Translation{X: 2}, 2, ones))
	assert.Error(t, b.Add(models.Translation{}, 2, ones[:3]))
}

func TestNormalizeRejectsUncovered(t *testing.T) {
	b := NewBuffers([3]int{2, 2, 2})
	require.NoError(t, b.Add(models.Translation{}, 1, []float32{4}))

	_, err := b.Normalize()
	assert.ErrorIs(t, err, errors.ErrCoverageInvariant)
	assert.Contains(t, err.Error(), "(0,0,1)")
}

func TestNormalizeAveragesAndDropsNaN(t *testing.T) {
	b := NewBuffers([3]int{1, 1, 2})
	require.NoError(t, b.Add(models.Translation{}, 1, []float32{3}))
	require.NoError(t, b.Add(models.Translation{}, 1, []float32{1}))
	b.Count[1] = 1
	b.Sum[1] = float32(math.NaN())

	out, err := b.Normalize()
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0}, out)
}

func TestCrop(t *testing.T) {
	b := NewBuffers([3]int{3, 3, 3})
	for i := range b.Sum {
		b.Sum[i] = float32(i)
		b.Count[i] = 1
	}
	c, err := b.Crop([3]int{2, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 3, 4, 9, 10, 12, 13}, c.Sum)

	_, err = b.Crop([3]int{4, 1, 1})
	assert.Error(t, err)
}
