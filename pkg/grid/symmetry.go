package grid

import (
	"fmt"
	"math"

	"nucleofind/pkg/crystal"
)

// gridOp is a symmetry operator expressed on integer grid indices:
// idx'[a] = sum_b coef[a][b]*idx[b] + shift[a], modulo the shape.
type gridOp struct {
	coef  [3][3]float64
	shift [3]float64
}

func gridOps(shape [3]int, sg *crystal.SpaceGroup) ([]gridOp, error) {
	ops := sg.Operators()
	out := make([]gridOp, len(ops))
	for k, op := range ops {
		var g gridOp
		for a := 0; a < 3; a++ {
			g.shift[a] = op.Tran[a] * float64(shape[a])
			if !integral(g.shift[a]) {
				return nil, fmt.Errorf("operator %s: translation is off the %v grid", op, shape)
			}
			for b := 0; b < 3; b++ {
				if op.Rot[a][b] == 0 {
					continue
				}
				g.coef[a][b] = float64(op.Rot[a][b]) * float64(shape[a]) / float64(shape[b])
				if !integral(g.coef[a][b]) {
					return nil, fmt.Errorf("operator %s maps the %v grid off-lattice", op, shape)
				}
			}
		}
		out[k] = g
	}
	return out, nil
}

func integral(v float64) bool {
	return math.Abs(v-math.Round(v)) < 1e-6
}

func (o *gridOp) apply(shape [3]int, p [3]int) [3]int {
	var q [3]int
	for a := 0; a < 3; a++ {
		v := o.shift[a]
		for b := 0; b < 3; b++ {
			v += o.coef[a][b] * float64(p[b])
		}
		q[a] = wrap(int(math.Round(v)), shape[a])
	}
	return q
}

// SymmetrizeMax sets every symmetry-equivalent set of grid points to the
// maximum value found among them. The grid must be periodic and its shape
// compatible with sg (see crystal.GridShape). Applying it twice is a no-op.
func SymmetrizeMax(g *Grid, sg *crystal.SpaceGroup) error {
	if g.Boundary != BoundaryPeriodic {
		return fmt.Errorf("symmetrize: grid is not periodic")
	}
	ops, err := gridOps(g.Shape, sg)
	if err != nil {
		return fmt.Errorf("symmetrize: %w", err)
	}
	if len(ops) == 1 {
		return nil
	}

	visited := make([]bool, len(g.Data))
	orbit := make([]int, 0, len(ops))
	for x := 0; x < g.Shape[0]; x++ {
		for y := 0; y < g.Shape[1]; y++ {
			for z := 0; z < g.Shape[2]; z++ {
				idx := g.Index(x, y, z)
				if visited[idx] {
					continue
				}
				orbit = orbit[:0]
				best := g.Data[idx]
				for i := range ops {
					q := ops[i].apply(g.Shape, [3]int{x, y, z})
					j := g.Index(q[0], q[1], q[2])
					orbit = append(orbit, j)
					if g.Data[j] > best {
						best = g.Data[j]
					}
				}
				for _, j := range orbit {
					g.Data[j] = best
					visited[j] = true
				}
			}
		}
	}
	return nil
}
