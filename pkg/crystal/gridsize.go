package crystal

import (
	"fmt"
	"math"
)

// GridShape picks the shape of a cell-spanning grid with a sampling interval
// of at most spacing Å. Each axis is rounded up to a size with only 2, 3 and 5
// as prime factors, and constrained so that every symmetry operator of sg maps
// grid points onto grid points.
func GridShape(cell UnitCell, sg *SpaceGroup, spacing float64) ([3]int, error) {
	if spacing <= 0 || math.IsNaN(spacing) {
		return [3]int{}, fmt.Errorf("grid spacing must be positive, got %g", spacing)
	}
	if err := cell.Validate(); err != nil {
		return [3]int{}, err
	}

	ops := sg.Operators()
	var factor [3]int
	for i := range factor {
		factor[i] = 1
		for _, op := range ops {
			factor[i] = lcm(factor[i], denominator(op.Tran[i]))
		}
	}

	shape := [3]int{
		int(math.Ceil(cell.A/spacing - 1e-9)),
		int(math.Ceil(cell.B/spacing - 1e-9)),
		int(math.Ceil(cell.C/spacing - 1e-9)),
	}
	for i := range shape {
		shape[i] = smoothSize(shape[i], factor[i])
	}

	// Operators that mix axes need those axes sampled identically.
	for iter := 0; iter < 8; iter++ {
		changed := false
		for _, op := range ops {
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					if i == j || op.Rot[i][j] == 0 || shape[i] == shape[j] {
						continue
					}
					n := shape[i]
					if shape[j] > n {
						n = shape[j]
					}
					n = smoothSize(n, lcm(factor[i], factor[j]))
					shape[i], shape[j] = n, n
					changed = true
				}
			}
		}
		if !changed {
			return shape, nil
		}
	}
	return shape, nil
}

// smoothSize returns the smallest n' >= n that is a multiple of factor and
// has no prime factors other than 2, 3 and 5.
func smoothSize(n, factor int) int {
	if n < 1 {
		n = 1
	}
	m := ((n + factor - 1) / factor) * factor
	for ; ; m += factor {
		if isSmooth(m) {
			return m
		}
	}
}

func isSmooth(n int) bool {
	for _, p := range []int{2, 3, 5} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}

// denominator returns the smallest d <= 24 with t*d integral, or 1.
func denominator(t float64) int {
	t -= math.Floor(t)
	for d := 1; d <= 24; d++ {
		v := t * float64(d)
		if math.Abs(v-math.Round(v)) < 1e-9 {
			return d
		}
	}
	return 1
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
