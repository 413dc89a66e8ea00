// Package crystal describes periodic crystal geometry: unit cells, space-group
// symmetry and the asymmetric-unit bounding box used to size working grids.
package crystal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// UnitCell is a crystallographic unit cell. Lengths are in Ångström, angles
// in degrees.
type UnitCell struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64

	// orth and frac are row-major 3x3 matrices filled by init.
	orth  [9]float64
	frac  [9]float64
	ready bool
}

// NewUnitCell returns a validated cell.
func NewUnitCell(a, b, c, alpha, beta, gamma float64) (UnitCell, error) {
	cell := UnitCell{A: a, B: b, C: c, Alpha: alpha, Beta: beta, Gamma: gamma}
	if err := cell.init(); err != nil {
		return UnitCell{}, err
	}
	return cell, nil
}

// OrthogonalCell returns a rectangular cell with the given edge lengths.
func OrthogonalCell(a, b, c float64) (UnitCell, error) {
	return NewUnitCell(a, b, c, 90, 90, 90)
}

// Validate checks that the cell has positive edges and a positive volume.
func (u UnitCell) Validate() error {
	c := u
	return c.init()
}

func (u *UnitCell) init() error {
	if u.A <= 0 || u.B <= 0 || u.C <= 0 {
		return fmt.Errorf("unit cell edges must be positive, got %g %g %g", u.A, u.B, u.C)
	}
	for _, ang := range []float64{u.Alpha, u.Beta, u.Gamma} {
		if ang <= 0 || ang >= 180 {
			return fmt.Errorf("unit cell angles must lie in (0, 180), got %g %g %g", u.Alpha, u.Beta, u.Gamma)
		}
	}

	ca, cb, cg := cosd(u.Alpha), cosd(u.Beta), cosd(u.Gamma)
	sg := sind(u.Gamma)
	v := 1 - ca*ca - cb*cb - cg*cg + 2*ca*cb*cg
	if v <= 0 {
		return fmt.Errorf("unit cell angles %g %g %g do not form a cell", u.Alpha, u.Beta, u.Gamma)
	}
	volume := u.A * u.B * u.C * math.Sqrt(v)

	// a along x, b in the xy plane.
	orth := mat.NewDense(3, 3, []float64{
		u.A, u.B * cg, u.C * cb,
		0, u.B * sg, u.C * (ca - cb*cg) / sg,
		0, 0, volume / (u.A * u.B * sg),
	})
	var frac mat.Dense
	if err := frac.Inverse(orth); err != nil {
		return fmt.Errorf("unit cell matrix is singular: %w", err)
	}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			u.orth[3*i+j] = orth.At(i, j)
			u.frac[3*i+j] = frac.At(i, j)
		}
	}
	u.ready = true
	return nil
}

// matrices lazily initialises cells built as struct literals.
func (u *UnitCell) matrices() (*[9]float64, *[9]float64) {
	if !u.ready {
		if err := u.init(); err != nil {
			panic(fmt.Sprintf("crystal: invalid unit cell: %v", err))
		}
	}
	return &u.orth, &u.frac
}

// Orthogonalize converts fractional coordinates to orthogonal Ångström.
func (u *UnitCell) Orthogonalize(f r3.Vec) r3.Vec {
	m, _ := u.matrices()
	return mulVec(m, f)
}

// Fractionalize converts orthogonal coordinates to fractional.
func (u *UnitCell) Fractionalize(p r3.Vec) r3.Vec {
	_, m := u.matrices()
	return mulVec(m, p)
}

// OrthogonalizationMatrix returns the fractional→orthogonal matrix.
func (u *UnitCell) OrthogonalizationMatrix() *mat.Dense {
	m, _ := u.matrices()
	return mat.NewDense(3, 3, append([]float64(nil), m[:]...))
}

// Volume returns the cell volume in Å³.
func (u *UnitCell) Volume() float64 {
	m, _ := u.matrices()
	return m[0] * m[4] * m[8]
}

// IsOrthogonal reports whether all angles are 90°.
func (u UnitCell) IsOrthogonal() bool {
	return u.Alpha == 90 && u.Beta == 90 && u.Gamma == 90
}

// String formats the cell like "<a b c alpha beta gamma>".
func (u UnitCell) String() string {
	return fmt.Sprintf("<%.3f %.3f %.3f %.2f %.2f %.2f>", u.A, u.B, u.C, u.Alpha, u.Beta, u.Gamma)
}

func mulVec(m *[9]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// cosd avoids the tiny residue math.Cos leaves at exactly 90°.
func cosd(deg float64) float64 {
	if deg == 90 {
		return 0
	}
	return math.Cos(deg * math.Pi / 180)
}

func sind(deg float64) float64 {
	if deg == 90 {
		return 1
	}
	return math.Sin(deg * math.Pi / 180)
}
