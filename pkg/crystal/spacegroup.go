package crystal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Op is a symmetry operator acting on fractional coordinates: f' = Rot·f + Tran.
type Op struct {
	Rot  [3][3]int
	Tran [3]float64
}

// Identity is the identity operator.
var Identity = Op{Rot: [3][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

// Apply transforms fractional coordinates f.
func (o Op) Apply(f r3.Vec) r3.Vec {
	in := [3]float64{f.X, f.Y, f.Z}
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = o.Tran[i]
		for j := 0; j < 3; j++ {
			out[i] += float64(o.Rot[i][j]) * in[j]
		}
	}
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}
}

// String formats the operator as a coordinate triplet such as "-x,y+1/2,-z".
func (o Op) String() string {
	axes := [3]string{"x", "y", "z"}
	parts := make([]string, 3)
	for i := 0; i < 3; i++ {
		var sb strings.Builder
		for j := 0; j < 3; j++ {
			switch o.Rot[i][j] {
			case 1:
				if sb.Len() > 0 {
					sb.WriteByte('+')
				}
				sb.WriteString(axes[j])
			case -1:
				sb.WriteByte('-')
				sb.WriteString(axes[j])
			}
		}
		if t := o.Tran[i]; t != 0 {
			if t > 0 && sb.Len() > 0 {
				sb.WriteByte('+')
			}
			sb.WriteString(formatFraction(t))
		}
		parts[i] = sb.String()
	}
	return strings.Join(parts, ",")
}

// ParseOp parses a coordinate triplet like "-y+1/2,x-y,z+1/3".
func ParseOp(triplet string) (Op, error) {
	parts := strings.Split(strings.ReplaceAll(strings.ToLower(triplet), " ", ""), ",")
	if len(parts) != 3 {
		return Op{}, fmt.Errorf("symmetry operator %q must have three components", triplet)
	}
	var op Op
	for i, part := range parts {
		if part == "" {
			return Op{}, fmt.Errorf("symmetry operator %q has an empty component", triplet)
		}
		if err := parseRow(part, &op.Rot[i], &op.Tran[i]); err != nil {
			return Op{}, fmt.Errorf("symmetry operator %q: %w", triplet, err)
		}
	}
	return op, nil
}

func parseRow(s string, rot *[3]int, tran *float64) error {
	for pos := 0; pos < len(s); {
		sign := 1
		switch s[pos] {
		case '+':
			pos++
		case '-':
			sign = -1
			pos++
		}
		if pos >= len(s) {
			return fmt.Errorf("dangling sign in %q", s)
		}
		switch c := s[pos]; {
		case c == 'x' || c == 'y' || c == 'z':
			rot[c-'x'] += sign
			pos++
		default:
			end := pos
			for end < len(s) && s[end] != '+' && s[end] != '-' && (s[end] < 'x' || s[end] > 'z') {
				end++
			}
			v, err := parseNumber(s[pos:end])
			if err != nil {
				return err
			}
			*tran += float64(sign) * v
			pos = end
		}
	}
	return nil
}

func parseNumber(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("bad numerator in %q", s)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("bad denominator in %q", s)
		}
		return n / d, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

func formatFraction(t float64) string {
	for _, den := range []int{2, 3, 4, 6, 8, 12} {
		num := t * float64(den)
		if math.Abs(num-math.Round(num)) < 1e-9 {
			return fmt.Sprintf("%d/%d", int(math.Round(num)), den)
		}
	}
	return strconv.FormatFloat(t, 'g', -1, 64)
}

// Brick is an axis-aligned region in fractional coordinates.
type Brick struct {
	Min, Max r3.Vec
}

// FullCell is the brick [0,1]^3.
var FullCell = Brick{Max: r3.Vec{X: 1, Y: 1, Z: 1}}

// Contains reports whether fractional point f lies inside the brick, with a
// small tolerance for points on the faces.
func (b Brick) Contains(f r3.Vec) bool {
	const eps = 1e-9
	return f.X >= b.Min.X-eps && f.X <= b.Max.X+eps &&
		f.Y >= b.Min.Y-eps && f.Y <= b.Max.Y+eps &&
		f.Z >= b.Min.Z-eps && f.Z <= b.Max.Z+eps
}

// SpaceGroup is a set of symmetry operators plus, when known, a fractional
// brick containing one asymmetric unit.
type SpaceGroup struct {
	Name string
	Ops  []Op

	// ASU is nil when the asymmetric unit is unknown; callers then use the
	// full cell.
	ASU *Brick
}

// NewSpaceGroup parses operator triplets. The identity is added when missing.
func NewSpaceGroup(name string, triplets []string, asu *Brick) (*SpaceGroup, error) {
	sg := &SpaceGroup{Name: name, ASU: asu}
	hasIdentity := false
	for _, t := range triplets {
		op, err := ParseOp(t)
		if err != nil {
			return nil, err
		}
		if op == Identity {
			hasIdentity = true
		}
		sg.Ops = append(sg.Ops, op)
	}
	if !hasIdentity {
		sg.Ops = append([]Op{Identity}, sg.Ops...)
	}
	return sg, nil
}

// Brick returns the asymmetric-unit brick, or the full cell when unknown.
func (sg *SpaceGroup) Brick() Brick {
	if sg == nil || sg.ASU == nil {
		return FullCell
	}
	return *sg.ASU
}

// Operators returns the symmetry operators; a nil group has only the identity.
func (sg *SpaceGroup) Operators() []Op {
	if sg == nil || len(sg.Ops) == 0 {
		return []Op{Identity}
	}
	return sg.Ops
}

// IsTrivial reports whether the group contains only the identity.
func (sg *SpaceGroup) IsTrivial() bool {
	return len(sg.Operators()) == 1
}

func (sg *SpaceGroup) String() string {
	if sg == nil {
		return "P 1"
	}
	return sg.Name
}

type tableEntry struct {
	name     string
	triplets []string
	asu      Brick
}

// builtin lists the space groups most common in nucleic-acid crystallography
// with their International Tables asymmetric-unit bricks.
var builtin = []tableEntry{
	{"P 1", []string{"x,y,z"}, FullCell},
	{"P -1", []string{"x,y,z", "-x,-y,-z"}, brick(0, 0, 0, 0.5, 1, 1)},
	{"P 1 21 1", []string{"x,y,z", "-x,y+1/2,-z"}, brick(0, 0, 0, 1, 0.5, 1)},
	{"C 1 2 1", []string{"x,y,z", "-x,y,-z", "x+1/2,y+1/2,z", "-x+1/2,y+1/2,-z"}, brick(0, 0, 0, 0.5, 0.5, 1)},
	{"P 21 21 21", []string{"x,y,z", "-x+1/2,-y,z+1/2", "-x,y+1/2,-z+1/2", "x+1/2,-y+1/2,-z"}, brick(0, 0, 0, 0.5, 0.5, 1)},
	{"P 43 21 2", []string{
		"x,y,z", "-x,-y,z+1/2", "-y+1/2,x+1/2,z+3/4", "y+1/2,-x+1/2,z+1/4",
		"-x+1/2,y+1/2,-z+3/4", "x+1/2,-y+1/2,-z+1/4", "y,x,-z", "-y,-x,-z+1/2",
	}, brick(0, 0, 0, 1, 1, 0.125)},
	{"P 31 2 1", []string{
		"x,y,z", "-y,x-y,z+1/3", "-x+y,-x,z+2/3",
		"y,x,-z", "x-y,-y,-z+2/3", "-x,-x+y,-z+1/3",
	}, brick(0, 0, 0, 1, 1, 1.0/6)},
}

func brick(x0, y0, z0, x1, y1, z1 float64) Brick {
	return Brick{Min: r3.Vec{X: x0, Y: y0, Z: z0}, Max: r3.Vec{X: x1, Y: y1, Z: z1}}
}

// FindSpaceGroup looks up a built-in space group by Hermann–Mauguin name.
// Spacing and case are ignored, so "P212121" matches "P 21 21 21".
func FindSpaceGroup(name string) (*SpaceGroup, error) {
	key := normalizeName(name)
	for _, e := range builtin {
		if normalizeName(e.name) == key {
			asu := e.asu
			return NewSpaceGroup(e.name, e.triplets, &asu)
		}
	}
	return nil, fmt.Errorf("space group %q is not in the built-in table", name)
}

// KnownSpaceGroups returns the names of the built-in space groups.
func KnownSpaceGroups() []string {
	names := make([]string, len(builtin))
	for i, e := range builtin {
		names[i] = e.name
	}
	return names
}

func normalizeName(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}
