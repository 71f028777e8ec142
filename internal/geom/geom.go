// Package geom provides the small amount of 3D vector math needed to follow a route.
//
// The coordinate system is Y-up: rotations "about up" turn around the +Y axis.
package geom

import "math"

// Vec3 is a position or direction in world space (metres).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Up is the world up axis.
var Up = Vec3{Y: 1}

// Forward is the default facing used when no direction can be derived.
var Forward = Vec3{Z: 1}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Len returns the magnitude of v.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// Distance returns the straight-line distance between v and o.
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Len() }

// Normalize returns v scaled to unit length, or the zero vector if v has no length.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

// RotateAroundUp rotates v clockwise (seen from above) by deg degrees about the +Y axis.
func (v Vec3) RotateAroundUp(deg float64) Vec3 {
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	return Vec3{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// LerpVec interpolates between a and b; t is clamped to [0,1].
func LerpVec(a, b Vec3, t float64) Vec3 {
	t = clamp01(t)
	return a.Add(b.Sub(a).Scale(t))
}

// Lerp interpolates between a and b; t is clamped to [0,1].
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*clamp01(t)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// CatmullRom evaluates a uniform Catmull-Rom segment between p1 and p2.
func CatmullRom(p0, p1, p2, p3 Vec3, t float64) Vec3 {
	t2 := t * t
	t3 := t2 * t
	return p0.Scale(-0.5*t3 + t2 - 0.5*t).
		Add(p1.Scale(1.5*t3 - 2.5*t2 + 1)).
		Add(p2.Scale(-1.5*t3 + 2*t2 + 0.5*t)).
		Add(p3.Scale(0.5*t3 - 0.5*t2))
}

// Circle returns n points evenly spaced on a circle of radius r in the XZ plane, starting
// at +Z and running clockwise seen from above.
func Circle(n int, r float64) []Vec3 {
	pts := make([]Vec3, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = Vec3{X: r * math.Sin(a), Z: r * math.Cos(a)}
	}
	return pts
}
