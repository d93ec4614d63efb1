// Package geom provides the 2-D point and similarity transform types shared
// by the feature matcher, the estimator and the aligner.
//
// Coordinates are in pixels with the origin at the top-left pixel centre:
// pixel (x, y) covers the square [x-0.5, x+0.5) x [y-0.5, y+0.5).
package geom

import (
	"fmt"
	"math"

	"golang.org/x/image/math/f64"
)

// Point is a sub-pixel position.
type Point struct {
	X, Y float64
}

func (p Point) Add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(k float64) Point { return Point{p.X * k, p.Y * k} }
func (p Point) Dot(q Point) float64   { return p.X*q.X + p.Y*q.Y }
func (p Point) Cross(q Point) float64 { return p.X*q.Y - p.Y*q.X }
func (p Point) Len() float64          { return math.Hypot(p.X, p.Y) }
func (p Point) Dist(q Point) float64  { return math.Hypot(p.X-q.X, p.Y-q.Y) }
func (p Point) Finite() bool          { return finite(p.X) && finite(p.Y) }
func (p Point) String() string        { return fmt.Sprintf("(%.2f,%.2f)", p.X, p.Y) }

// Transform is a similarity map q = Scale * R(Angle) * p + (TX, TY), taking
// points of the old page into the frame of the new page. Angle is in radians;
// with Y pointing down a positive angle turns clockwise on screen.
type Transform struct {
	Angle float64 `json:"angle"`
	Scale float64 `json:"scale"`
	TX    float64 `json:"tx"`
	TY    float64 `json:"ty"`
}

// Identity returns the transform that leaves every point unchanged.
func Identity() Transform {
	return Transform{Scale: 1}
}

// FromCoefficients builds a transform from the linear part [a -b; b a] and the
// translation (tx, ty).
func FromCoefficients(a, b, tx, ty float64) Transform {
	return Transform{
		Angle: math.Atan2(b, a),
		Scale: math.Hypot(a, b),
		TX:    tx,
		TY:    ty,
	}
}

// coefficients returns a = s*cos, b = s*sin.
func (t Transform) coefficients() (a, b float64) {
	s, c := math.Sincos(t.Angle)
	return t.Scale * c, t.Scale * s
}

// Apply maps p from the old frame into the new frame.
func (t Transform) Apply(p Point) Point {
	a, b := t.coefficients()
	return Point{
		X: a*p.X - b*p.Y + t.TX,
		Y: b*p.X + a*p.Y + t.TY,
	}
}

// Inverse returns the transform mapping the new frame back to the old one.
// A zero scale has no inverse; the identity is returned with ok=false.
func (t Transform) Inverse() (Transform, bool) {
	if t.Scale == 0 || !t.Finite() {
		return Identity(), false
	}
	inv := Transform{Angle: -t.Angle, Scale: 1 / t.Scale}
	o := inv.Apply(Point{t.TX, t.TY})
	inv.TX, inv.TY = -o.X, -o.Y
	return inv, true
}

// Compose returns the transform equivalent to applying u first, then t.
func (t Transform) Compose(u Transform) Transform {
	o := t.Apply(Point{u.TX, u.TY})
	return Transform{
		Angle: normalizeAngle(t.Angle + u.Angle),
		Scale: t.Scale * u.Scale,
		TX:    o.X,
		TY:    o.Y,
	}
}

// IsIdentity reports whether t moves no point of a w x h raster by more than
// eps pixels.
func (t Transform) IsIdentity(w, h int, eps float64) bool {
	for _, c := range []Point{{0, 0}, {float64(w - 1), 0}, {0, float64(h - 1)}, {float64(w - 1), float64(h - 1)}} {
		if t.Apply(c).Dist(c) > eps {
			return false
		}
	}
	return true
}

// Finite reports whether every component is a finite number.
func (t Transform) Finite() bool {
	return finite(t.Angle) && finite(t.Scale) && finite(t.TX) && finite(t.TY)
}

// Degrees returns the rotation angle in degrees.
func (t Transform) Degrees() float64 { return t.Angle * 180 / math.Pi }

func (t Transform) String() string {
	return fmt.Sprintf("rot=%.3fdeg scale=%.4f t=(%.2f,%.2f)", t.Degrees(), t.Scale, t.TX, t.TY)
}

// Aff3 returns t as a source-to-destination matrix for
// golang.org/x/image/draw. That package samples at pixel centres (x+0.5), so
// the translation is shifted to keep integer pixel coordinates aligned.
func (t Transform) Aff3() f64.Aff3 {
	a, b := t.coefficients()
	return f64.Aff3{
		a, -b, t.TX + 0.5 - 0.5*(a-b),
		b, a, t.TY + 0.5 - 0.5*(b+a),
	}
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
