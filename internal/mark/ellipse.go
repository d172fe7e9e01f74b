package mark

import (
	"math"

	"github.com/cwbudde/markedpoint/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Ellipse is a 2D mark in the z=0 slice.
type Ellipse struct {
	id      ID
	center  r3.Vec
	a, b    float64 // semi-axes
	theta   float64 // rotation of the a-axis from x, radians
	regions RegionMap
}

// NewEllipse builds an ellipse. The z component of center is ignored.
func NewEllipse(id ID, center r3.Vec, a, b, theta float64, regions RegionMap) Ellipse {
	center.Z = 0
	return Ellipse{id: id, center: center, a: a, b: b, theta: theta, regions: regions}
}

func (e Ellipse) ID() ID { return e.id }
func (e Ellipse) Kind() Kind { return KindEllipse }
func (e Ellipse) Center() r3.Vec { return e.center }
func (e Ellipse) Axes() (a, b float64) { return e.a, e.b }
func (e Ellipse) Theta() float64 { return e.theta }
func (e Ellipse) Regions() RegionMap { return e.regions }

func (e Ellipse) Bounds() geom.Box {
	outer := e.regions.outer()
	cos, sin := math.Cos(e.theta), math.Sin(e.theta)
	hx := outer * math.Sqrt(e.a*e.a*cos*cos+e.b*e.b*sin*sin)
	hy := outer * math.Sqrt(e.a*e.a*sin*sin+e.b*e.b*cos*cos)
	return geom.Around(e.center, r3.Vec{X: hx, Y: hy, Z: 0.5})
}

func (e Ellipse) Region(p r3.Vec) Region {
	if math.Abs(p.Z-e.center.Z) >= 0.5 {
		return Exterior
	}
	dx, dy := p.X-e.center.X, p.Y-e.center.Y
	cos, sin := math.Cos(e.theta), math.Sin(e.theta)
	u := (dx*cos + dy*sin) / e.a
	v := (-dx*sin + dy*cos) / e.b
	return e.regions.Classify(math.Sqrt(u*u + v*v))
}

func (e Ellipse) Volume() float64 {
	return math.Pi * e.a * e.b
}

func (e Ellipse) Degenerate() bool {
	return !(e.a > 0 && e.b > 0) || math.IsInf(e.a, 0) || math.IsInf(e.b, 0)
}

func (e Ellipse) WithID(id ID) Mark {
	e.id = id
	return e
}

func (e Ellipse) Translated(d r3.Vec) Mark {
	e.center = r3.Vec{X: e.center.X + d.X, Y: e.center.Y + d.Y}
	return e
}

func (e Ellipse) Scaled(f float64) Mark {
	e.a *= f
	e.b *= f
	return e
}

func (e Ellipse) Record() Record {
	return Record{
		Kind:    KindEllipse,
		ID:      e.id,
		Center:  vecArray(e.center),
		Radii:   [3]float64{e.a, e.b, 0},
		Angles:  [2]float64{e.theta, 0},
		Regions: e.regions,
	}
}
