package mark

import (
	"math"

	"github.com/cwbudde/markedpoint/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	axisX = r3.Vec{X: 1}
	axisY = r3.Vec{Y: 1}
	axisZ = r3.Vec{Z: 1}
)

// Ellipsoid is a 3D mark. Its local axes are rotated first by pitch about
// y and then by yaw about z.
type Ellipsoid struct {
	id         ID
	center     r3.Vec
	radii      r3.Vec
	yaw, pitch float64
	regions    RegionMap
}

// NewEllipsoid builds an ellipsoid.
func NewEllipsoid(id ID, center, radii r3.Vec, yaw, pitch float64, regions RegionMap) Ellipsoid {
	return Ellipsoid{id: id, center: center, radii: radii, yaw: yaw, pitch: pitch, regions: regions}
}

func (e Ellipsoid) ID() ID { return e.id }
func (e Ellipsoid) Kind() Kind { return KindEllipsoid }
func (e Ellipsoid) Center() r3.Vec { return e.center }
func (e Ellipsoid) Radii() r3.Vec { return e.radii }
func (e Ellipsoid) Regions() RegionMap { return e.regions }

func (e Ellipsoid) toWorld(v r3.Vec) r3.Vec {
	v = r3.NewRotation(e.pitch, axisY).Rotate(v)
	return r3.NewRotation(e.yaw, axisZ).Rotate(v)
}

func (e Ellipsoid) toLocal(v r3.Vec) r3.Vec {
	v = r3.NewRotation(-e.yaw, axisZ).Rotate(v)
	return r3.NewRotation(-e.pitch, axisY).Rotate(v)
}

func (e Ellipsoid) Bounds() geom.Box {
	u := [3]r3.Vec{
		r3.Scale(e.radii.X, e.toWorld(axisX)),
		r3.Scale(e.radii.Y, e.toWorld(axisY)),
		r3.Scale(e.radii.Z, e.toWorld(axisZ)),
	}
	var half r3.Vec
	for _, a := range u {
		half.X += a.X * a.X
		half.Y += a.Y * a.Y
		half.Z += a.Z * a.Z
	}
	outer := e.regions.outer()
	half = r3.Vec{X: outer * math.Sqrt(half.X), Y: outer * math.Sqrt(half.Y), Z: outer * math.Sqrt(half.Z)}
	return geom.Around(e.center, half)
}

func (e Ellipsoid) Region(p r3.Vec) Region {
	l := e.toLocal(r3.Sub(p, e.center))
	x, y, z := l.X/e.radii.X, l.Y/e.radii.Y, l.Z/e.radii.Z
	return e.regions.Classify(math.Sqrt(x*x + y*y + z*z))
}

func (e Ellipsoid) Volume() float64 {
	return 4.0 / 3.0 * math.Pi * e.radii.X * e.radii.Y * e.radii.Z
}

func (e Ellipsoid) Degenerate() bool {
	r := e.radii
	return !(r.X > 0 && r.Y > 0 && r.Z > 0) || math.IsInf(r.X+r.Y+r.Z, 0)
}

func (e Ellipsoid) WithID(id ID) Mark {
	e.id = id
	return e
}

func (e Ellipsoid) Translated(d r3.Vec) Mark {
	e.center = r3.Add(e.center, d)
	return e
}

func (e Ellipsoid) Scaled(f float64) Mark {
	e.radii = r3.Scale(f, e.radii)
	return e
}

func (e Ellipsoid) Record() Record {
	return Record{
		Kind:    KindEllipsoid,
		ID:      e.id,
		Center:  vecArray(e.center),
		Radii:   vecArray(e.radii),
		Angles:  [2]float64{e.yaw, e.pitch},
		Regions: e.regions,
	}
}
