package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis-aligned bounding box in voxel coordinates.
// Two-dimensional marks live in the z=0 slice and use a unit-thick box in z.
type Box struct {
	Min r3.Vec `json:"min"`
	Max r3.Vec `json:"max"`
}

// NewBox returns the box spanning the two corners, in any order.
func NewBox(a, b r3.Vec) Box {
	return Box{
		Min: r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// Around returns the box centered at c with the given half extents.
func Around(c, half r3.Vec) Box {
	return Box{Min: r3.Sub(c, half), Max: r3.Add(c, half)}
}

// Extent returns the side lengths of the box.
func (b Box) Extent() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

// Center returns the midpoint of the box.
func (b Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// Volume returns the product of the side lengths.
func (b Box) Volume() float64 {
	e := b.Extent()
	if e.X <= 0 || e.Y <= 0 || e.Z <= 0 {
		return 0
	}
	return e.X * e.Y * e.Z
}

// Empty reports whether any side has zero or negative length.
func (b Box) Empty() bool {
	e := b.Extent()
	return !(e.X > 0 && e.Y > 0 && e.Z > 0)
}

// Intersects reports whether the open interiors of the boxes overlap.
// Boxes that only touch along a face, edge or corner do not intersect.
func (b Box) Intersects(o Box) bool {
	return b.Min.X < o.Max.X && o.Min.X < b.Max.X &&
		b.Min.Y < o.Max.Y && o.Min.Y < b.Max.Y &&
		b.Min.Z < o.Max.Z && o.Min.Z < b.Max.Z
}

// Intersection returns the overlap of the two boxes and whether it is non-empty.
func (b Box) Intersection(o Box) (Box, bool) {
	if !b.Intersects(o) {
		return Box{}, false
	}
	return Box{
		Min: r3.Vec{X: math.Max(b.Min.X, o.Min.X), Y: math.Max(b.Min.Y, o.Min.Y), Z: math.Max(b.Min.Z, o.Min.Z)},
		Max: r3.Vec{X: math.Min(b.Max.X, o.Max.X), Y: math.Min(b.Max.Y, o.Max.Y), Z: math.Min(b.Max.Z, o.Max.Z)},
	}, true
}

// Contains reports whether p lies inside the closed box.
func (b Box) Contains(p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	return Box{
		Min: r3.Vec{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y), Z: math.Min(b.Min.Z, o.Min.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y), Z: math.Max(b.Max.Z, o.Max.Z)},
	}
}

// Equal reports exact equality of both corners.
func (b Box) Equal(o Box) bool {
	return b.Min == o.Min && b.Max == o.Max
}

func (b Box) String() string {
	return fmt.Sprintf("[%g,%g,%g]-[%g,%g,%g]", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}

// Coords returns the box as a flat array min.x, min.y, min.z, max.x, max.y, max.z.
func (b Box) Coords() [6]float64 {
	return [6]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z}
}

// FromCoords is the inverse of Coords.
func FromCoords(c [6]float64) Box {
	return Box{
		Min: r3.Vec{X: c[0], Y: c[1], Z: c[2]},
		Max: r3.Vec{X: c[3], Y: c[4], Z: c[5]},
	}
}
