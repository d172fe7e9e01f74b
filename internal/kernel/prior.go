package kernel

import (
	"fmt"
	"math"

	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/rng"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"
)

// Prior is the distribution new marks are drawn from: centers uniform in
// Domain, radii uniform in [MinRadius, MaxRadius] per axis, orientations
// uniform in [0, π).
type Prior struct {
	Kind      mark.Kind      `json:"kind"`
	Domain    geom.Box       `json:"domain"`
	MinRadius float64        `json:"minRadius"`
	MaxRadius float64        `json:"maxRadius"`
	Regions   mark.RegionMap `json:"regions"`
}

// Validate checks that the prior can produce non-degenerate marks.
func (p Prior) Validate() error {
	if p.Kind != mark.KindEllipse && p.Kind != mark.KindEllipsoid {
		return fmt.Errorf("prior kind %q is not sampleable", p.Kind)
	}
	if p.Domain.Empty() {
		return fmt.Errorf("prior domain %s is empty", p.Domain)
	}
	if !(p.MinRadius > 0) || p.MaxRadius < p.MinRadius {
		return fmt.Errorf("prior radius range [%g, %g] is invalid", p.MinRadius, p.MaxRadius)
	}
	return p.Regions.Validate()
}

// LogVolume returns log |D|, the log measure of the domain.
func (p Prior) LogVolume() float64 {
	return math.Log(p.Domain.Volume())
}

// Sample draws a new mark with a zero id.
func (p Prior) Sample(r rng.Source) mark.Mark {
	c := r3.Vec{
		X: distuv.Uniform{Min: p.Domain.Min.X, Max: p.Domain.Max.X, Src: r}.Rand(),
		Y: distuv.Uniform{Min: p.Domain.Min.Y, Max: p.Domain.Max.Y, Src: r}.Rand(),
	}
	if p.Kind == mark.KindEllipsoid {
		c.Z = distuv.Uniform{Min: p.Domain.Min.Z, Max: p.Domain.Max.Z, Src: r}.Rand()
	}
	return p.Shape(c, r)
}

// Shape draws the shape parameters of a mark centered at c.
func (p Prior) Shape(c r3.Vec, r rng.Source) mark.Mark {
	radius := distuv.Uniform{Min: p.MinRadius, Max: p.MaxRadius, Src: r}
	angle := distuv.Uniform{Min: 0, Max: math.Pi, Src: r}

	if p.Kind == mark.KindEllipsoid {
		radii := r3.Vec{X: radius.Rand(), Y: radius.Rand(), Z: radius.Rand()}
		return mark.NewEllipsoid(0, c, radii, angle.Rand(), angle.Rand(), p.Regions)
	}
	return mark.NewEllipse(0, c, radius.Rand(), radius.Rand(), angle.Rand(), p.Regions)
}

// InDomain reports whether the center of m lies in the domain.
func (p Prior) InDomain(m mark.Mark) bool {
	return p.Domain.Contains(m.Center())
}
