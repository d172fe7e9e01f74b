// Package mark defines the geometric primitives evolved by the optimizer.
//
// A Mark is an immutable value: every structural change (move, dilate,
// re-identification) returns a new Mark and never mutates one that may be
// shared between the current configuration and a candidate.
package mark

import (
	"fmt"

	"github.com/cwbudde/markedpoint/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ID identifies a mark for its whole lifetime inside a configuration.
type ID uint64

// Kind names a mark variant.
type Kind string

const (
	KindEllipse    Kind = "ellipse"
	KindEllipsoid  Kind = "ellipsoid"
	KindPointCloud Kind = "pointcloud"
)

// Mark is a candidate object.
type Mark interface {
	ID() ID
	Kind() Kind
	Center() r3.Vec
	// Bounds covers every point the mark classifies as anything but Exterior.
	Bounds() geom.Box
	Region(p r3.Vec) Region
	// Volume is the area (2D) or volume (3D) of the mark's interior.
	Volume() float64
	// Degenerate reports zero or undefined extent.
	Degenerate() bool
	WithID(id ID) Mark
	Translated(d r3.Vec) Mark
	Scaled(f float64) Mark
	Record() Record
}

// Region classifies a point relative to a mark.
type Region uint8

const (
	Exterior Region = iota
	Shell
	Interior
	Core
)

func (r Region) String() string {
	switch r {
	case Core:
		return "core"
	case Interior:
		return "interior"
	case Shell:
		return "shell"
	default:
		return "exterior"
	}
}

// Inside reports whether the region is part of the mark body (interior or core).
func (r Region) Inside() bool {
	return r == Interior || r == Core
}

// RegionMap controls how points around a mark are classified.
// Distances are relative to the mark's boundary: a point at normalized
// radius rho is Core below CoreRatio, Interior up to 1, Shell up to
// 1+ShellRatio and Exterior beyond.
type RegionMap struct {
	CoreRatio  float64 `json:"coreRatio" yaml:"core_ratio"`
	ShellRatio float64 `json:"shellRatio" yaml:"shell_ratio"`
}

// DefaultRegionMap returns the region map used when none is configured.
func DefaultRegionMap() RegionMap {
	return RegionMap{CoreRatio: 0.5, ShellRatio: 0.3}
}

// Validate checks the ratios are usable.
func (rm RegionMap) Validate() error {
	if rm.CoreRatio < 0 || rm.CoreRatio >= 1 {
		return fmt.Errorf("core ratio must be in [0,1), got %g", rm.CoreRatio)
	}
	if rm.ShellRatio < 0 {
		return fmt.Errorf("shell ratio must be non-negative, got %g", rm.ShellRatio)
	}
	return nil
}

// Classify maps a normalized radius to a region.
func (rm RegionMap) Classify(rho float64) Region {
	switch {
	case rho <= rm.CoreRatio:
		return Core
	case rho <= 1:
		return Interior
	case rho <= 1+rm.ShellRatio:
		return Shell
	default:
		return Exterior
	}
}

// outer is the normalized radius of the shell boundary.
func (rm RegionMap) outer() float64 {
	return 1 + rm.ShellRatio
}
