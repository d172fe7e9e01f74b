package mark

import (
	"math"

	"github.com/cwbudde/markedpoint/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

type voxel [3]int

func voxelOf(p r3.Vec) voxel {
	return voxel{int(math.Round(p.X)), int(math.Round(p.Y)), int(math.Round(p.Z))}
}

// PointCloud is a mark given by an explicit set of voxels, typically a
// segmented object imported from another tool. Voxels of the set are
// Interior, their 26-neighbours are Shell.
type PointCloud struct {
	id     ID
	points []r3.Vec
	set    map[voxel]struct{}
}

// NewPointCloud builds a point cloud; duplicate voxels are collapsed.
func NewPointCloud(id ID, points []r3.Vec) PointCloud {
	pc := PointCloud{id: id, set: make(map[voxel]struct{}, len(points))}
	for _, p := range points {
		v := voxelOf(p)
		if _, ok := pc.set[v]; ok {
			continue
		}
		pc.set[v] = struct{}{}
		pc.points = append(pc.points, r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
	}
	return pc
}

func (pc PointCloud) ID() ID { return pc.id }
func (pc PointCloud) Kind() Kind { return KindPointCloud }

// Points returns a copy of the voxel centers.
func (pc PointCloud) Points() []r3.Vec {
	return append([]r3.Vec(nil), pc.points...)
}

func (pc PointCloud) Center() r3.Vec {
	if len(pc.points) == 0 {
		return r3.Vec{}
	}
	var c r3.Vec
	for _, p := range pc.points {
		c = r3.Add(c, p)
	}
	return r3.Scale(1/float64(len(pc.points)), c)
}

func (pc PointCloud) Bounds() geom.Box {
	if len(pc.points) == 0 {
		return geom.Box{}
	}
	b := geom.Around(pc.points[0], r3.Vec{X: 1.5, Y: 1.5, Z: 1.5})
	for _, p := range pc.points[1:] {
		b = b.Union(geom.Around(p, r3.Vec{X: 1.5, Y: 1.5, Z: 1.5}))
	}
	return b
}

func (pc PointCloud) Region(p r3.Vec) Region {
	v := voxelOf(p)
	if _, ok := pc.set[v]; ok {
		return Interior
	}
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if _, ok := pc.set[voxel{v[0] + dx, v[1] + dy, v[2] + dz}]; ok {
					return Shell
				}
			}
		}
	}
	return Exterior
}

func (pc PointCloud) Volume() float64 {
	return float64(len(pc.points))
}

func (pc PointCloud) Degenerate() bool {
	return len(pc.points) == 0
}

func (pc PointCloud) WithID(id ID) Mark {
	pc.id = id
	return pc
}

func (pc PointCloud) Translated(d r3.Vec) Mark {
	moved := make([]r3.Vec, len(pc.points))
	for i, p := range pc.points {
		moved[i] = r3.Add(p, d)
	}
	return NewPointCloud(pc.id, moved)
}

// Scaled scales voxel positions about the centroid. Shrinking may merge
// voxels, so the result can have fewer points.
func (pc PointCloud) Scaled(f float64) Mark {
	c := pc.Center()
	scaled := make([]r3.Vec, len(pc.points))
	for i, p := range pc.points {
		scaled[i] = r3.Add(c, r3.Scale(f, r3.Sub(p, c)))
	}
	return NewPointCloud(pc.id, scaled)
}

func (pc PointCloud) Record() Record {
	pts := make([][3]float64, len(pc.points))
	for i, p := range pc.points {
		pts[i] = vecArray(p)
	}
	return Record{
		Kind:   KindPointCloud,
		ID:     pc.id,
		Center: vecArray(pc.Center()),
		Points: pts,
	}
}
