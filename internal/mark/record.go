package mark

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Record is the serializable form of a mark.
type Record struct {
	Kind    Kind         `json:"kind"`
	ID      ID           `json:"id"`
	Center  [3]float64   `json:"center"`
	Radii   [3]float64   `json:"radii"`
	Angles  [2]float64   `json:"angles"`
	Points  [][3]float64 `json:"points,omitempty"`
	Regions RegionMap    `json:"regions"`
}

// Mark converts the record back into a Mark value.
func (r Record) Mark() (Mark, error) {
	switch r.Kind {
	case KindEllipse:
		return NewEllipse(r.ID, arrayVec(r.Center), r.Radii[0], r.Radii[1], r.Angles[0], r.Regions), nil
	case KindEllipsoid:
		return NewEllipsoid(r.ID, arrayVec(r.Center), arrayVec(r.Radii), r.Angles[0], r.Angles[1], r.Regions), nil
	case KindPointCloud:
		pts := make([]r3.Vec, len(r.Points))
		for i, p := range r.Points {
			pts[i] = arrayVec(p)
		}
		return NewPointCloud(r.ID, pts), nil
	default:
		return nil, fmt.Errorf("unknown mark kind %q", r.Kind)
	}
}

// Records converts marks to records, preserving order.
func Records(marks []Mark) []Record {
	out := make([]Record, len(marks))
	for i, m := range marks {
		out[i] = m.Record()
	}
	return out
}

// FromRecords converts records to marks, preserving order.
func FromRecords(records []Record) ([]Mark, error) {
	out := make([]Mark, len(records))
	for i, r := range records {
		m, err := r.Mark()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

func vecArray(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func arrayVec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}
