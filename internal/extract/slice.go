package extract

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
)

// Plane is the set of points p with Normal·p = Offset.
type Plane struct {
	Normal r3.Vec
	Offset float64
}

// PlaneThrough returns the plane through p with the given normal. The
// normal is normalized; a zero normal yields the plane x = p.X.
func PlaneThrough(p, normal r3.Vec) Plane {
	n := r3.Norm(normal)
	if n == 0 {
		normal, n = r3.Vec{X: 1}, 1
	}
	normal = r3.Scale(1/n, normal)
	return Plane{Normal: normal, Offset: r3.Dot(normal, p)}
}

// Distance returns the signed distance of p, positive on the normal side.
func (pl Plane) Distance(p r3.Vec) float64 {
	return r3.Dot(pl.Normal, p) - pl.Offset
}

// Slice cuts the data set with a plane. In 3D the result is a polygon
// soup of triangles, in 2D a set of segments. Vertices carry the scalar
// field interpolated along the cut edge.
type Slice struct {
	*engine
	plane Plane
}

// NewSlice prepares a slice extractor. data may be nil when only the
// cut geometry is wanted; opts.Color takes precedence over data.
func NewSlice(ds field.DataSet, data field.Extractor, plane Plane, opts Options) (*Slice, error) {
	e, err := newEngine("slice", ds, opts)
	if err != nil {
		return nil, err
	}
	s := &Slice{engine: e, plane: plane}
	e.value = func(c *field.Cell, i int) float64 {
		return s.plane.Distance(c.Positions[i])
	}
	color := opts.Color
	if color == nil {
		color = data
	}
	e.color = func(*field.Cell, int) float64 { return 0 }
	if color != nil {
		e.color = func(c *field.Cell, i int) float64 {
			return color.ScalarAt(c.Vertices[i])
		}
	}
	return s, nil
}

// Plane returns the cutting plane.
func (s *Slice) Plane() Plane { return s.plane }

// SetPlane changes the plane for the next Start call.
func (s *Slice) SetPlane(p Plane) { s.plane = p }
