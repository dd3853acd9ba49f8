package extract

import (
	"github.com/Faultbox/fieldx/internal/field"
)

// Isosurface extracts the surface (3D) or contour lines (2D) where a
// scalar field equals the isovalue. Corners at or above the isovalue
// count as inside, so fragment normals point towards larger values.
type Isosurface struct {
	*engine
	data     field.Extractor
	isovalue float64
}

// NewIsosurface prepares an isosurface extractor over ds. Vertices carry
// the Color field when set, otherwise the isovalue itself.
func NewIsosurface(ds field.DataSet, data field.Extractor, isovalue float64, opts Options) (*Isosurface, error) {
	e, err := newEngine("isosurface", ds, opts)
	if err != nil {
		return nil, err
	}
	s := &Isosurface{engine: e, data: data}
	e.value = func(c *field.Cell, i int) float64 {
		return data.ScalarAt(c.Vertices[i])
	}
	e.color = func(*field.Cell, int) float64 { return s.isovalue }
	if opts.Color != nil {
		e.color = func(c *field.Cell, i int) float64 {
			return opts.Color.ScalarAt(c.Vertices[i])
		}
	}
	s.SetIsovalue(isovalue)
	return s, nil
}

// Isovalue returns the current isovalue.
func (s *Isosurface) Isovalue() float64 { return s.isovalue }

// SetIsovalue changes the isovalue for the next Start call.
func (s *Isosurface) SetIsovalue(v float64) {
	s.isovalue = v
	s.threshold = v
}

// IsovalueAt returns the scalar at a located point, which is the isovalue
// of the surface passing through it. ok is false outside the domain.
func IsovalueAt(loc field.Locator, data field.Extractor) (v float64, ok bool) {
	if loc == nil || !loc.Valid() {
		return 0, false
	}
	return loc.Scalar(data), true
}
