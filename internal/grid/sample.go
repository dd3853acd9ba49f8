package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
)

// ErrUnknownField is returned for unregistered analytic field names.
var ErrUnknownField = errors.New("unknown analytic field")

// ScalarFunc is an analytic scalar field.
type ScalarFunc func(p r3.Vec) float64

// VectorFunc is an analytic vector field.
type VectorFunc func(p r3.Vec) r3.Vec

// Sampled holds per-vertex field values of one data set.
type Sampled struct {
	Scalars []float64
	Vectors []r3.Vec
}

// ScalarAt returns the scalar at a vertex, or 0 without scalar samples.
func (s *Sampled) ScalarAt(v int) float64 {
	if s.Scalars == nil {
		return 0
	}
	return s.Scalars[v]
}

// VectorAt returns the vector at a vertex, or zero without vector samples.
func (s *Sampled) VectorAt(v int) r3.Vec {
	if s.Vectors == nil {
		return r3.Vec{}
	}
	return s.Vectors[v]
}

// Sample evaluates the analytic fields at every vertex of ds. Either
// function may be nil.
func Sample(ds field.DataSet, scalar ScalarFunc, vector VectorFunc) *Sampled {
	s := &Sampled{}
	n := ds.NumVertices()
	if scalar != nil {
		s.Scalars = make([]float64, n)
	}
	if vector != nil {
		s.Vectors = make([]r3.Vec, n)
	}
	for v := 0; v < n; v++ {
		p := ds.VertexPosition(v)
		if scalar != nil {
			s.Scalars[v] = scalar(p)
		}
		if vector != nil {
			s.Vectors[v] = vector(p)
		}
	}
	return s
}

var scalarFields = map[string]ScalarFunc{
	"x": func(p r3.Vec) float64 { return p.X },
	"y": func(p r3.Vec) float64 { return p.Y },
	"z": func(p r3.Vec) float64 { return p.Z },
	// distance from the origin
	"sphere": func(p r3.Vec) float64 { return r3.Norm(p) },
	// distance from a ring of radius 0.6 in the xy plane
	"torus": func(p r3.Vec) float64 {
		q := math.Hypot(p.X, p.Y) - 0.6
		return math.Hypot(q, p.Z)
	},
	"gyroid": func(p r3.Vec) float64 {
		const k = 2 * math.Pi
		return math.Sin(k*p.X)*math.Cos(k*p.Y) +
			math.Sin(k*p.Y)*math.Cos(k*p.Z) +
			math.Sin(k*p.Z)*math.Cos(k*p.X)
	},
	"saddle": func(p r3.Vec) float64 { return p.X*p.X - p.Y*p.Y },
}

var vectorFields = map[string]VectorFunc{
	"uniform": func(r3.Vec) r3.Vec { return r3.Vec{X: 1} },
	// rigid rotation about the z axis
	"vortex": func(p r3.Vec) r3.Vec { return r3.Vec{X: -p.Y, Y: p.X} },
	"saddle": func(p r3.Vec) r3.Vec { return r3.Vec{X: p.X, Y: -p.Y} },
	// Arnold-Beltrami-Childress flow
	"abc": func(p r3.Vec) r3.Vec {
		const a, b, c = 1.0, math.Sqrt2 / 2, 0.5
		return r3.Vec{
			X: a*math.Sin(p.Z) + c*math.Cos(p.Y),
			Y: b*math.Sin(p.X) + a*math.Cos(p.Z),
			Z: c*math.Sin(p.Y) + b*math.Cos(p.X),
		}
	},
}

// ScalarField looks up a registered analytic scalar field.
func ScalarField(name string) (ScalarFunc, error) {
	f, ok := scalarFields[name]
	if !ok {
		return nil, fmt.Errorf("%w: scalar %q", ErrUnknownField, name)
	}
	return f, nil
}

// VectorField looks up a registered analytic vector field.
func VectorField(name string) (VectorFunc, error) {
	f, ok := vectorFields[name]
	if !ok {
		return nil, fmt.Errorf("%w: vector %q", ErrUnknownField, name)
	}
	return f, nil
}

// ScalarFieldNames lists the registered scalar fields in sorted order.
func ScalarFieldNames() []string { return sortedKeys(scalarFields) }

// VectorFieldNames lists the registered vector fields in sorted order.
func VectorFieldNames() []string { return sortedKeys(vectorFields) }

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
