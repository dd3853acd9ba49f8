// Package grid provides concrete data sets for the extraction engine:
// Cartesian structured grids and unstructured simplex meshes.
package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/pkg/casetable"
)

// ErrInvalidGrid is returned for malformed grid definitions.
var ErrInvalidGrid = errors.New("invalid grid")

// Structured is a Cartesian grid of quadrilateral (2D) or hexahedral (3D)
// cells. Vertex (i, j, k) sits at Origin + (i, j, k) * Spacing.
type Structured struct {
	dim     int
	size    [3]int // vertices per axis; size[2] is 1 for planar grids
	origin  r3.Vec
	spacing r3.Vec
}

// NewStructured creates a grid with the given vertex counts. Pass two
// counts for a planar grid and three for a solid one; every count must be
// at least 2.
func NewStructured(origin, spacing r3.Vec, counts ...int) (*Structured, error) {
	if len(counts) != 2 && len(counts) != 3 {
		return nil, fmt.Errorf("%w: need 2 or 3 vertex counts, got %d", ErrInvalidGrid, len(counts))
	}
	g := &Structured{
		dim:     len(counts),
		size:    [3]int{1, 1, 1},
		origin:  origin,
		spacing: spacing,
	}
	sp := [3]float64{spacing.X, spacing.Y, spacing.Z}
	for a, n := range counts {
		if n < 2 {
			return nil, fmt.Errorf("%w: axis %d has %d vertices", ErrInvalidGrid, a, n)
		}
		if sp[a] <= 0 {
			return nil, fmt.Errorf("%w: axis %d spacing %g", ErrInvalidGrid, a, sp[a])
		}
		g.size[a] = n
	}
	return g, nil
}

// NewBox creates a grid spanning [min, max] with the given vertex counts.
func NewBox(min, max r3.Vec, counts ...int) (*Structured, error) {
	ext := r3.Sub(max, min)
	sp := [3]float64{1, 1, 1}
	e := [3]float64{ext.X, ext.Y, ext.Z}
	for a, n := range counts {
		if a < 3 && n > 1 {
			sp[a] = e[a] / float64(n-1)
		}
	}
	return NewStructured(min, r3.Vec{X: sp[0], Y: sp[1], Z: sp[2]}, counts...)
}

// Topology returns Quadrilateral or Hexahedron.
func (g *Structured) Topology() casetable.Topology {
	if g.dim == 2 {
		return casetable.Quadrilateral
	}
	return casetable.Hexahedron
}

// Dimension returns 2 or 3.
func (g *Structured) Dimension() int { return g.dim }

// Size returns the vertex counts per axis.
func (g *Structured) Size() [3]int { return g.size }

// cellSize returns the cell counts per axis.
func (g *Structured) cellSize() [3]int {
	c := [3]int{1, 1, 1}
	for a := 0; a < g.dim; a++ {
		c[a] = g.size[a] - 1
	}
	return c
}

// NumCells returns the total cell count.
func (g *Structured) NumCells() int {
	c := g.cellSize()
	return c[0] * c[1] * c[2]
}

// NumVertices returns the total vertex count.
func (g *Structured) NumVertices() int {
	return g.size[0] * g.size[1] * g.size[2]
}

// VertexIndex returns the linear index of vertex (i, j, k).
func (g *Structured) VertexIndex(i, j, k int) int {
	return i + g.size[0]*(j+g.size[1]*k)
}

// CellIndex returns the id of the cell whose lowest corner is (i, j, k).
func (g *Structured) CellIndex(i, j, k int) field.CellID {
	c := g.cellSize()
	return field.CellID(i + c[0]*(j+c[1]*k))
}

// cellCoords is the inverse of CellIndex.
func (g *Structured) cellCoords(id field.CellID) (int, int, int) {
	c := g.cellSize()
	n := int(id)
	i := n % c[0]
	n /= c[0]
	return i, n % c[1], n / c[1]
}

// VertexPosition returns the position of a vertex by linear index.
func (g *Structured) VertexPosition(v int) r3.Vec {
	i := v % g.size[0]
	v /= g.size[0]
	j := v % g.size[1]
	k := v / g.size[1]
	return g.position(i, j, k)
}

func (g *Structured) position(i, j, k int) r3.Vec {
	return r3.Vec{
		X: g.origin.X + float64(i)*g.spacing.X,
		Y: g.origin.Y + float64(j)*g.spacing.Y,
		Z: g.origin.Z + float64(k)*g.spacing.Z,
	}
}

// Cell fills c with cell id's corners in bit order (x + 2y + 4z).
func (g *Structured) Cell(id field.CellID, c *field.Cell) bool {
	if id < 0 || int(id) >= g.NumCells() {
		return false
	}
	i, j, k := g.cellCoords(id)
	c.ID = id
	for v := 0; v < 1<<g.dim; v++ {
		vi, vj, vk := i+v&1, j+(v>>1)&1, k+(v>>2)&1
		c.Vertices[v] = g.VertexIndex(vi, vj, vk)
		c.Positions[v] = g.position(vi, vj, vk)
	}
	return true
}

// Neighbor returns the cell across face (-x, +x, -y, +y, -z, +z order).
func (g *Structured) Neighbor(id field.CellID, face int) field.CellID {
	axis, dir := face/2, face%2*2-1
	if axis >= g.dim {
		return field.NoCell
	}
	ijk := [3]int{}
	ijk[0], ijk[1], ijk[2] = g.cellCoords(id)
	ijk[axis] += dir
	if ijk[axis] < 0 || ijk[axis] >= g.cellSize()[axis] {
		return field.NoCell
	}
	return g.CellIndex(ijk[0], ijk[1], ijk[2])
}

// Bounds returns the grid's corner positions.
func (g *Structured) Bounds() (min, max r3.Vec) {
	return g.origin, g.position(g.size[0]-1, g.size[1]-1, g.size[2]-1)
}

// NewLocator returns an invalid locator bound to g.
func (g *Structured) NewLocator() field.Locator {
	return &structuredLocator{grid: g, cell: field.NoCell}
}

// structuredLocator stores the enclosing cell and local coordinates.
type structuredLocator struct {
	grid  *Structured
	cell  field.CellID
	ijk   [3]int
	local [3]float64
	pos   r3.Vec
}

// Locate computes the enclosing cell directly from the point; a structured
// grid needs no walk, so the hint only matters to unstructured locators.
func (l *structuredLocator) Locate(p r3.Vec, _ bool) bool {
	g := l.grid
	pt := [3]float64{p.X - g.origin.X, p.Y - g.origin.Y, p.Z - g.origin.Z}
	sp := [3]float64{g.spacing.X, g.spacing.Y, g.spacing.Z}
	cells := g.cellSize()
	for a := 0; a < g.dim; a++ {
		f := pt[a] / sp[a]
		if math.IsNaN(f) || f < 0 || f > float64(cells[a]) {
			l.cell = field.NoCell
			return false
		}
		c := int(math.Floor(f))
		if c == cells[a] {
			c--
		}
		l.ijk[a] = c
		l.local[a] = f - float64(c)
	}
	l.cell = g.CellIndex(l.ijk[0], l.ijk[1], l.ijk[2])
	l.pos = p
	return true
}

func (l *structuredLocator) Valid() bool { return l.cell != field.NoCell }

func (l *structuredLocator) Cell() field.CellID { return l.cell }

func (l *structuredLocator) Position() r3.Vec { return l.pos }

// weights returns the multilinear corner weights in bit order.
func (l *structuredLocator) weights(fn func(vertex int, w float64)) {
	g := l.grid
	for v := 0; v < 1<<g.dim; v++ {
		w := 1.0
		for a := 0; a < g.dim; a++ {
			if (v>>a)&1 == 1 {
				w *= l.local[a]
			} else {
				w *= 1 - l.local[a]
			}
		}
		fn(g.VertexIndex(l.ijk[0]+v&1, l.ijk[1]+(v>>1)&1, l.ijk[2]+(v>>2)&1), w)
	}
}

// Scalar interpolates ex at the located point.
func (l *structuredLocator) Scalar(ex field.Extractor) float64 {
	var s float64
	l.weights(func(vertex int, w float64) {
		s += w * ex.ScalarAt(vertex)
	})
	return s
}

// Vector interpolates ex at the located point.
func (l *structuredLocator) Vector(ex field.Extractor) r3.Vec {
	var s r3.Vec
	l.weights(func(vertex int, w float64) {
		s = r3.Add(s, r3.Scale(w, ex.VectorAt(vertex)))
	})
	return s
}

func (l *structuredLocator) Clone() field.Locator {
	c := *l
	return &c
}
