package grid

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/pkg/casetable"
)

// barycentric tolerance for points on shared faces.
const baryEps = 1e-10

// Simplex is an unstructured mesh of triangles (2D) or tetrahedra (3D).
// Face i of a cell is the one opposite its vertex i.
type Simplex struct {
	topo      casetable.Topology
	positions []r3.Vec
	cells     [][]int
	neighbors [][]field.CellID
	min, max  r3.Vec
}

// NewSimplex builds a mesh and its face adjacency. Cells are reoriented
// in place to positive orientation.
func NewSimplex(topo casetable.Topology, positions []r3.Vec, cells [][]int) (*Simplex, error) {
	if topo != casetable.Triangle && topo != casetable.Tetrahedron {
		return nil, fmt.Errorf("%w: simplex mesh of %s", casetable.ErrUnsupportedTopology, topo)
	}
	if len(positions) == 0 || len(cells) == 0 {
		return nil, fmt.Errorf("%w: empty mesh", ErrInvalidGrid)
	}
	nv := topo.NumVertices()
	m := &Simplex{
		topo:      topo,
		positions: positions,
		cells:     cells,
		neighbors: make([][]field.CellID, len(cells)),
	}

	for ci, c := range cells {
		if len(c) != nv {
			return nil, fmt.Errorf("%w: cell %d has %d vertices", ErrInvalidGrid, ci, len(c))
		}
		for _, v := range c {
			if v < 0 || v >= len(positions) {
				return nil, fmt.Errorf("%w: cell %d references vertex %d", ErrInvalidGrid, ci, v)
			}
		}
		if m.orientation(c) < 0 {
			c[nv-2], c[nv-1] = c[nv-1], c[nv-2]
		}
	}

	type owner struct {
		cell field.CellID
		face int
	}
	faces := make(map[[3]int]owner, len(cells)*nv/2)
	for ci, c := range cells {
		m.neighbors[ci] = make([]field.CellID, nv)
		for f := 0; f < nv; f++ {
			m.neighbors[ci][f] = field.NoCell
			key := faceKey(c, f)
			if o, ok := faces[key]; ok {
				m.neighbors[ci][f] = o.cell
				m.neighbors[o.cell][o.face] = field.CellID(ci)
				delete(faces, key)
				continue
			}
			faces[key] = owner{cell: field.CellID(ci), face: f}
		}
	}

	m.min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	m.max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, p := range positions {
		m.min = r3.Vec{X: math.Min(m.min.X, p.X), Y: math.Min(m.min.Y, p.Y), Z: math.Min(m.min.Z, p.Z)}
		m.max = r3.Vec{X: math.Max(m.max.X, p.X), Y: math.Max(m.max.Y, p.Y), Z: math.Max(m.max.Z, p.Z)}
	}
	return m, nil
}

// faceKey is the sorted vertex list of the face opposite vertex f; unused
// slots are -1.
func faceKey(c []int, f int) [3]int {
	key := [3]int{-1, -1, -1}
	n := 0
	for i, v := range c {
		if i != f {
			key[n] = v
			n++
		}
	}
	s := key[:n]
	sort.Ints(s)
	return key
}

// orientation returns the signed area (2D) or six times the signed volume
// (3D) of cell c.
func (m *Simplex) orientation(c []int) float64 {
	p0 := m.positions[c[0]]
	e1 := r3.Sub(m.positions[c[1]], p0)
	e2 := r3.Sub(m.positions[c[2]], p0)
	if m.topo == casetable.Triangle {
		return e1.X*e2.Y - e1.Y*e2.X
	}
	e3 := r3.Sub(m.positions[c[3]], p0)
	return r3.Dot(e1, r3.Cross(e2, e3))
}

// Subdivide splits every cell of a structured grid into simplices: two
// triangles per quadrilateral, six tetrahedra per hexahedron around the
// main diagonal. Shared faces split identically, so the result conforms.
func Subdivide(g *Structured) (*Simplex, error) {
	positions := make([]r3.Vec, g.NumVertices())
	for v := range positions {
		positions[v] = g.VertexPosition(v)
	}

	var pattern [][]int
	topo := casetable.Triangle
	if g.Dimension() == 2 {
		pattern = [][]int{{0, 1, 3}, {0, 3, 2}}
	} else {
		topo = casetable.Tetrahedron
		for _, axes := range [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}} {
			a := 1 << axes[0]
			b := a | 1<<axes[1]
			pattern = append(pattern, []int{0, a, b, 7})
		}
	}

	cell := field.NewCell(g.Topology())
	cells := make([][]int, 0, g.NumCells()*len(pattern))
	for id := 0; id < g.NumCells(); id++ {
		g.Cell(field.CellID(id), cell)
		for _, p := range pattern {
			c := make([]int, len(p))
			for i, local := range p {
				c[i] = cell.Vertices[local]
			}
			cells = append(cells, c)
		}
	}
	return NewSimplex(topo, positions, cells)
}

// Topology returns Triangle or Tetrahedron.
func (m *Simplex) Topology() casetable.Topology { return m.topo }

// NumCells returns the cell count.
func (m *Simplex) NumCells() int { return len(m.cells) }

// NumVertices returns the vertex count.
func (m *Simplex) NumVertices() int { return len(m.positions) }

// VertexPosition returns a vertex position.
func (m *Simplex) VertexPosition(v int) r3.Vec { return m.positions[v] }

// Cell fills c with cell id's corners.
func (m *Simplex) Cell(id field.CellID, c *field.Cell) bool {
	if id < 0 || int(id) >= len(m.cells) {
		return false
	}
	c.ID = id
	for i, v := range m.cells[id] {
		c.Vertices[i] = v
		c.Positions[i] = m.positions[v]
	}
	return true
}

// Neighbor returns the cell across the face opposite vertex face.
func (m *Simplex) Neighbor(id field.CellID, face int) field.CellID {
	return m.neighbors[id][face]
}

// Bounds returns the bounding box of all vertices.
func (m *Simplex) Bounds() (min, max r3.Vec) { return m.min, m.max }

// NewLocator returns an invalid locator bound to m.
func (m *Simplex) NewLocator() field.Locator {
	return &simplexLocator{mesh: m, cell: field.NoCell}
}

// barycentric returns the coordinates of p in cell id.
func (m *Simplex) barycentric(id field.CellID, p r3.Vec) [4]float64 {
	var b [4]float64
	c := m.cells[id]
	p0 := m.positions[c[0]]
	d := r3.Sub(p, p0)
	e1 := r3.Sub(m.positions[c[1]], p0)
	e2 := r3.Sub(m.positions[c[2]], p0)

	if m.topo == casetable.Triangle {
		det := e1.X*e2.Y - e1.Y*e2.X
		b[1] = (d.X*e2.Y - d.Y*e2.X) / det
		b[2] = (e1.X*d.Y - e1.Y*d.X) / det
		b[0] = 1 - b[1] - b[2]
		return b
	}

	e3 := r3.Sub(m.positions[c[3]], p0)
	det := r3.Dot(e1, r3.Cross(e2, e3))
	b[1] = r3.Dot(d, r3.Cross(e2, e3)) / det
	b[2] = r3.Dot(e1, r3.Cross(d, e3)) / det
	b[3] = r3.Dot(e1, r3.Cross(e2, d)) / det
	b[0] = 1 - b[1] - b[2] - b[3]
	return b
}

// simplexLocator walks from cell to cell towards the target point.
type simplexLocator struct {
	mesh *Simplex
	cell field.CellID
	bary [4]float64
	pos  r3.Vec
}

// Locate walks from the hint cell across the face with the most negative
// barycentric coordinate. Without a usable hint, or when a walk runs into
// the boundary of a possibly non-convex mesh, it scans every cell.
func (l *simplexLocator) Locate(p r3.Vec, useHint bool) bool {
	m := l.mesh
	if useHint && l.cell != field.NoCell && l.walk(p) {
		return true
	}
	lo, hi := m.Bounds()
	if p.X < lo.X || p.Y < lo.Y || p.X > hi.X || p.Y > hi.Y ||
		(m.topo == casetable.Tetrahedron && (p.Z < lo.Z || p.Z > hi.Z)) {
		l.cell = field.NoCell
		return false
	}
	for id := range m.cells {
		b := m.barycentric(field.CellID(id), p)
		if inside(b, m.topo.NumVertices()) {
			l.cell, l.bary, l.pos = field.CellID(id), b, p
			return true
		}
	}
	l.cell = field.NoCell
	return false
}

func (l *simplexLocator) walk(p r3.Vec) bool {
	m := l.mesh
	nv := m.topo.NumVertices()
	cur := l.cell
	for steps := 0; steps < len(m.cells); steps++ {
		b := m.barycentric(cur, p)
		worst := 0
		for i := 1; i < nv; i++ {
			if b[i] < b[worst] {
				worst = i
			}
		}
		if b[worst] >= -baryEps {
			l.cell, l.bary, l.pos = cur, b, p
			return true
		}
		next := m.neighbors[cur][worst]
		if next == field.NoCell {
			return false
		}
		cur = next
	}
	return false
}

func inside(b [4]float64, n int) bool {
	for i := 0; i < n; i++ {
		if b[i] < -baryEps {
			return false
		}
	}
	return true
}

func (l *simplexLocator) Valid() bool { return l.cell != field.NoCell }

func (l *simplexLocator) Cell() field.CellID { return l.cell }

func (l *simplexLocator) Position() r3.Vec { return l.pos }

// Scalar interpolates ex linearly inside the current cell.
func (l *simplexLocator) Scalar(ex field.Extractor) float64 {
	var s float64
	for i, v := range l.mesh.cells[l.cell] {
		s += l.bary[i] * ex.ScalarAt(v)
	}
	return s
}

// Vector interpolates ex linearly inside the current cell.
func (l *simplexLocator) Vector(ex field.Extractor) r3.Vec {
	var s r3.Vec
	for i, v := range l.mesh.cells[l.cell] {
		s = r3.Add(s, r3.Scale(l.bary[i], ex.VectorAt(v)))
	}
	return s
}

func (l *simplexLocator) Clone() field.Locator {
	c := *l
	return &c
}
