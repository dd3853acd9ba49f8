// Package casetable provides per-topology lookup tables that turn a cell's
// vertex classification into connected fragment edges and crossed faces.
package casetable

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedTopology is returned when no table exists for a cell shape.
var ErrUnsupportedTopology = errors.New("unsupported cell topology")

// Topology identifies a cell shape.
type Topology int

// Supported cell shapes.
const (
	Triangle      Topology = iota // 2D simplex, edges as faces
	Quadrilateral                 // 2D structured cell
	Tetrahedron                   // 3D simplex
	Hexahedron                    // 3D structured cell
	numTopologies
)

// shape describes the combinatorics of one cell type.
//
// Faces of 3D shapes list their corners counter-clockwise as seen from
// outside the cell. Faces of 2D shapes are the cell's edges; boundary holds
// the counter-clockwise corner cycle of the whole cell.
type shape struct {
	name     string
	dim      int
	vertices int
	edges    [][2]int
	faces    [][]int
	boundary []int
}

var shapes = [numTopologies]shape{
	// Face i is the edge opposite vertex i, as for the tetrahedron.
	Triangle: {
		name:     "triangle",
		dim:      2,
		vertices: 3,
		edges:    [][2]int{{0, 1}, {1, 2}, {0, 2}},
		faces:    [][]int{{1, 2}, {2, 0}, {0, 1}},
		boundary: []int{0, 1, 2},
	},
	// Vertex index = x + 2y; edges 0-1 parallel to x, 2-3 parallel to y.
	// Faces: -x, +x, -y, +y.
	Quadrilateral: {
		name:     "quadrilateral",
		dim:      2,
		vertices: 4,
		edges:    [][2]int{{0, 1}, {2, 3}, {0, 2}, {1, 3}},
		faces:    [][]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}},
		boundary: []int{0, 1, 3, 2},
	},
	// Face i is opposite vertex i; cells must be positively oriented.
	Tetrahedron: {
		name:     "tetrahedron",
		dim:      3,
		vertices: 4,
		edges:    [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}},
		faces:    [][]int{{1, 2, 3}, {0, 3, 2}, {0, 1, 3}, {0, 2, 1}},
	},
	// Vertex index = x + 2y + 4z; edges 0-3 parallel to x, 4-7 parallel
	// to y, 8-11 parallel to z. Faces: -x, +x, -y, +y, -z, +z.
	Hexahedron: {
		name:     "hexahedron",
		dim:      3,
		vertices: 8,
		edges: [][2]int{
			{0, 1}, {2, 3}, {4, 5}, {6, 7},
			{0, 2}, {1, 3}, {4, 6}, {5, 7},
			{0, 4}, {1, 5}, {2, 6}, {3, 7},
		},
		faces: [][]int{
			{0, 4, 6, 2}, {1, 3, 7, 5},
			{0, 1, 5, 4}, {2, 6, 7, 3},
			{0, 2, 3, 1}, {4, 5, 7, 6},
		},
	},
}

// ParseTopology maps a configuration name to a Topology.
func ParseTopology(name string) (Topology, error) {
	for t := Topology(0); t < numTopologies; t++ {
		if shapes[t].name == strings.ToLower(name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedTopology, name)
}

// Valid reports whether t names a supported shape.
func (t Topology) Valid() bool {
	return t >= 0 && t < numTopologies
}

// String returns the shape name.
func (t Topology) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Topology(%d)", int(t))
	}
	return shapes[t].name
}

// Dimension returns 2 for planar cells and 3 for solid cells.
func (t Topology) Dimension() int { return shapes[t].dim }

// NumVertices returns the corner count.
func (t Topology) NumVertices() int { return shapes[t].vertices }

// NumEdges returns the edge count.
func (t Topology) NumEdges() int { return len(shapes[t].edges) }

// NumFaces returns the number of neighbor-bearing faces.
func (t Topology) NumFaces() int { return len(shapes[t].faces) }

// Edge returns the endpoints of edge i, lower local index first.
func (t Topology) Edge(i int) (int, int) {
	e := shapes[t].edges[i]
	return e[0], e[1]
}

// FragmentSize is the number of edges per emitted primitive: three for
// triangles cut from solid cells, two for segments cut from planar cells.
func (t Topology) FragmentSize() int {
	if shapes[t].dim == 3 {
		return 3
	}
	return 2
}

// FullMask returns the classification with every vertex set.
func (t Topology) FullMask() uint32 {
	return uint32(1)<<shapes[t].vertices - 1
}
