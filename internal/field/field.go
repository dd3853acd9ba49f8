// Package field defines the contracts between extraction algorithms and the
// grids they run on: data sets, cell views, locators, and field extractors.
package field

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/pkg/casetable"
)

// ErrOutsideDomain is reported by helpers that need a located point.
var ErrOutsideDomain = errors.New("point outside data set domain")

// CellID identifies a grid cell. Structured grids use the linear cell index;
// unstructured meshes use the cell's slot in their cell array.
type CellID int64

// NoCell is the id of "no cell", e.g. across a domain boundary.
const NoCell CellID = -1

// Extractor reads one field at grid vertices.
type Extractor interface {
	ScalarAt(vertex int) float64
	VectorAt(vertex int) r3.Vec
}

// Cell is a transient view of one grid cell. Data sets fill it in place so
// the extraction loop does not allocate per cell.
type Cell struct {
	ID        CellID
	Vertices  []int    // global vertex indices in topology order
	Positions []r3.Vec // vertex positions in topology order
}

// DataSet is a grid whose cells share one topology.
type DataSet interface {
	Topology() casetable.Topology
	NumCells() int
	NumVertices() int
	VertexPosition(vertex int) r3.Vec
	// Cell fills c with the view of cell id. It returns false for ids that
	// do not name a cell.
	Cell(id CellID, c *Cell) bool
	// Neighbor returns the cell across face of id, or NoCell at the
	// domain boundary.
	Neighbor(id CellID, face int) CellID
	// Bounds returns the domain's bounding box corners.
	Bounds() (min, max r3.Vec)
	NewLocator() Locator
}

// Locator is a cursor that maps points to enclosing cells and evaluates
// fields there.
type Locator interface {
	// Locate moves the locator to p. With useHint the search starts from
	// the current cell and walks towards p, which is the cheap path when
	// p is close to the previous point. It returns false when p is outside
	// the domain; the locator is then invalid until the next successful
	// Locate.
	Locate(p r3.Vec, useHint bool) bool
	Valid() bool
	Cell() CellID
	Position() r3.Vec
	Scalar(ex Extractor) float64
	Vector(ex Extractor) r3.Vec
	// Clone returns an independent locator at the same state.
	Clone() Locator
}

// NewCell returns a cell view sized for topology t.
func NewCell(t casetable.Topology) *Cell {
	return &Cell{
		ID:        NoCell,
		Vertices:  make([]int, t.NumVertices()),
		Positions: make([]r3.Vec, t.NumVertices()),
	}
}

// Sample is the field state at one point.
type Sample struct {
	Cell   CellID
	Scalar float64
	Vector r3.Vec
}

// Probe locates p in ds and evaluates ex there.
func Probe(ds DataSet, ex Extractor, p r3.Vec) (Sample, error) {
	loc := ds.NewLocator()
	if !loc.Locate(p, false) {
		return Sample{}, fmt.Errorf("%w: %v", ErrOutsideDomain, p)
	}
	return Sample{Cell: loc.Cell(), Scalar: loc.Scalar(ex), Vector: loc.Vector(ex)}, nil
}
