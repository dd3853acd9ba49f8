// Package extract implements isosurface and slice extraction over any
// field.DataSet, either over the whole grid or grown from a seed cell.
package extract

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/internal/frontier"
	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/incremental"
	"github.com/Faultbox/fieldx/internal/metrics"
	"github.com/Faultbox/fieldx/pkg/casetable"
	"github.com/Faultbox/fieldx/pkg/math"
)

// Options configures an extractor.
type Options struct {
	// BlockSize is the sink's vertices per block; 0 selects the default.
	BlockSize int
	// Color supplies the per-vertex scalar stored with each vertex.
	Color   field.Extractor
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type mode int

const (
	modeIdle mode = iota
	modeGlobal
	modeSeeded
	modeDone
)

// Stats summarizes an extraction so far.
type Stats struct {
	Visited int // cells classified
	Crossed int // cells that produced a fragment
}

// engine is the classify / look up / interpolate / expand loop shared by
// isosurfaces and slices. value returns the classification value of a
// cell corner; corners with value >= threshold are "above".
type engine struct {
	name      string
	ds        field.DataSet
	topo      casetable.Topology
	table     *casetable.Table
	sink      *geometry.Sink
	threshold float64
	value     func(c *field.Cell, corner int) float64
	color     func(c *field.Cell, corner int) float64

	cell   *field.Cell
	values []float64
	colors []float64
	queue  *frontier.Queue[field.CellID]
	mode   mode
	next   field.CellID
	stats  Stats

	log     *zap.Logger
	metrics *metrics.Metrics
}

func newEngine(name string, ds field.DataSet, opts Options) (*engine, error) {
	topo := ds.Topology()
	table, err := casetable.For(topo)
	if err != nil {
		return nil, fmt.Errorf("%s extractor: %w", name, err)
	}
	kind := geometry.Triangles
	if topo.Dimension() == 2 {
		kind = geometry.Lines
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &engine{
		name:    name,
		ds:      ds,
		topo:    topo,
		table:   table,
		sink:    geometry.NewSink(kind, opts.BlockSize),
		cell:    field.NewCell(topo),
		values:  make([]float64, topo.NumVertices()),
		colors:  make([]float64, topo.NumVertices()),
		queue:   frontier.New[field.CellID](),
		log:     log.Named(name),
		metrics: opts.Metrics,
	}, nil
}

// Sink returns the output geometry.
func (e *engine) Sink() *geometry.Sink { return e.sink }

// Stats returns visit counters.
func (e *engine) Stats() Stats { return e.stats }

// Done reports whether the current extraction has no work left.
func (e *engine) Done() bool { return e.mode == modeDone || e.mode == modeIdle }

func (e *engine) reset(m mode) {
	e.sink.Clear()
	e.queue.Reset()
	e.next = 0
	e.stats = Stats{}
	e.mode = m
}

// StartGlobal begins visiting every cell of the grid and runs until pred
// refuses. It returns true when the extraction is complete.
func (e *engine) StartGlobal(pred incremental.Predicate) bool {
	e.reset(modeGlobal)
	e.log.Debug("global extraction started", zap.Int("cells", e.ds.NumCells()))
	return e.Continue(pred)
}

// StartSeeded begins growing from the locator's cell. A locator outside
// the domain yields an empty, already finished extraction.
func (e *engine) StartSeeded(loc field.Locator, pred incremental.Predicate) bool {
	if loc == nil || !loc.Valid() {
		e.reset(modeDone)
		e.log.Debug("seed outside domain")
		return true
	}
	e.reset(modeSeeded)
	e.queue.Enqueue(loc.Cell())
	e.log.Debug("seeded extraction started", zap.Int64("seed", int64(loc.Cell())))
	return e.Continue(pred)
}

// Continue resumes the extraction until it completes or pred refuses.
func (e *engine) Continue(pred incremental.Predicate) bool {
	if e.Done() {
		return true
	}
	if incremental.Run(incremental.StepFunc(e.Step), pred) {
		e.mode = modeDone
		e.log.Debug("extraction complete",
			zap.Int("visited", e.stats.Visited),
			zap.Int("crossed", e.stats.Crossed),
			zap.Int("primitives", e.sink.NumPrimitives()))
		return true
	}
	return false
}

// Finish drops traversal state. The sink stays readable.
func (e *engine) Finish() {
	e.queue.Reset()
	e.mode = modeIdle
}

// Step processes one cell. It returns false when no cell is left.
func (e *engine) Step() bool {
	switch e.mode {
	case modeGlobal:
		if int(e.next) >= e.ds.NumCells() {
			return false
		}
		e.process(e.next, false)
		e.next++
		return true
	case modeSeeded:
		id, ok := e.queue.Next()
		if !ok {
			return false
		}
		e.process(id, true)
		return true
	default:
		return false
	}
}

// process classifies one cell, commits its fragment and, when expanding,
// enqueues the neighbors across crossed faces.
func (e *engine) process(id field.CellID, expand bool) {
	if !e.ds.Cell(id, e.cell) {
		return
	}
	c := e.cell
	for i := range e.values {
		e.values[i] = e.value(c, i)
		e.colors[i] = e.color(c, i)
	}
	entry := e.table.Lookup(casetable.Classify(e.values, e.threshold))
	e.stats.Visited++
	e.metrics.CellVisited(e.name)

	if !entry.Empty() {
		e.stats.Crossed++
		before := e.sink.NumPrimitives()
		for _, edge := range entry.Edges {
			if edge == casetable.End {
				break
			}
			a, b := e.topo.Edge(edge)
			// Interpolate from the lower global vertex so cells sharing
			// the edge produce bit-identical vertices.
			if c.Vertices[a] > c.Vertices[b] {
				a, b = b, a
			}
			t := (e.threshold - e.values[a]) / (e.values[b] - e.values[a])
			pos := r3.Add(c.Positions[a], r3.Scale(t, r3.Sub(c.Positions[b], c.Positions[a])))
			*e.sink.NextVertex() = geometry.Vertex{
				Position: math.FromR3(pos),
				Value:    float32(e.colors[a] + t*(e.colors[b]-e.colors[a])),
			}
		}
		e.sink.Commit()
		e.metrics.PrimitivesEmitted(e.name, e.sink.NumPrimitives()-before)
	}

	if !expand {
		return
	}
	for f := 0; f < e.topo.NumFaces(); f++ {
		if entry.Faces&(1<<f) == 0 {
			continue
		}
		if nb := e.ds.Neighbor(id, f); nb != field.NoCell {
			e.queue.Enqueue(nb)
		}
	}
}
