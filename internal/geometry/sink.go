// Package geometry holds the append-only vertex store that extraction
// algorithms write into and renderers and replication read from.
package geometry

import (
	"fmt"

	"github.com/Faultbox/fieldx/pkg/math"
)

// DefaultBlockSize is the number of vertices per storage block.
const DefaultBlockSize = 1024

// Kind is the primitive type a sink stores.
type Kind uint8

// Primitive kinds.
const (
	Triangles Kind = iota + 1 // independent triangles, 3 vertices each
	Lines                     // independent segments, 2 vertices each
	Polyline                  // one connected strip, 1 vertex per step
	Points                    // independent points
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Triangles:
		return "triangles"
	case Lines:
		return "lines"
	case Polyline:
		return "polyline"
	case Points:
		return "points"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= Triangles && k <= Points
}

// VerticesPerPrimitive returns how many vertices make one primitive.
func (k Kind) VerticesPerPrimitive() int {
	switch k {
	case Triangles:
		return 3
	case Lines:
		return 2
	default:
		return 1
	}
}

// Vertex is one output vertex.
type Vertex struct {
	Position math.Vec3
	Value    float32 // scalar for later coloring
}

// Reader is the read-only view renderers and replicators use.
type Reader interface {
	Kind() Kind
	Version() uint64
	NumVertices() int
	NumPrimitives() int
	NumBlocks() int
	Block(i int) []Vertex
}

// Sink is an arena of fixed-size vertex blocks addressed by a running
// vertex index. Writers stage vertices with NextVertex and publish them
// with Commit; readers only ever see committed vertices.
type Sink struct {
	kind      Kind
	blockSize int
	blocks    [][]Vertex
	count     int
	staged    int
	version   uint64
	bounds    math.Box
}

// NewSink creates an empty sink. A non-positive blockSize selects
// DefaultBlockSize.
func NewSink(kind Kind, blockSize int) *Sink {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Sink{
		kind:      kind,
		blockSize: blockSize,
		bounds:    math.EmptyBox(),
	}
}

// Kind returns the primitive kind.
func (s *Sink) Kind() Kind { return s.kind }

// BlockSize returns the vertices per block.
func (s *Sink) BlockSize() int { return s.blockSize }

// NextVertex stages and returns the next writable slot, allocating a new
// block when the current one is full.
func (s *Sink) NextVertex() *Vertex {
	idx := s.count + s.staged
	b := idx / s.blockSize
	if b == len(s.blocks) {
		s.blocks = append(s.blocks, make([]Vertex, s.blockSize))
	}
	s.staged++
	return &s.blocks[b][idx%s.blockSize]
}

// Add stages a copy of v.
func (s *Sink) Add(v Vertex) {
	*s.NextVertex() = v
}

// Staged returns the number of uncommitted slots.
func (s *Sink) Staged() int { return s.staged }

// Commit publishes all staged vertices and returns the new vertex count.
func (s *Sink) Commit() int {
	for i := s.count; i < s.count+s.staged; i++ {
		s.bounds.Extend(s.blocks[i/s.blockSize][i%s.blockSize].Position)
	}
	s.count += s.staged
	s.staged = 0
	return s.count
}

// Rollback discards staged vertices.
func (s *Sink) Rollback() {
	s.staged = 0
}

// Clear drops all vertices and bumps the version. Blocks are kept for
// reuse.
func (s *Sink) Clear() {
	s.count = 0
	s.staged = 0
	s.version++
	s.bounds = math.EmptyBox()
}

// Version changes every time the sink is cleared.
func (s *Sink) Version() uint64 { return s.version }

// NumVertices returns the committed vertex count.
func (s *Sink) NumVertices() int { return s.count }

// NumPrimitives returns the committed primitive count.
func (s *Sink) NumPrimitives() int {
	return s.count / s.kind.VerticesPerPrimitive()
}

// NumBlocks returns the number of blocks holding committed vertices.
func (s *Sink) NumBlocks() int {
	return (s.count + s.blockSize - 1) / s.blockSize
}

// Block returns the committed part of block i.
func (s *Sink) Block(i int) []Vertex {
	start := i * s.blockSize
	if i < 0 || start >= s.count {
		return nil
	}
	n := s.count - start
	if n > s.blockSize {
		n = s.blockSize
	}
	return s.blocks[i][:n]
}

// Vertex returns committed vertex i.
func (s *Sink) Vertex(i int) Vertex {
	if i < 0 || i >= s.count {
		panic(fmt.Sprintf("geometry: vertex %d out of range [0,%d)", i, s.count))
	}
	return s.blocks[i/s.blockSize][i%s.blockSize]
}

// ForEach calls fn for every committed vertex from index from on.
func (s *Sink) ForEach(from int, fn func(i int, v Vertex)) {
	for i := max(from, 0); i < s.count; i++ {
		fn(i, s.blocks[i/s.blockSize][i%s.blockSize])
	}
}

// AppendVertices appends committed vertices [from, NumVertices) to dst.
func (s *Sink) AppendVertices(dst []Vertex, from int) []Vertex {
	for i := max(from, 0); i < s.count; {
		b, off := i/s.blockSize, i%s.blockSize
		end := min(s.blockSize, off+s.count-i)
		dst = append(dst, s.blocks[b][off:end]...)
		i += end - off
	}
	return dst
}

// Bounds returns the bounding box of committed vertices.
func (s *Sink) Bounds() math.Box { return s.bounds }
