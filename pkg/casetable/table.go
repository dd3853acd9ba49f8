package casetable

import "fmt"

// End terminates an entry's edge list.
const End = -1

// Entry is the fragment recipe for one classification.
type Entry struct {
	// Edges lists edge indices in groups of FragmentSize, terminated by End.
	// Triangles wind so their normal points towards the classified side.
	Edges []int
	// Faces has bit f set when face f separates classified and
	// unclassified corners.
	Faces uint32
}

// Empty reports whether the entry produces no fragment.
func (e Entry) Empty() bool {
	return len(e.Edges) == 0 || e.Edges[0] == End
}

// Table maps every classification of one topology to its entry.
type Table struct {
	topology Topology
	entries  []Entry
}

var tables [numTopologies]*Table

func init() {
	for t := Topology(0); t < numTopologies; t++ {
		tables[t] = build(t)
	}
}

// For returns the shared table of a topology.
func For(t Topology) (*Table, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTopology, int(t))
	}
	return tables[t], nil
}

// Topology returns the shape the table was built for.
func (tb *Table) Topology() Topology { return tb.topology }

// Lookup returns the entry for a classification. Bits above the vertex
// count are ignored.
func (tb *Table) Lookup(classification uint32) Entry {
	return tb.entries[classification&tb.topology.FullMask()]
}

// Classify sets bit i when values[i] >= threshold. Exact equality counts as
// above so that every classification is unambiguous.
func Classify(values []float64, threshold float64) uint32 {
	var mask uint32
	for i, v := range values {
		if v >= threshold {
			mask |= 1 << i
		}
	}
	return mask
}

func build(t Topology) *Table {
	s := &shapes[t]
	tb := &Table{
		topology: t,
		entries:  make([]Entry, 1<<s.vertices),
	}
	edgeIndex := make(map[[2]int]int, len(s.edges))
	for i, e := range s.edges {
		edgeIndex[e] = i
		edgeIndex[[2]int{e[1], e[0]}] = i
	}
	for mask := range tb.entries {
		tb.entries[mask] = buildEntry(s, edgeIndex, uint32(mask))
	}
	return tb
}

// segment runs from the crossing where the boundary walk leaves the
// classified region to the crossing where it enters it again, which keeps
// the classified side on the left.
type segment struct {
	from, to int
}

type crossing struct {
	edge  int
	leave bool
}

// cycleSegments splits the crossings of one corner cycle into segments.
// Cycles with four crossings are ambiguous; the pair of opposite corners
// holding the lowest local vertex index is cut off, which depends only on
// which corners differ and not on their signs.
func cycleSegments(cycle []int, edgeIndex map[[2]int]int, mask uint32) []segment {
	n := len(cycle)
	above := func(v int) bool { return mask&(1<<v) != 0 }

	// cross[k] describes the crossing between cycle[k] and cycle[k+1].
	cross := make([]*crossing, n)
	count := 0
	for k := range cycle {
		a, b := cycle[k], cycle[(k+1)%n]
		if above(a) == above(b) {
			continue
		}
		cross[k] = &crossing{edge: edgeIndex[[2]int{a, b}], leave: above(a)}
		count++
	}

	orient := func(c1, c2 *crossing) segment {
		if c1.leave {
			return segment{from: c1.edge, to: c2.edge}
		}
		return segment{from: c2.edge, to: c1.edge}
	}

	switch count {
	case 0:
		return nil
	case 2:
		var found []*crossing
		for _, c := range cross {
			if c != nil {
				found = append(found, c)
			}
		}
		return []segment{orient(found[0], found[1])}
	default:
		lowest := 0
		for k := range cycle {
			if cycle[k] < cycle[lowest] {
				lowest = k
			}
		}
		segs := make([]segment, 0, 2)
		for _, q := range []int{lowest, (lowest + 2) % n} {
			segs = append(segs, orient(cross[(q+n-1)%n], cross[q]))
		}
		return segs
	}
}

func buildEntry(s *shape, edgeIndex map[[2]int]int, mask uint32) Entry {
	var e Entry
	for f, face := range s.faces {
		first := mask&(1<<face[0]) != 0
		for _, v := range face[1:] {
			if (mask&(1<<v) != 0) != first {
				e.Faces |= 1 << f
				break
			}
		}
	}

	if s.dim == 2 {
		for _, seg := range cycleSegments(s.boundary, edgeIndex, mask) {
			e.Edges = append(e.Edges, seg.from, seg.to)
		}
		e.Edges = append(e.Edges, End)
		return e
	}

	next := make(map[int]int)
	for _, face := range s.faces {
		for _, seg := range cycleSegments(face, edgeIndex, mask) {
			next[seg.from] = seg.to
		}
	}

	visited := make([]bool, len(s.edges))
	for start := range s.edges {
		if _, crossed := next[start]; !crossed || visited[start] {
			continue
		}
		// start is the lowest edge of its loop, so complementary masks
		// fan out from the same corner in opposite directions.
		loop := []int{start}
		visited[start] = true
		for cur := next[start]; cur != start; cur = next[cur] {
			loop = append(loop, cur)
			visited[cur] = true
		}
		for i := 1; i+1 < len(loop); i++ {
			e.Edges = append(e.Edges, loop[0], loop[i], loop[i+1])
		}
	}
	e.Edges = append(e.Edges, End)
	return e
}
