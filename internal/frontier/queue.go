// Package frontier provides the work list for flood-style cell expansion.
package frontier

// Queue is a FIFO work list that accepts each key at most once over its
// lifetime, no matter how many neighbors reach it.
type Queue[K comparable] struct {
	pending []K
	head    int
	seen    map[K]struct{}
}

// New creates an empty queue.
func New[K comparable]() *Queue[K] {
	return &Queue[K]{seen: make(map[K]struct{})}
}

// Enqueue schedules id unless it was enqueued before. It reports whether
// id was added.
func (q *Queue[K]) Enqueue(id K) bool {
	if _, ok := q.seen[id]; ok {
		return false
	}
	q.seen[id] = struct{}{}
	q.pending = append(q.pending, id)
	return true
}

// Next removes and returns the oldest pending id.
func (q *Queue[K]) Next() (K, bool) {
	var zero K
	if q.head == len(q.pending) {
		return zero, false
	}
	id := q.pending[q.head]
	q.pending[q.head] = zero
	q.head++

	// Reclaim the consumed prefix once it dominates the buffer.
	if q.head > 1024 && q.head*2 > len(q.pending) {
		n := copy(q.pending, q.pending[q.head:])
		q.pending = q.pending[:n]
		q.head = 0
	}
	return id, true
}

// Len returns the number of pending ids.
func (q *Queue[K]) Len() int {
	return len(q.pending) - q.head
}

// Seen reports whether id was ever enqueued.
func (q *Queue[K]) Seen(id K) bool {
	_, ok := q.seen[id]
	return ok
}

// NumSeen returns how many distinct ids were ever enqueued.
func (q *Queue[K]) NumSeen() int {
	return len(q.seen)
}

// Reset forgets all pending and seen ids.
func (q *Queue[K]) Reset() {
	q.pending = q.pending[:0]
	q.head = 0
	clear(q.seen)
}
