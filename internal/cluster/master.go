// Package cluster replicates a growing geometry sink from the node that
// runs an extraction (the master) to nodes that only render it (replicas).
//
// A stream is Begin, then per flush an optional Clear, zero or more
// Batch records and one EndOfBatch, and finally Complete. Records are
// numbered; a replica treats any gap or reordering as fatal.
package cluster

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/metrics"
	"github.com/Faultbox/fieldx/internal/network"
	"github.com/Faultbox/fieldx/internal/network/packets"
)

// DefaultMaxBatch is the default number of vertices per Batch record.
const DefaultMaxBatch = 4096

// Source is the sink view a master replicates.
type Source interface {
	geometry.Reader
	AppendVertices(dst []geometry.Vertex, from int) []geometry.Vertex
}

// MasterOptions configures a master.
type MasterOptions struct {
	// Algorithm names the extraction in the Begin record.
	Algorithm string
	// MaxBatch caps the vertices per Batch record.
	MaxBatch int
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Master streams the committed contents of a sink.
type Master struct {
	src     Source
	out     network.Broadcaster
	opts    MasterOptions
	log     *zap.Logger
	stream  uuid.UUID
	seq     uint32
	sent    int
	version uint64
	begun   bool
	done    bool
	buf     []geometry.Vertex
}

// NewMaster creates a master for src writing to out. The stream id is
// fresh for every master.
func NewMaster(src Source, out network.Broadcaster, opts MasterOptions) *Master {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Master{
		src:    src,
		out:    out,
		opts:   opts,
		stream: uuid.New(),
		log:    log.Named("master"),
	}
}

// Stream returns the stream id.
func (m *Master) Stream() uuid.UUID { return m.stream }

// Begin announces the stream.
func (m *Master) Begin(ctx context.Context) error {
	if m.begun {
		return fmt.Errorf("stream %s already begun", m.stream)
	}
	m.begun = true
	m.version = m.src.Version()
	m.sent = 0
	rec := &packets.Begin{
		Stream:    m.stream,
		Kind:      uint8(m.src.Kind()),
		BlockSize: uint32(blockSize(m.src)),
		Version:   m.version,
	}
	rec.SetAlgorithm(m.opts.Algorithm)
	m.log.Debug("stream begin", zap.Stringer("stream", m.stream), zap.String("algorithm", m.opts.Algorithm))
	return m.send(ctx, rec)
}

// Flush sends every vertex committed since the previous flush, preceded
// by a Clear when the sink was cleared in between, and ends with an
// EndOfBatch marker.
func (m *Master) Flush(ctx context.Context) error {
	if !m.begun || m.done {
		return fmt.Errorf("flush outside stream %s", m.stream)
	}
	if v := m.src.Version(); v != m.version {
		m.version = v
		m.sent = 0
		if err := m.send(ctx, &packets.Clear{Version: v}); err != nil {
			return err
		}
	}

	per := m.src.Kind().VerticesPerPrimitive()
	chunk := max(m.opts.MaxBatch/per*per, per)
	m.buf = m.src.AppendVertices(m.buf[:0], m.sent)
	for pending := m.buf; len(pending) > 0; {
		part := pending[:min(chunk, len(pending))]
		pending = pending[len(part):]
		rec := &packets.Batch{
			Version:    m.version,
			First:      uint32(m.sent),
			Primitives: uint32(len(part) / per),
			Vertices:   make([]packets.Vertex, len(part)),
		}
		for i, v := range part {
			rec.Vertices[i] = toWire(v)
		}
		if err := m.send(ctx, rec); err != nil {
			return err
		}
		m.sent += len(part)
	}
	return m.send(ctx, &packets.EndOfBatch{NumVertices: uint32(m.sent)})
}

// Finish flushes and sends the Complete record. The broadcaster stays
// open; closing it is up to its owner.
func (m *Master) Finish(ctx context.Context) error {
	if err := m.Flush(ctx); err != nil {
		return err
	}
	m.done = true
	m.log.Debug("stream complete", zap.Stringer("stream", m.stream), zap.Int("vertices", m.sent))
	return m.send(ctx, &packets.Complete{NumVertices: uint32(m.sent)})
}

func (m *Master) send(ctx context.Context, rec packets.Record) error {
	rec.SetSequence(m.seq)
	frame := rec.Encode()
	if err := m.out.Broadcast(ctx, frame); err != nil {
		return fmt.Errorf("broadcasting %s: %w", packets.Name(rec.ID()), err)
	}
	m.seq++
	m.opts.Metrics.Frame("master", packets.Name(rec.ID()), len(frame))
	return nil
}

func blockSize(r geometry.Reader) int {
	if s, ok := r.(interface{ BlockSize() int }); ok {
		return s.BlockSize()
	}
	return geometry.DefaultBlockSize
}

func toWire(v geometry.Vertex) packets.Vertex {
	return packets.Vertex{X: v.Position.X, Y: v.Position.Y, Z: v.Position.Z, Value: v.Value}
}
