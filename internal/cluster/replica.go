package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/metrics"
	"github.com/Faultbox/fieldx/internal/network"
	"github.com/Faultbox/fieldx/internal/network/packets"
	"github.com/Faultbox/fieldx/pkg/math"
)

// ErrProtocolViolation is wrapped by every error caused by a stream that
// does not follow the replication protocol.
var ErrProtocolViolation = errors.New("replication protocol violation")

// ReplicaOptions configures a replica.
type ReplicaOptions struct {
	// ExpectStream rejects any other stream when not uuid.Nil.
	ExpectStream uuid.UUID
	// OnBatch is called after every end-of-batch marker with the replica
	// sink in a consistent state.
	OnBatch func(*geometry.Sink)
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Replica rebuilds a master's sink from its record stream.
type Replica struct {
	in        network.Receiver
	opts      ReplicaOptions
	log       *zap.Logger
	sink      *geometry.Sink
	stream    uuid.UUID
	algorithm string
	seq       uint32
	version   uint64
	done      bool
}

// NewReplica creates a replica reading from in.
func NewReplica(in network.Receiver, opts ReplicaOptions) *Replica {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Replica{in: in, opts: opts, log: log.Named("replica")}
}

// Sink returns the rebuilt sink, nil before the Begin record arrived.
func (r *Replica) Sink() *geometry.Sink { return r.sink }

// Stream returns the stream id announced by the master.
func (r *Replica) Stream() uuid.UUID { return r.stream }

// Algorithm returns the algorithm name announced by the master.
func (r *Replica) Algorithm() string { return r.algorithm }

// MasterVersion returns the master sink version the replica mirrors.
func (r *Replica) MasterVersion() uint64 { return r.version }

// Done reports whether the Complete record was applied.
func (r *Replica) Done() bool { return r.done }

// Receive applies records until the stream completes. It returns nil on
// Complete, the context error on cancellation and an error wrapping
// ErrProtocolViolation for anything malformed, missing or out of order.
func (r *Replica) Receive(ctx context.Context) error {
	for !r.done {
		frame, err := r.in.Receive(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, network.ErrClosed) {
				return r.violation("stream closed before complete")
			}
			return fmt.Errorf("receiving frame: %w", err)
		}
		if err := r.apply(frame); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replica) apply(frame []byte) error {
	rec, err := packets.Decode(frame)
	if err != nil {
		return r.violation("decoding frame %d: %v", r.seq, err)
	}
	if rec.Sequence() != r.seq {
		return r.violation("expected record %d, got %d (%s)", r.seq, rec.Sequence(), packets.Name(rec.ID()))
	}
	r.opts.Metrics.Frame("replica", packets.Name(rec.ID()), len(frame))

	if r.sink == nil {
		begin, ok := rec.(*packets.Begin)
		if !ok {
			return r.violation("stream starts with %s", packets.Name(rec.ID()))
		}
		if err := r.begin(begin); err != nil {
			return err
		}
		r.seq++
		return nil
	}

	switch rec := rec.(type) {
	case *packets.Begin:
		return r.violation("second begin record")
	case *packets.Clear:
		if rec.Version <= r.version {
			return r.violation("clear to version %d, already at %d", rec.Version, r.version)
		}
		r.sink.Clear()
		r.version = rec.Version
	case *packets.Batch:
		if err := r.batch(rec); err != nil {
			return err
		}
	case *packets.EndOfBatch:
		if int(rec.NumVertices) != r.sink.NumVertices() {
			return r.violation("end of batch at %d vertices, have %d", rec.NumVertices, r.sink.NumVertices())
		}
		if r.opts.OnBatch != nil {
			r.opts.OnBatch(r.sink)
		}
	case *packets.Complete:
		if int(rec.NumVertices) != r.sink.NumVertices() {
			return r.violation("complete at %d vertices, have %d", rec.NumVertices, r.sink.NumVertices())
		}
		r.done = true
		r.log.Debug("stream complete", zap.Stringer("stream", r.stream), zap.Int("vertices", r.sink.NumVertices()))
	}
	r.seq++
	return nil
}

func (r *Replica) begin(rec *packets.Begin) error {
	stream := uuid.UUID(rec.Stream)
	if r.opts.ExpectStream != uuid.Nil && stream != r.opts.ExpectStream {
		return r.violation("foreign stream %s, expected %s", stream, r.opts.ExpectStream)
	}
	kind := geometry.Kind(rec.Kind)
	if !kind.Valid() {
		return r.violation("unknown primitive kind %d", rec.Kind)
	}
	r.stream = stream
	r.algorithm = rec.AlgorithmName()
	r.version = rec.Version
	r.sink = geometry.NewSink(kind, int(rec.BlockSize))
	r.log.Debug("stream begin",
		zap.Stringer("stream", stream),
		zap.String("algorithm", r.algorithm),
		zap.Stringer("kind", kind))
	return nil
}

func (r *Replica) batch(rec *packets.Batch) error {
	if rec.Version != r.version {
		return r.violation("batch for version %d, mirroring %d", rec.Version, r.version)
	}
	if int(rec.First) != r.sink.NumVertices() {
		return r.violation("batch starts at vertex %d, have %d", rec.First, r.sink.NumVertices())
	}
	per := r.sink.Kind().VerticesPerPrimitive()
	if len(rec.Vertices)%per != 0 || int(rec.Primitives) != len(rec.Vertices)/per {
		return r.violation("batch of %d vertices claims %d primitives", len(rec.Vertices), rec.Primitives)
	}
	for _, v := range rec.Vertices {
		r.sink.Add(fromWire(v))
	}
	r.sink.Commit()
	return nil
}

func (r *Replica) violation(format string, args ...any) error {
	r.opts.Metrics.ProtocolError()
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

func fromWire(v packets.Vertex) geometry.Vertex {
	return geometry.Vertex{Position: math.Vec3{X: v.X, Y: v.Y, Z: v.Z}, Value: v.Value}
}
