package algorithm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/cluster"
	"github.com/Faultbox/fieldx/internal/extract"
	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/grid"
	"github.com/Faultbox/fieldx/internal/incremental"
	"github.com/Faultbox/fieldx/internal/network"
)

// tickClock advances by step on every reading.
type tickClock struct {
	now  time.Time
	step time.Duration
}

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func sphereParams(t *testing.T) Params {
	t.Helper()
	g, err := grid.NewBox(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1}, 9, 9, 9)
	require.NoError(t, err)
	sphere, err := grid.ScalarField("sphere")
	require.NoError(t, err)
	vortex, err := grid.VectorField("vortex")
	require.NoError(t, err)
	return Params{
		DataSet:  g,
		Data:     grid.Sample(g, sphere, vortex),
		Isovalue: 0.7,
	}
}

func TestCapabilities(t *testing.T) {
	r := Default
	assert.Equal(t, []string{Isosurface, Particles, Slice, Streamline}, r.Names())

	tests := []struct {
		name           string
		global, seeded bool
	}{
		{Isosurface, true, true},
		{Slice, true, true},
		{Streamline, false, true},
		{Particles, true, false},
		{"volume", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.global, r.HasGlobalCreator(tt.name))
			assert.Equal(t, tt.seeded, r.HasSeededCreator(tt.name))
		})
	}
}

func TestCreatorErrors(t *testing.T) {
	p := sphereParams(t)

	_, err := Default.NewGlobal("volume", p)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	_, err = Default.NewGlobal(Streamline, p)
	assert.ErrorIs(t, err, ErrNoGlobalCreator)
	_, err = Default.NewSeeded(Particles, p, r3.Vec{})
	assert.ErrorIs(t, err, ErrNoSeededCreator)

	r := NewRegistry()
	assert.Error(t, r.Register(Info{Name: "empty"}))
	assert.Error(t, r.Register(Info{Global: newIsosurface}))
}

func TestDriverSpreadsWorkOverTicks(t *testing.T) {
	p := sphereParams(t)

	ref, err := Default.NewGlobal(Isosurface, p)
	require.NoError(t, err)
	require.True(t, ref.Start(incremental.Always))

	el, err := Default.NewGlobal(Isosurface, p)
	require.NoError(t, err)
	var ticks []int
	d := NewDriver(el, DriverOptions{
		Tick:   10 * time.Millisecond,
		Clock:  &tickClock{step: time.Millisecond},
		OnTick: func(r Result) { ticks = append(ticks, r.Primitives) },
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Greater(t, res.Ticks, 10)
	assert.Len(t, ticks, res.Ticks)
	assert.IsNonDecreasing(t, ticks)
	assert.Equal(t, ref.Sink().NumPrimitives(), res.Primitives)
	assert.Equal(t, ref.Sink().AppendVertices(nil, 0), el.Sink().AppendVertices(nil, 0))
}

func TestDriverFeedsReplica(t *testing.T) {
	p := sphereParams(t)
	el, err := Default.NewGlobal(Slice, Params{
		DataSet: p.DataSet,
		Data:    p.Data,
		Plane:   extract.PlaneThrough(r3.Vec{X: 0.1}, r3.Vec{X: 1}),
	})
	require.NoError(t, err)

	var out network.Capture
	m := cluster.NewMaster(el.Sink(), &out, cluster.MasterOptions{Algorithm: el.Name(), MaxBatch: 64})
	d := NewDriver(el, DriverOptions{
		Tick:   5 * time.Millisecond,
		Clock:  &tickClock{step: time.Millisecond},
		Master: m,
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Complete)

	var flushes int
	r := cluster.NewReplica(network.Replay(out.Frames()), cluster.ReplicaOptions{
		ExpectStream: m.Stream(),
		OnBatch:      func(*geometry.Sink) { flushes++ },
	})
	require.NoError(t, r.Receive(context.Background()))
	assert.Equal(t, Slice, r.Algorithm())
	assert.Equal(t, res.Ticks+1, flushes)
	assert.Equal(t, el.Sink().AppendVertices(nil, 0), r.Sink().AppendVertices(nil, 0))
}

func TestDriverStopsAtMaxElements(t *testing.T) {
	p := sphereParams(t)
	el, err := Default.NewGlobal(Isosurface, p)
	require.NoError(t, err)

	d := NewDriver(el, DriverOptions{MaxElements: 30, Clock: &tickClock{step: time.Millisecond}})
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.GreaterOrEqual(t, res.Primitives, 30)
	// A single cell adds at most a handful of triangles past the limit.
	assert.Less(t, res.Primitives, 40)
}

func TestDriverHonoursContext(t *testing.T) {
	p := sphereParams(t)
	el, err := Default.NewGlobal(Isosurface, p)
	require.NoError(t, err)

	var out network.Capture
	m := cluster.NewMaster(el.Sink(), &out, cluster.MasterOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDriver(el, DriverOptions{Master: m, Clock: &tickClock{step: time.Millisecond}})
	res, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Ticks)

	// The stream still ends cleanly.
	r := cluster.NewReplica(network.Replay(out.Frames()), cluster.ReplicaOptions{})
	assert.NoError(t, r.Receive(context.Background()))
}

func TestSeededIsosurfaceTakesValueAtSeed(t *testing.T) {
	p := sphereParams(t)
	seed := r3.Vec{X: 0.55, Y: 0.1, Z: -0.05}
	el, err := Default.NewSeeded(Isosurface, p, seed)
	require.NoError(t, err)
	require.True(t, el.Start(incremental.Always))

	loc := p.DataSet.NewLocator()
	require.True(t, loc.Locate(seed, false))
	want := float32(loc.Scalar(p.Data))

	s := el.Sink()
	require.Positive(t, s.NumPrimitives())
	s.ForEach(0, func(_ int, v geometry.Vertex) {
		assert.Equal(t, want, v.Value)
	})
}

func TestSeededOutsideDomainIsEmpty(t *testing.T) {
	p := sphereParams(t)
	for _, name := range []string{Isosurface, Slice, Streamline} {
		el, err := Default.NewSeeded(name, p, r3.Vec{X: 5})
		require.NoError(t, err, name)
		assert.True(t, el.Start(incremental.Always), name)
		assert.Zero(t, el.Sink().NumVertices(), name)
	}
}

func TestStreamlineElement(t *testing.T) {
	p := sphereParams(t)
	p.Trace.MaxLength = 1
	el, err := Default.NewSeeded(Streamline, p, r3.Vec{X: 0.5})
	require.NoError(t, err)

	res, err := NewDriver(el, DriverOptions{Clock: &tickClock{step: time.Millisecond}}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, geometry.Polyline, el.Sink().Kind())
	assert.Greater(t, el.Sink().NumVertices(), 2)
}

func TestParticlesElement(t *testing.T) {
	p := sphereParams(t)
	p.Particles = 50
	p.ParticleLife = 10
	p.MaxTicks = 5
	p.RandomSeed = 7

	el, err := Default.NewGlobal(Particles, p)
	require.NoError(t, err)
	assert.True(t, el.Done())

	var out network.Capture
	m := cluster.NewMaster(el.Sink(), &out, cluster.MasterOptions{Algorithm: Particles})
	res, err := NewDriver(el, DriverOptions{
		Clock:  &tickClock{step: time.Millisecond},
		Master: m,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 5, el.(*particles).ens.Ticks())
	assert.Equal(t, geometry.Points, el.Sink().Kind())
	assert.LessOrEqual(t, el.Sink().NumVertices(), 50)
	assert.Positive(t, el.Sink().NumVertices())

	r := cluster.NewReplica(network.Replay(out.Frames()), cluster.ReplicaOptions{})
	require.NoError(t, r.Receive(context.Background()))
	assert.Equal(t, el.Sink().AppendVertices(nil, 0), r.Sink().AppendVertices(nil, 0))
}
