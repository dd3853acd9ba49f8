package algorithm

import (
	"math/rand/v2"

	"github.com/Faultbox/fieldx/internal/extract"
	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/incremental"
	"github.com/Faultbox/fieldx/internal/trace"
)

// Built-in algorithm names.
const (
	Isosurface = "isosurface"
	Slice      = "slice"
	Streamline = "streamline"
	Particles  = "particles"
)

func init() {
	for _, info := range Builtins() {
		if err := Default.Register(info); err != nil {
			panic(err)
		}
	}
}

// Builtins returns the algorithms shipped with fieldx.
func Builtins() []Info {
	return []Info{
		{
			Name:        Isosurface,
			Description: "surface or contour where the scalar field equals the isovalue",
			Global:      newIsosurface,
			Seeded:      newSeededIsosurface,
		},
		{
			Name:        Slice,
			Description: "cut of the domain by a plane, colored by the scalar field",
			Global:      newSlice,
			Seeded:      newSeededSlice,
		},
		{
			Name:        Streamline,
			Description: "adaptive RK45 integral curve of the vector field from a seed",
			Seeded:      newStreamline,
		},
		{
			Name:        Particles,
			Description: "randomly seeded particles advected with fixed-step RK4",
			Global:      newParticles,
		},
	}
}

func (p Params) extractOptions() extract.Options {
	return extract.Options{
		BlockSize: p.BlockSize,
		Color:     p.Color,
		Logger:    p.Logger,
		Metrics:   p.Metrics,
	}
}

// extractor is the surface both fragment extractors share.
type extractor interface {
	Sink() *geometry.Sink
	StartGlobal(pred incremental.Predicate) bool
	StartSeeded(loc field.Locator, pred incremental.Predicate) bool
	Continue(pred incremental.Predicate) bool
	Done() bool
	Finish()
}

type fragment struct {
	extractor
	name string
	seed field.Locator
}

func (f *fragment) Name() string { return f.name }

func (f *fragment) Start(pred incremental.Predicate) bool {
	if f.seed == nil {
		return f.StartGlobal(pred)
	}
	return f.StartSeeded(f.seed, pred)
}

func newIsosurface(p Params) (Element, error) {
	iso, err := extract.NewIsosurface(p.DataSet, p.Data, p.Isovalue, p.extractOptions())
	if err != nil {
		return nil, err
	}
	return &fragment{extractor: iso, name: Isosurface}, nil
}

// newSeededIsosurface extracts the connected surface through the seed,
// taking the isovalue from the field there.
func newSeededIsosurface(p Params, seed field.Locator) (Element, error) {
	if v, ok := extract.IsovalueAt(seed, p.Data); ok {
		p.Isovalue = v
	}
	iso, err := extract.NewIsosurface(p.DataSet, p.Data, p.Isovalue, p.extractOptions())
	if err != nil {
		return nil, err
	}
	return &fragment{extractor: iso, name: Isosurface, seed: seed}, nil
}

func newSlice(p Params) (Element, error) {
	s, err := extract.NewSlice(p.DataSet, p.Data, p.Plane, p.extractOptions())
	if err != nil {
		return nil, err
	}
	return &fragment{extractor: s, name: Slice}, nil
}

// newSeededSlice cuts with the configured normal through the seed.
func newSeededSlice(p Params, seed field.Locator) (Element, error) {
	plane := p.Plane
	if seed.Valid() {
		plane = extract.PlaneThrough(seed.Position(), p.Plane.Normal)
	}
	s, err := extract.NewSlice(p.DataSet, p.Data, plane, p.extractOptions())
	if err != nil {
		return nil, err
	}
	return &fragment{extractor: s, name: Slice, seed: seed}, nil
}

type streamline struct {
	*trace.Streamline
	seed field.Locator
}

func (s *streamline) Name() string { return Streamline }

func (s *streamline) Start(pred incremental.Predicate) bool {
	return s.Streamline.Start(s.seed, pred)
}

func newStreamline(p Params, seed field.Locator) (Element, error) {
	opts := p.Trace
	if opts.Color == nil {
		opts.Color = p.Color
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = p.BlockSize
	}
	if opts.Logger == nil {
		opts.Logger = p.Logger
	}
	if opts.Metrics == nil {
		opts.Metrics = p.Metrics
	}
	return &streamline{Streamline: trace.NewStreamline(p.Data, opts), seed: seed}, nil
}

// Particle defaults used when Params leaves them zero.
const (
	DefaultParticles    = 1000
	DefaultParticleLife = 1.0
	DefaultParticleStep = 0.01
	DefaultMaxTicks     = 1000
)

type particles struct {
	p    Params
	sink *geometry.Sink
	ens  *trace.Ensemble
	rng  *rand.Rand
	done bool
}

func newParticles(p Params) (Element, error) {
	if p.Particles <= 0 {
		p.Particles = DefaultParticles
	}
	if p.ParticleLife <= 0 {
		p.ParticleLife = DefaultParticleLife
	}
	if p.ParticleStep <= 0 {
		p.ParticleStep = DefaultParticleStep
	}
	if p.MaxTicks <= 0 {
		p.MaxTicks = DefaultMaxTicks
	}
	return &particles{
		p:    p,
		sink: geometry.NewSink(geometry.Points, p.BlockSize),
		rng:  rand.New(rand.NewPCG(p.RandomSeed, p.RandomSeed^0x9e3779b97f4a7c15)),
		done: true,
	}, nil
}

func (e *particles) Name() string { return Particles }

func (e *particles) Sink() *geometry.Sink { return e.sink }

func (e *particles) Done() bool { return e.done }

// Start drops the previous ensemble and seeds a new one.
func (e *particles) Start(pred incremental.Predicate) bool {
	e.sink.Clear()
	e.ens = trace.NewEnsemble(e.p.DataSet, e.p.Data, trace.EnsembleOptions{
		Points:  e.sink,
		Color:   e.p.Color,
		Logger:  e.p.Logger,
		Metrics: e.p.Metrics,
	})
	e.ens.Seed(e.p.Particles, e.p.ParticleLife, e.rng)
	e.done = e.ens.Len() == 0
	return e.Continue(pred)
}

// Continue advances one tick per unit of work.
func (e *particles) Continue(pred incremental.Predicate) bool {
	if e.done {
		return true
	}
	return incremental.Run(incremental.StepFunc(e.tick), pred)
}

func (e *particles) tick() bool {
	if e.done {
		return false
	}
	e.ens.Advect(e.p.ParticleStep)
	e.done = e.ens.Len() == 0 || e.ens.Ticks() >= e.p.MaxTicks
	return !e.done
}

func (e *particles) Finish() { e.done = true }
