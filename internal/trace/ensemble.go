package trace

import (
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/metrics"
	fxmath "github.com/Faultbox/fieldx/pkg/math"
)

// Particle is one advected point.
type Particle struct {
	Position r3.Vec
	Life     float64 // remaining life time
	loc      field.Locator
}

// EnsembleOptions configures a particle ensemble.
type EnsembleOptions struct {
	// Points, when set, receives one point per live particle after every
	// tick; the sink is cleared first.
	Points *geometry.Sink
	// Color supplies the point scalar; without it points carry the
	// remaining life time.
	Color   field.Extractor
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Ensemble advects independent particles with fixed-step classic RK4.
// Dead particles are removed by swapping in the last one, so Particles
// is unordered.
type Ensemble struct {
	ds        field.DataSet
	vectors   field.Extractor
	opts      EnsembleOptions
	log       *zap.Logger
	particles []Particle
	ticks     int
}

// NewEnsemble creates an empty ensemble.
func NewEnsemble(ds field.DataSet, vectors field.Extractor, opts EnsembleOptions) *Ensemble {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Ensemble{
		ds:      ds,
		vectors: vectors,
		opts:    opts,
		log:     log.Named("ensemble"),
	}
}

// Add inserts a particle at p. It returns false, adding nothing, when p
// is outside the domain or life is not positive.
func (e *Ensemble) Add(p r3.Vec, life float64) bool {
	if life <= 0 {
		return false
	}
	loc := e.ds.NewLocator()
	if !loc.Locate(p, false) {
		return false
	}
	e.particles = append(e.particles, Particle{Position: p, Life: life, loc: loc})
	e.opts.Metrics.ParticlesLive(len(e.particles))
	return true
}

// Seed adds n particles uniformly distributed in the data set bounds and
// returns how many landed inside the domain.
func (e *Ensemble) Seed(n int, life float64, rng *rand.Rand) int {
	lo, hi := e.ds.Bounds()
	added := 0
	for i := 0; i < n; i++ {
		p := r3.Vec{
			X: lo.X + rng.Float64()*(hi.X-lo.X),
			Y: lo.Y + rng.Float64()*(hi.Y-lo.Y),
			Z: lo.Z + rng.Float64()*(hi.Z-lo.Z),
		}
		if e.Add(p, life) {
			added++
		}
	}
	return added
}

// Len returns the live particle count.
func (e *Ensemble) Len() int { return len(e.particles) }

// NumPrimitives reports live particles, so MaxElements can bound seeding.
func (e *Ensemble) NumPrimitives() int { return len(e.particles) }

// Particles returns the live particles. The slice is reused by Advect.
func (e *Ensemble) Particles() []Particle { return e.particles }

// Ticks returns how many times Advect ran.
func (e *Ensemble) Ticks() int { return e.ticks }

// Advect moves every particle by one RK4 step of size dt and drops those
// that left the domain or ran out of life. It returns the number removed.
func (e *Ensemble) Advect(dt float64) int {
	removed := 0
	for i := 0; i < len(e.particles); {
		p := &e.particles[i]
		if e.advance(p, dt) {
			i++
			continue
		}
		last := len(e.particles) - 1
		e.particles[i] = e.particles[last]
		e.particles[last] = Particle{}
		e.particles = e.particles[:last]
		removed++
	}
	e.ticks++
	e.opts.Metrics.ParticlesRemoved(removed)
	e.opts.Metrics.ParticlesLive(len(e.particles))
	if removed > 0 {
		e.log.Debug("particles removed", zap.Int("removed", removed), zap.Int("live", len(e.particles)))
	}
	e.publish()
	return removed
}

// advance integrates one particle. It returns false when the particle
// must be removed.
func (e *Ensemble) advance(p *Particle, dt float64) bool {
	p.Life -= dt
	if p.Life <= 0 {
		return false
	}
	x := p.Position
	k1 := p.loc.Vector(e.vectors)
	k2, ok := e.sample(p, r3.Add(x, r3.Scale(dt/2, k1)))
	if !ok {
		return false
	}
	k3, ok := e.sample(p, r3.Add(x, r3.Scale(dt/2, k2)))
	if !ok {
		return false
	}
	k4, ok := e.sample(p, r3.Add(x, r3.Scale(dt, k3)))
	if !ok {
		return false
	}
	sum := r3.Add(r3.Add(k1, r3.Scale(2, k2)), r3.Add(r3.Scale(2, k3), k4))
	next := r3.Add(x, r3.Scale(dt/6, sum))
	if !p.loc.Locate(next, true) {
		return false
	}
	p.Position = next
	return true
}

func (e *Ensemble) sample(p *Particle, at r3.Vec) (r3.Vec, bool) {
	if !p.loc.Locate(at, true) {
		return r3.Vec{}, false
	}
	return p.loc.Vector(e.vectors), true
}

func (e *Ensemble) publish() {
	s := e.opts.Points
	if s == nil {
		return
	}
	s.Clear()
	for i := range e.particles {
		p := &e.particles[i]
		value := p.Life
		if e.opts.Color != nil {
			value = p.loc.Scalar(e.opts.Color)
		}
		*s.NextVertex() = geometry.Vertex{Position: fxmath.FromR3(p.Position), Value: float32(value)}
	}
	s.Commit()
}
