// Package trace advects points through vector fields: adaptive-step
// streamlines and fixed-step particle ensembles.
package trace

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/incremental"
	"github.com/Faultbox/fieldx/internal/metrics"
	fxmath "github.com/Faultbox/fieldx/pkg/math"
)

// Step size control.
const (
	safety    = 0.9
	maxShrink = 0.1
)

// Options configures a streamline.
type Options struct {
	Epsilon     float64 // local error tolerance per step
	InitialStep float64
	MinStep     float64
	MaxStep     float64
	MaxGrowth   float64 // bound on step growth after an accepted step
	MaxLength   float64 // arc length limit; 0 means unlimited
	MaxSteps    int     // accepted step limit
	// Backward integrates against the field direction.
	Backward bool
	// Color supplies the per-vertex scalar; without it vertices carry
	// the field magnitude.
	Color     field.Extractor
	BlockSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// DefaultOptions returns the tolerances used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Epsilon:     1e-6,
		InitialStep: 0.01,
		MinStep:     1e-6,
		MaxStep:     1,
		MaxGrowth:   5,
		MaxSteps:    100000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Epsilon <= 0 {
		o.Epsilon = d.Epsilon
	}
	if o.MinStep <= 0 {
		o.MinStep = d.MinStep
	}
	if o.MaxStep <= 0 {
		o.MaxStep = d.MaxStep
	}
	if o.MaxStep < o.MinStep {
		o.MaxStep = o.MinStep
	}
	if o.InitialStep <= 0 {
		o.InitialStep = d.InitialStep
	}
	o.InitialStep = math.Min(math.Max(o.InitialStep, o.MinStep), o.MaxStep)
	if o.MaxGrowth <= 1 {
		o.MaxGrowth = d.MaxGrowth
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Reason tells why a streamline stopped.
type Reason int

const (
	Running Reason = iota
	LengthReached
	StepLimit
	LeftDomain
	Diverged
	Stagnated
)

func (r Reason) String() string {
	switch r {
	case Running:
		return "running"
	case LengthReached:
		return "length reached"
	case StepLimit:
		return "step limit"
	case LeftDomain:
		return "left domain"
	case Diverged:
		return "diverged"
	case Stagnated:
		return "stagnated"
	default:
		return "unknown"
	}
}

// Streamline integrates one field line with the Cash-Karp embedded
// Runge-Kutta pair and appends every accepted point to a polyline sink.
type Streamline struct {
	vectors field.Extractor
	opts    Options
	sink    *geometry.Sink
	log     *zap.Logger

	loc    field.Locator // bound to the last accepted point
	trial  field.Locator
	pos    r3.Vec
	vel    r3.Vec
	h      float64
	length float64
	steps  int
	reason Reason
	active bool
}

// NewStreamline prepares a streamline through the vectors field.
func NewStreamline(vectors field.Extractor, opts Options) *Streamline {
	opts = opts.withDefaults()
	return &Streamline{
		vectors: vectors,
		opts:    opts,
		sink:    geometry.NewSink(geometry.Polyline, opts.BlockSize),
		log:     opts.Logger.Named("streamline"),
	}
}

// Sink returns the polyline.
func (s *Streamline) Sink() *geometry.Sink { return s.sink }

// Reason returns why integration stopped, or Running.
func (s *Streamline) Reason() Reason { return s.reason }

// Length returns the accepted arc length.
func (s *Streamline) Length() float64 { return s.length }

// Steps returns the number of accepted steps.
func (s *Streamline) Steps() int { return s.steps }

// StepSize returns the step size the next trial will use.
func (s *Streamline) StepSize() float64 { return s.h }

// Done reports whether integration has stopped.
func (s *Streamline) Done() bool { return !s.active }

// Start begins a new line at the located point. An invalid locator ends
// the line immediately with no vertices.
func (s *Streamline) Start(loc field.Locator, pred incremental.Predicate) bool {
	s.sink.Clear()
	s.length, s.steps = 0, 0
	s.h = s.opts.InitialStep
	if loc == nil || !loc.Valid() {
		s.stop(LeftDomain)
		return true
	}
	s.loc = loc.Clone()
	s.trial = loc.Clone()
	s.pos = loc.Position()
	s.vel = s.velocity(s.loc)
	s.reason = Running
	s.active = true
	s.emit()
	return s.Continue(pred)
}

// Continue integrates until the line ends or pred refuses.
func (s *Streamline) Continue(pred incremental.Predicate) bool {
	if !s.active {
		return true
	}
	return incremental.Run(s, pred)
}

// Finish releases the locators. The sink stays readable.
func (s *Streamline) Finish() {
	s.loc, s.trial = nil, nil
	s.active = false
}

// Step attempts trial steps until one is accepted or the line ends.
func (s *Streamline) Step() bool {
	if !s.active {
		return false
	}
	o := &s.opts
	if s.steps >= o.MaxSteps {
		return s.stop(StepLimit)
	}
	speed := r3.Norm(s.vel)
	if speed == 0 {
		return s.stop(Stagnated)
	}

	for {
		h := s.h
		if o.MaxLength > 0 {
			h = math.Max(math.Min(h, (o.MaxLength-s.length)/speed), o.MinStep)
		}
		next, errEst, ok := s.cashKarp(h)
		if !ok {
			o.Metrics.IntegrationStep("exited")
			return s.stop(LeftDomain)
		}
		if errEst > o.Epsilon {
			o.Metrics.IntegrationStep("rejected")
			if h <= o.MinStep {
				return s.stop(Diverged)
			}
			shrink := math.Max(safety*math.Pow(o.Epsilon/errEst, 0.25), maxShrink)
			s.h = math.Max(h*shrink, o.MinStep)
			continue
		}

		// The fifth-order point itself was never evaluated; it must be
		// inside the domain before it joins the path.
		if !s.loc.Locate(next, true) {
			o.Metrics.IntegrationStep("exited")
			return s.stop(LeftDomain)
		}
		o.Metrics.IntegrationStep("accepted")
		s.length += r3.Norm(r3.Sub(next, s.pos))
		s.pos = next
		s.vel = s.velocity(s.loc)
		s.steps++
		s.emit()

		grow := o.MaxGrowth
		if errEst > 0 {
			grow = math.Min(safety*math.Pow(o.Epsilon/errEst, 0.2), o.MaxGrowth)
		}
		s.h = math.Min(math.Max(h*grow, o.MinStep), o.MaxStep)

		if o.MaxLength > 0 && s.length >= o.MaxLength*(1-1e-12) {
			return s.stop(LengthReached)
		}
		return true
	}
}

func (s *Streamline) stop(r Reason) bool {
	s.reason = r
	s.active = false
	s.log.Debug("streamline ended",
		zap.Stringer("reason", r),
		zap.Int("steps", s.steps),
		zap.Float64("length", s.length))
	return false
}

func (s *Streamline) velocity(loc field.Locator) r3.Vec {
	v := loc.Vector(s.vectors)
	if s.opts.Backward {
		v = r3.Scale(-1, v)
	}
	return v
}

func (s *Streamline) emit() {
	value := r3.Norm(s.vel)
	if s.opts.Color != nil {
		value = s.loc.Scalar(s.opts.Color)
	}
	*s.sink.NextVertex() = geometry.Vertex{Position: fxmath.FromR3(s.pos), Value: float32(value)}
	s.sink.Commit()
}

// Cash-Karp tableau.
var (
	ckA = [6][5]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{3.0 / 10, -9.0 / 10, 6.0 / 5},
		{-11.0 / 54, 5.0 / 2, -70.0 / 27, 35.0 / 27},
		{1631.0 / 55296, 175.0 / 512, 575.0 / 13824, 44275.0 / 110592, 253.0 / 4096},
	}
	ckB5 = [6]float64{37.0 / 378, 0, 250.0 / 621, 125.0 / 594, 0, 512.0 / 1771}
	ckB4 = [6]float64{2825.0 / 27648, 0, 18575.0 / 48384, 13525.0 / 55296, 277.0 / 14336, 1.0 / 4}
)

// cashKarp evaluates one trial step of size h from the current point. It
// returns the fifth-order point and the distance to the fourth-order one;
// ok is false when a stage point lies outside the domain.
func (s *Streamline) cashKarp(h float64) (next r3.Vec, errEst float64, ok bool) {
	var k [6]r3.Vec
	k[0] = s.vel
	for i := 1; i < 6; i++ {
		p := s.pos
		for j := 0; j < i; j++ {
			p = r3.Add(p, r3.Scale(h*ckA[i][j], k[j]))
		}
		if !s.trial.Locate(p, true) {
			// Re-anchor the trial locator for the next attempt.
			s.trial = s.loc.Clone()
			return r3.Vec{}, 0, false
		}
		k[i] = s.velocity(s.trial)
	}
	next = s.pos
	var diff r3.Vec
	for i := range k {
		next = r3.Add(next, r3.Scale(h*ckB5[i], k[i]))
		diff = r3.Add(diff, r3.Scale(h*(ckB5[i]-ckB4[i]), k[i]))
	}
	return next, r3.Norm(diff), true
}
