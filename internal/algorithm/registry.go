// Package algorithm names the extraction algorithms, creates them from
// common parameters and drives them tick by tick.
package algorithm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/extract"
	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/incremental"
	"github.com/Faultbox/fieldx/internal/metrics"
	"github.com/Faultbox/fieldx/internal/trace"
)

var (
	// ErrUnknownAlgorithm is returned for a name nobody registered.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrNoGlobalCreator is returned when an algorithm cannot run over
	// the whole domain.
	ErrNoGlobalCreator = errors.New("algorithm has no global mode")
	// ErrNoSeededCreator is returned when an algorithm cannot start from
	// a seed point.
	ErrNoSeededCreator = errors.New("algorithm has no seeded mode")
)

// Element is a created algorithm instance. Start begins a run and
// Continue resumes it; both return true once no work is left. The sink
// stays readable after Finish.
type Element interface {
	Name() string
	Sink() *geometry.Sink
	Start(pred incremental.Predicate) bool
	Continue(pred incremental.Predicate) bool
	Done() bool
	Finish()
}

// Params carries the inputs every algorithm draws from.
type Params struct {
	DataSet field.DataSet
	// Data supplies the scalar (isosurface, slice) or vector (tracing)
	// field the algorithm works on.
	Data field.Extractor
	// Color, when set, supplies the scalar stored with each vertex.
	Color field.Extractor

	Isovalue float64
	Plane    extract.Plane
	Trace    trace.Options

	Particles    int
	ParticleLife float64
	ParticleStep float64 // advection dt per tick
	MaxTicks     int     // particle ticks before the ensemble stops
	RandomSeed   uint64

	BlockSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// GlobalCreator builds an instance that covers the whole domain.
type GlobalCreator func(p Params) (Element, error)

// SeededCreator builds an instance that starts from the located seed.
type SeededCreator func(p Params, seed field.Locator) (Element, error)

// Info describes one registered algorithm.
type Info struct {
	Name        string
	Description string
	Global      GlobalCreator
	Seeded      SeededCreator
}

// Registry maps names to algorithms.
type Registry struct {
	mu    sync.RWMutex
	infos map[string]Info
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{infos: make(map[string]Info)}
}

// Default holds the built-in algorithms.
var Default = NewRegistry()

// Register adds or replaces an algorithm.
func (r *Registry) Register(info Info) error {
	if info.Name == "" {
		return errors.New("register algorithm: empty name")
	}
	if info.Global == nil && info.Seeded == nil {
		return fmt.Errorf("register algorithm %q: no creator", info.Name)
	}
	r.mu.Lock()
	r.infos[info.Name] = info
	r.mu.Unlock()
	return nil
}

// Lookup returns the algorithm registered under name.
func (r *Registry) Lookup(name string) (Info, error) {
	r.mu.RLock()
	info, ok := r.infos[name]
	r.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return info, nil
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.infos))
	for n := range r.infos {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasGlobalCreator reports whether name can run over the whole domain.
func (r *Registry) HasGlobalCreator(name string) bool {
	info, err := r.Lookup(name)
	return err == nil && info.Global != nil
}

// HasSeededCreator reports whether name can start from a seed point.
func (r *Registry) HasSeededCreator(name string) bool {
	info, err := r.Lookup(name)
	return err == nil && info.Seeded != nil
}

// NewGlobal creates a whole-domain instance of name.
func (r *Registry) NewGlobal(name string, p Params) (Element, error) {
	info, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if info.Global == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoGlobalCreator, name)
	}
	return info.Global(p)
}

// NewSeeded creates an instance of name starting at seed. A seed outside
// the domain is not an error; the instance finishes empty.
func (r *Registry) NewSeeded(name string, p Params, seed r3.Vec) (Element, error) {
	info, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if info.Seeded == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSeededCreator, name)
	}
	if p.DataSet == nil {
		return nil, fmt.Errorf("creating %q: no data set", name)
	}
	loc := p.DataSet.NewLocator()
	loc.Locate(seed, false)
	return info.Seeded(p, loc)
}
