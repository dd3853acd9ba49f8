// Package config handles fieldx configuration: defaults, a YAML file and
// command-line overrides, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all settings of one fieldx run.
type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DatasetConfig describes the grid and the analytic fields sampled on it.
type DatasetConfig struct {
	// Shape is "structured" (quads or hexahedra) or "simplex" (the same
	// grid split into triangles or tetrahedra).
	Shape string `yaml:"shape"`
	// Dimensions holds vertex counts per axis; two entries make a planar
	// grid.
	Dimensions []int      `yaml:"dimensions"`
	Min        [3]float64 `yaml:"min"`
	Max        [3]float64 `yaml:"max"`
	Scalar     string     `yaml:"scalar"`
	Vector     string     `yaml:"vector"`
	// Geodetic reads x, y, z as longitude, latitude (degrees) and height
	// (metres) and writes earth-centred output.
	Geodetic bool `yaml:"geodetic"`
}

// ExtractionConfig selects the algorithm and its inputs.
type ExtractionConfig struct {
	Algorithm   string     `yaml:"algorithm"`
	Isovalue    float64    `yaml:"isovalue"`
	PlaneNormal [3]float64 `yaml:"plane_normal"`
	PlaneOffset float64    `yaml:"plane_offset"`
	// Seed starts a seeded extraction when set; it needs three values.
	Seed []float64 `yaml:"seed"`
	// Color names a scalar field stored with every vertex.
	Color     string `yaml:"color"`
	BlockSize int    `yaml:"block_size"`
	Output    string `yaml:"output"`
}

// TracingConfig holds integrator tolerances and particle settings.
type TracingConfig struct {
	Epsilon      float64 `yaml:"epsilon"`
	InitialStep  float64 `yaml:"initial_step"`
	MinStep      float64 `yaml:"min_step"`
	MaxStep      float64 `yaml:"max_step"`
	MaxLength    float64 `yaml:"max_length"`
	MaxSteps     int     `yaml:"max_steps"`
	Backward     bool    `yaml:"backward"`
	Particles    int     `yaml:"particles"`
	ParticleLife float64 `yaml:"particle_life"`
	ParticleStep float64 `yaml:"particle_step"`
	MaxTicks     int     `yaml:"max_ticks"`
	RandomSeed   uint64  `yaml:"random_seed"`
}

// ExecutionConfig bounds incremental execution.
type ExecutionConfig struct {
	Tick        time.Duration `yaml:"tick"`
	MaxElements int           `yaml:"max_elements"`
}

// ClusterConfig selects the replication role and transport.
type ClusterConfig struct {
	Role      string `yaml:"role"`      // standalone, master or replica
	Transport string `yaml:"transport"` // websocket or nats
	// Listen is the master's websocket address, Address the replica's
	// websocket URL.
	Listen       string        `yaml:"listen"`
	Address      string        `yaml:"address"`
	NATSURL      string        `yaml:"nats_url"`
	Subject      string        `yaml:"subject"`
	MaxBatch     int           `yaml:"max_batch"`
	QueueSize    int           `yaml:"queue_size"`
	WaitReplicas int           `yaml:"wait_replicas"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	LogFile string `yaml:"log_file"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Shape:      "structured",
			Dimensions: []int{33, 33, 33},
			Min:        [3]float64{-1, -1, -1},
			Max:        [3]float64{1, 1, 1},
			Scalar:     "sphere",
			Vector:     "vortex",
		},
		Extraction: ExtractionConfig{
			Algorithm:   "isosurface",
			Isovalue:    0.5,
			PlaneNormal: [3]float64{0, 0, 1},
			Output:      "out.obj",
		},
		Tracing: TracingConfig{
			Epsilon:      1e-6,
			InitialStep:  0.01,
			MinStep:      1e-6,
			MaxStep:      1,
			MaxSteps:     100000,
			Particles:    1000,
			ParticleLife: 1,
			ParticleStep: 0.01,
			MaxTicks:     1000,
		},
		Execution: ExecutionConfig{
			Tick: 20 * time.Millisecond,
		},
		Cluster: ClusterConfig{
			Role:        "standalone",
			Transport:   "websocket",
			Listen:      ":7400",
			Address:     "ws://127.0.0.1:7400/stream",
			NATSURL:     "nats://127.0.0.1:4222",
			Subject:     "fieldx.stream",
			MaxBatch:    4096,
			QueueSize:   256,
			WaitTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Listen: ":9400",
			Path:   "/metrics",
		},
	}
}

// Seed returns the seed point and whether one is configured.
func (c *Config) Seed() ([3]float64, bool) {
	if len(c.Extraction.Seed) != 3 {
		return [3]float64{}, false
	}
	return [3]float64{c.Extraction.Seed[0], c.Extraction.Seed[1], c.Extraction.Seed[2]}, true
}

// Validate checks values the rest of the program relies on. Algorithm
// and field names are checked where they are resolved.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	d := c.Dataset
	switch d.Shape {
	case "structured", "simplex":
	default:
		bad("dataset.shape %q", d.Shape)
	}
	if n := len(d.Dimensions); n != 2 && n != 3 {
		bad("dataset.dimensions needs 2 or 3 entries, got %d", n)
	}
	for i, n := range d.Dimensions {
		if n < 2 {
			bad("dataset.dimensions[%d] = %d, need at least 2", i, n)
		}
	}
	for a := 0; a < len(d.Dimensions) && a < 3; a++ {
		if d.Max[a] <= d.Min[a] {
			bad("dataset max[%d] %g not above min %g", a, d.Max[a], d.Min[a])
		}
	}

	e := c.Extraction
	if e.Algorithm == "" {
		bad("extraction.algorithm is empty")
	}
	if n := len(e.Seed); n != 0 && n != 3 {
		bad("extraction.seed needs 3 values, got %d", n)
	}
	if e.BlockSize < 0 {
		bad("extraction.block_size %d", e.BlockSize)
	}

	t := c.Tracing
	if t.Epsilon < 0 || t.MinStep < 0 || t.MaxStep < 0 || t.InitialStep < 0 {
		bad("tracing tolerances must not be negative")
	}
	if t.MaxStep > 0 && t.MinStep > t.MaxStep {
		bad("tracing.min_step %g above max_step %g", t.MinStep, t.MaxStep)
	}
	if t.Particles < 0 || t.MaxTicks < 0 {
		bad("tracing particle counts must not be negative")
	}

	if c.Execution.Tick < 0 {
		bad("execution.tick %v", c.Execution.Tick)
	}
	if c.Execution.MaxElements < 0 {
		bad("execution.max_elements %d", c.Execution.MaxElements)
	}

	cl := c.Cluster
	switch cl.Role {
	case "standalone", "master", "replica":
	default:
		bad("cluster.role %q", cl.Role)
	}
	switch cl.Transport {
	case "websocket", "nats":
	default:
		bad("cluster.transport %q", cl.Transport)
	}
	if cl.Transport == "nats" && cl.Subject == "" {
		bad("cluster.subject is empty")
	}
	if cl.MaxBatch < 0 || cl.QueueSize < 0 || cl.WaitReplicas < 0 {
		bad("cluster sizes must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		bad("logging.format %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}
