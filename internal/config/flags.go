package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Flags are the command-line overrides shared by the fieldx commands.
// Zero values leave the loaded configuration alone.
type Flags struct {
	Config    string
	Debug     bool
	Algorithm string
	Isovalue  optionalFloat
	Seed      string
	Scalar    string
	Vector    string
	Dims      string
	Output    string
	Listen    string
	Address   string
	Transport string
	Subject   string
	Metrics   string
}

// optionalFloat tells an explicit zero from an absent flag.
type optionalFloat struct {
	value float64
	set   bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(f.value, 'g', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.value, f.set = v, true
	return nil
}

// RegisterFlags binds the overrides to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.Algorithm, "algorithm", "", "Algorithm name")
	fs.Var(&f.Isovalue, "isovalue", "Isovalue")
	fs.StringVar(&f.Seed, "seed", "", "Seed point x,y,z")
	fs.StringVar(&f.Scalar, "scalar", "", "Analytic scalar field")
	fs.StringVar(&f.Vector, "vector", "", "Analytic vector field")
	fs.StringVar(&f.Dims, "dims", "", "Vertex counts, e.g. 33,33,33")
	fs.StringVar(&f.Output, "o", "", "Output OBJ file")
	fs.StringVar(&f.Listen, "listen", "", "Websocket listen address (master)")
	fs.StringVar(&f.Address, "addr", "", "Websocket URL (replica)")
	fs.StringVar(&f.Transport, "transport", "", "websocket or nats")
	fs.StringVar(&f.Subject, "subject", "", "NATS subject")
	fs.StringVar(&f.Metrics, "metrics", "", "Serve Prometheus metrics on this address")
	return f
}

// Apply applies CLI flag overrides to the config.
func (f *Flags) Apply(cfg *Config) error {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Algorithm != "" {
		cfg.Extraction.Algorithm = f.Algorithm
	}
	if f.Isovalue.set {
		cfg.Extraction.Isovalue = f.Isovalue.value
	}
	if f.Seed != "" {
		seed, err := parseFloats(f.Seed)
		if err != nil {
			return fmt.Errorf("%w: -seed: %v", ErrInvalid, err)
		}
		cfg.Extraction.Seed = seed
	}
	if f.Scalar != "" {
		cfg.Dataset.Scalar = f.Scalar
	}
	if f.Vector != "" {
		cfg.Dataset.Vector = f.Vector
	}
	if f.Dims != "" {
		dims, err := parseInts(f.Dims)
		if err != nil {
			return fmt.Errorf("%w: -dims: %v", ErrInvalid, err)
		}
		cfg.Dataset.Dimensions = dims
	}
	if f.Output != "" {
		cfg.Extraction.Output = f.Output
	}
	if f.Listen != "" {
		cfg.Cluster.Listen = f.Listen
	}
	if f.Address != "" {
		cfg.Cluster.Address = f.Address
	}
	if f.Transport != "" {
		cfg.Cluster.Transport = f.Transport
	}
	if f.Subject != "" {
		cfg.Cluster.Subject = f.Subject
	}
	if f.Metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = f.Metrics
	}
	return nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
