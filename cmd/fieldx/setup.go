package main

import (
	"errors"
	"flag"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/algorithm"
	"github.com/Faultbox/fieldx/internal/config"
	"github.com/Faultbox/fieldx/internal/export"
	"github.com/Faultbox/fieldx/internal/extract"
	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/internal/geodesy"
	"github.com/Faultbox/fieldx/internal/grid"
	"github.com/Faultbox/fieldx/internal/logger"
	"github.com/Faultbox/fieldx/internal/metrics"
	"github.com/Faultbox/fieldx/internal/trace"
)

// loadConfig parses a subcommand's flags and loads the configuration.
func loadConfig(name string, args []string) (*config.Config, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, fs, nil
}

func initLogging(cfg *config.Config) error {
	opts := logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: true,
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// buildDataSet creates the grid and samples the configured fields on it.
func buildDataSet(c config.DatasetConfig) (field.DataSet, *grid.Sampled, error) {
	g, err := grid.NewBox(vec(c.Min), vec(c.Max), c.Dimensions...)
	if err != nil {
		return nil, nil, err
	}
	var ds field.DataSet = g
	if c.Shape == "simplex" {
		if ds, err = grid.Subdivide(g); err != nil {
			return nil, nil, err
		}
	}

	var scalar grid.ScalarFunc
	if c.Scalar != "" {
		if scalar, err = grid.ScalarField(c.Scalar); err != nil {
			return nil, nil, err
		}
	}
	var vector grid.VectorFunc
	if c.Vector != "" {
		if vector, err = grid.VectorField(c.Vector); err != nil {
			return nil, nil, err
		}
	}
	return ds, grid.Sample(ds, scalar, vector), nil
}

// plane builds the slicing plane; a zero normal selects +z.
func plane(e config.ExtractionConfig) extract.Plane {
	n := vec(e.PlaneNormal)
	if r3.Norm(n) == 0 {
		n = r3.Vec{Z: 1}
	}
	return extract.PlaneThrough(r3.Scale(e.PlaneOffset/r3.Norm(n), n), n)
}

// buildParams maps the configuration onto algorithm parameters.
func buildParams(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (algorithm.Params, error) {
	ds, data, err := buildDataSet(cfg.Dataset)
	if err != nil {
		return algorithm.Params{}, err
	}
	p := algorithm.Params{
		DataSet:  ds,
		Data:     data,
		Isovalue: cfg.Extraction.Isovalue,
		Plane:    plane(cfg.Extraction),
		Trace: trace.Options{
			Epsilon:     cfg.Tracing.Epsilon,
			InitialStep: cfg.Tracing.InitialStep,
			MinStep:     cfg.Tracing.MinStep,
			MaxStep:     cfg.Tracing.MaxStep,
			MaxLength:   cfg.Tracing.MaxLength,
			MaxSteps:    cfg.Tracing.MaxSteps,
			Backward:    cfg.Tracing.Backward,
		},
		Particles:    cfg.Tracing.Particles,
		ParticleLife: cfg.Tracing.ParticleLife,
		ParticleStep: cfg.Tracing.ParticleStep,
		MaxTicks:     cfg.Tracing.MaxTicks,
		RandomSeed:   cfg.Tracing.RandomSeed,
		BlockSize:    cfg.Extraction.BlockSize,
		Logger:       log,
		Metrics:      m,
	}
	if cfg.Extraction.Color != "" {
		colorFn, err := grid.ScalarField(cfg.Extraction.Color)
		if err != nil {
			return algorithm.Params{}, err
		}
		p.Color = grid.Sample(ds, colorFn, nil)
	}
	return p, nil
}

// newElement creates the configured algorithm, seeded when a seed is set.
// A seed outside the domain still creates an element, which finishes empty.
func newElement(cfg *config.Config, p algorithm.Params) (algorithm.Element, error) {
	name := cfg.Extraction.Algorithm
	seed, ok := cfg.Seed()
	if !ok {
		return algorithm.Default.NewGlobal(name, p)
	}
	s, err := field.Probe(p.DataSet, p.Data, vec(seed))
	switch {
	case errors.Is(err, field.ErrOutsideDomain):
		logger.Warn("seed outside the data set", zap.Error(err))
	case err == nil:
		logger.Debug("seed located",
			zap.Int64("cell", int64(s.Cell)),
			zap.Float64("scalar", s.Scalar),
			zap.Float64("speed", r3.Norm(s.Vector)))
	}
	return algorithm.Default.NewSeeded(name, p, vec(seed))
}

func exportOptions(cfg *config.Config) export.Options {
	opts := export.Options{Name: cfg.Extraction.Algorithm}
	if cfg.Dataset.Geodetic {
		opts.Transform = geodesy.Projector{Ellipsoid: geodesy.WGS84}.Project
	}
	return opts
}
