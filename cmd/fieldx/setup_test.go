package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/algorithm"
	"github.com/Faultbox/fieldx/internal/config"
	"github.com/Faultbox/fieldx/internal/grid"
)

func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.Dataset.Dimensions = []int{5, 5, 5}
	return cfg
}

func TestBuildDataSet(t *testing.T) {
	cfg := smallConfig()

	ds, data, err := buildDataSet(cfg.Dataset)
	require.NoError(t, err)
	assert.IsType(t, &grid.Structured{}, ds)
	assert.Equal(t, 125, ds.NumVertices())
	assert.Len(t, data.Scalars, 125)
	assert.Len(t, data.Vectors, 125)

	cfg.Dataset.Shape = "simplex"
	ds, _, err = buildDataSet(cfg.Dataset)
	require.NoError(t, err)
	assert.IsType(t, &grid.Simplex{}, ds)
	assert.Equal(t, 125, ds.NumVertices())

	cfg.Dataset.Vector = ""
	_, data, err = buildDataSet(cfg.Dataset)
	require.NoError(t, err)
	assert.Nil(t, data.Vectors)

	cfg.Dataset.Scalar = "nope"
	_, _, err = buildDataSet(cfg.Dataset)
	assert.ErrorIs(t, err, grid.ErrUnknownField)
}

func TestPlane(t *testing.T) {
	e := config.ExtractionConfig{PlaneNormal: [3]float64{0, 0, 2}, PlaneOffset: 0.25}
	pl := plane(e)
	assert.InDelta(t, 0, pl.Distance(r3.Vec{X: 0.3, Y: -0.7, Z: 0.25}), 1e-12)
	assert.Greater(t, pl.Distance(r3.Vec{Z: 1}), 0.0)

	pl = plane(config.ExtractionConfig{})
	assert.InDelta(t, 0, pl.Distance(r3.Vec{X: 1, Y: 1}), 1e-12)
}

func TestBuildParams(t *testing.T) {
	cfg := smallConfig()
	cfg.Extraction.Color = "x"
	cfg.Tracing.MaxSteps = 42

	p, err := buildParams(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Isovalue)
	assert.Equal(t, 42, p.Trace.MaxSteps)
	require.NotNil(t, p.Color)

	cfg.Extraction.Color = "nope"
	_, err = buildParams(cfg, nil, nil)
	assert.ErrorIs(t, err, grid.ErrUnknownField)
}

func TestNewElement(t *testing.T) {
	cfg := smallConfig()
	p, err := buildParams(cfg, nil, nil)
	require.NoError(t, err)

	el, err := newElement(cfg, p)
	require.NoError(t, err)
	assert.Equal(t, algorithm.Isosurface, el.Name())

	cfg.Extraction.Algorithm = algorithm.Particles
	cfg.Extraction.Seed = []float64{0.1, 0.1, 0.1}
	_, err = newElement(cfg, p)
	assert.ErrorIs(t, err, algorithm.ErrNoSeededCreator)

	cfg.Extraction.Algorithm = "nope"
	_, err = newElement(cfg, p)
	assert.ErrorIs(t, err, algorithm.ErrUnknownAlgorithm)
}

func TestExportOptions(t *testing.T) {
	cfg := smallConfig()
	assert.Nil(t, exportOptions(cfg).Transform)

	cfg.Dataset.Geodetic = true
	opts := exportOptions(cfg)
	require.NotNil(t, opts.Transform)
	// longitude 0, latitude 0 at sea level lies on the x axis
	p := opts.Transform(r3.Vec{})
	assert.InDelta(t, 6378137.0, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-6)
}

func TestLoadConfigFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extraction:\n  isovalue: 0.3\n"), 0644))

	cfg, fs, err := loadConfig("test", []string{"-config", path, "-algorithm", "slice", "-dims", "4,4", "out.yaml"})
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Extraction.Isovalue)
	assert.Equal(t, algorithm.Slice, cfg.Extraction.Algorithm)
	assert.Equal(t, []int{4, 4}, cfg.Dataset.Dimensions)
	assert.Equal(t, []string{"out.yaml"}, fs.Args())

	_, _, err = loadConfig("test", []string{"-config", path, "-dims", "1,4"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunExtract(t *testing.T) {
	cfg := smallConfig()
	cfg.Extraction.Output = filepath.Join(t.TempDir(), "sphere.obj")

	require.NoError(t, runExtract(cfg))
	data, err := os.ReadFile(cfg.Extraction.Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\nf ")
}
