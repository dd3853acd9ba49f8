package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Dataset.Shape != "structured" {
		t.Errorf("expected shape structured, got %s", cfg.Dataset.Shape)
	}
	if len(cfg.Dataset.Dimensions) != 3 || cfg.Dataset.Dimensions[0] != 33 {
		t.Errorf("expected 33^3 grid, got %v", cfg.Dataset.Dimensions)
	}
	if cfg.Extraction.Algorithm != "isosurface" {
		t.Errorf("expected algorithm isosurface, got %s", cfg.Extraction.Algorithm)
	}
	if cfg.Tracing.Epsilon != 1e-6 {
		t.Errorf("expected epsilon 1e-6, got %g", cfg.Tracing.Epsilon)
	}
	if cfg.Execution.Tick != 20*time.Millisecond {
		t.Errorf("expected tick 20ms, got %v", cfg.Execution.Tick)
	}
	if cfg.Cluster.Role != "standalone" {
		t.Errorf("expected role standalone, got %s", cfg.Cluster.Role)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled by default")
	}
	if _, ok := cfg.Seed(); ok {
		t.Error("expected no seed by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "fieldx.yaml")

	yamlContent := `
dataset:
  shape: simplex
  dimensions: [9, 9]
  min: [0, 0, 0]
  max: [2, 1, 0]
  scalar: saddle

extraction:
  algorithm: slice
  plane_normal: [1, 0, 0]
  plane_offset: 0.25
  seed: [0.5, 0.5, 0]

tracing:
  epsilon: 1e-4
  backward: true

execution:
  tick: 5ms
  max_elements: 5000

cluster:
  role: master
  transport: nats
  subject: fields.demo

logging:
  level: debug
  format: json
  log_file: fieldx.log

metrics:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Dataset.Shape != "simplex" {
		t.Errorf("expected shape simplex, got %s", cfg.Dataset.Shape)
	}
	if len(cfg.Dataset.Dimensions) != 2 {
		t.Errorf("expected planar dimensions, got %v", cfg.Dataset.Dimensions)
	}
	if cfg.Dataset.Max != [3]float64{2, 1, 0} {
		t.Errorf("expected max [2 1 0], got %v", cfg.Dataset.Max)
	}
	if cfg.Dataset.Vector != "vortex" {
		t.Errorf("expected vector kept from defaults, got %s", cfg.Dataset.Vector)
	}
	if cfg.Extraction.PlaneOffset != 0.25 {
		t.Errorf("expected plane offset 0.25, got %g", cfg.Extraction.PlaneOffset)
	}
	if seed, ok := cfg.Seed(); !ok || seed != [3]float64{0.5, 0.5, 0} {
		t.Errorf("expected seed, got %v %v", seed, ok)
	}
	if cfg.Tracing.Epsilon != 1e-4 || !cfg.Tracing.Backward {
		t.Errorf("unexpected tracing %+v", cfg.Tracing)
	}
	if cfg.Tracing.MaxSteps != 100000 {
		t.Errorf("expected max steps kept from defaults, got %d", cfg.Tracing.MaxSteps)
	}
	if cfg.Execution.Tick != 5*time.Millisecond {
		t.Errorf("expected tick 5ms, got %v", cfg.Execution.Tick)
	}
	if cfg.Cluster.Transport != "nats" || cfg.Cluster.Subject != "fields.demo" {
		t.Errorf("unexpected cluster %+v", cfg.Cluster)
	}
	if cfg.Logging.LogFile != "fieldx.log" {
		t.Errorf("expected log file 'fieldx.log', got %s", cfg.Logging.LogFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config does not validate: %v", err)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "dataset:\n  dimensions: not a list\n  invalid syntax here\n"},
		{"unknown key", "dataset:\n  colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "invalid.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			err := loadFromFile(Default(), path)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		t.Errorf("expected empty file to keep defaults, got %v", err)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if err := loadFromFile(Default(), "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"shape", func(c *Config) { c.Dataset.Shape = "octree" }},
		{"one dimension", func(c *Config) { c.Dataset.Dimensions = []int{4} }},
		{"degenerate axis", func(c *Config) { c.Dataset.Dimensions = []int{4, 1, 4} }},
		{"empty box", func(c *Config) { c.Dataset.Max[1] = c.Dataset.Min[1] }},
		{"no algorithm", func(c *Config) { c.Extraction.Algorithm = "" }},
		{"short seed", func(c *Config) { c.Extraction.Seed = []float64{1, 2} }},
		{"negative epsilon", func(c *Config) { c.Tracing.Epsilon = -1 }},
		{"min above max step", func(c *Config) { c.Tracing.MinStep = 2 }},
		{"negative tick", func(c *Config) { c.Execution.Tick = -time.Second }},
		{"role", func(c *Config) { c.Cluster.Role = "leader" }},
		{"transport", func(c *Config) { c.Cluster.Transport = "carrier-pigeon" }},
		{"nats subject", func(c *Config) {
			c.Cluster.Transport = "nats"
			c.Cluster.Subject = ""
		}},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "fieldx.yaml"), []byte("extraction:\n  isovalue: 0.3\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path == "" {
		t.Error("expected to find fieldx.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(*testing.T, *Config)
	}{
		{
			name: "debug",
			args: []string{"-debug"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name: "explicit zero isovalue",
			args: []string{"-isovalue", "0"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Extraction.Isovalue != 0 {
					t.Errorf("expected isovalue 0, got %g", cfg.Extraction.Isovalue)
				}
			},
		},
		{
			name: "seed and dims",
			args: []string{"-seed", "0.1, 0.2,0.3", "-dims", "5,6"},
			verify: func(t *testing.T, cfg *Config) {
				if seed, ok := cfg.Seed(); !ok || seed != [3]float64{0.1, 0.2, 0.3} {
					t.Errorf("unexpected seed %v", cfg.Extraction.Seed)
				}
				if len(cfg.Dataset.Dimensions) != 2 || cfg.Dataset.Dimensions[1] != 6 {
					t.Errorf("unexpected dims %v", cfg.Dataset.Dimensions)
				}
			},
		},
		{
			name: "cluster",
			args: []string{"-transport", "nats", "-subject", "s", "-addr", "ws://h/x", "-listen", ":1"},
			verify: func(t *testing.T, cfg *Config) {
				c := cfg.Cluster
				if c.Transport != "nats" || c.Subject != "s" || c.Address != "ws://h/x" || c.Listen != ":1" {
					t.Errorf("unexpected cluster %+v", c)
				}
			},
		},
		{
			name: "metrics",
			args: []string{"-metrics", ":9999"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9999" {
					t.Errorf("unexpected metrics %+v", cfg.Metrics)
				}
			},
		},
		{
			name: "nothing",
			args: nil,
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Extraction.Isovalue != 0.5 {
					t.Errorf("expected default isovalue, got %g", cfg.Extraction.Isovalue)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			f := RegisterFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}
			cfg := Default()
			if err := f.Apply(cfg); err != nil {
				t.Fatalf("apply: %v", err)
			}
			tt.verify(t, cfg)
		})
	}
}

func TestApplyFlagsBadSeed(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-seed", "a,b,c"}); err != nil {
		t.Fatal(err)
	}
	if err := f.Apply(Default()); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
extraction:
  isovalue: 0.8
  algorithm: slice
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-config", configPath, "-isovalue", "0.2"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	// flag beats file
	if cfg.Extraction.Isovalue != 0.2 {
		t.Errorf("expected isovalue 0.2 from flag, got %g", cfg.Extraction.Isovalue)
	}
	// file beats default
	if cfg.Extraction.Algorithm != "slice" {
		t.Errorf("expected algorithm slice from file, got %s", cfg.Extraction.Algorithm)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-transport", "smoke"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(f); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fieldx.yaml")
	cfg := Default()
	cfg.Extraction.Seed = []float64{1, 2, 3}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	back := Default()
	if err := loadFromFile(back, path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s, ok := back.Seed(); !ok || s != [3]float64{1, 2, 3} {
		t.Errorf("seed did not survive save, got %v", back.Extraction.Seed)
	}
	if back.Execution.Tick != cfg.Execution.Tick {
		t.Errorf("tick did not survive save, got %v", back.Execution.Tick)
	}
}
