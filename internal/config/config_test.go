package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	yamlConfig := `
seed: 7
chains: 4
marks:
  kind: ellipsoid
  min_radius: 2
  max_radius: 5
domain:
  min: [0, 0, 0]
  max: [64, 64, 16]
kernels:
  - type: birth
    weight: 1
  - type: death
    weight: 1
schedule:
  type: logarithmic
  initial: 3
termination:
  max_iterations: 500
  time_limit: 2m
energy:
  terms:
    - type: overlap
      weight: 2
`
	c, err := Parse(strings.NewReader(yamlConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Seed != 7 || c.Chains != 4 || c.Marks.Kind != "ellipsoid" {
		t.Errorf("Top-level fields not applied: %+v", c)
	}
	if len(c.Kernels) != 2 {
		t.Errorf("Kernel list should replace the default, got %d kernels", len(c.Kernels))
	}
	if c.Termination.MaxNullStreak != Default().Termination.MaxNullStreak {
		t.Error("Unset fields should keep their defaults")
	}
	if d, _ := c.Termination.Duration(); d.Minutes() != 2 {
		t.Errorf("Expected 2m time limit, got %v", d)
	}
	if c.Energy.Name() != "overlap" {
		t.Errorf("Unexpected energy name %q", c.Energy.Name())
	}
	if c.Marks.CoreRatio != Default().Marks.CoreRatio {
		t.Error("Region ratios should keep defaults")
	}
}

func TestParse_AcceptsJSON(t *testing.T) {
	c, err := Parse(strings.NewReader(`{"seed": 3, "termination": {"max_iterations": 10}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Seed != 3 || c.Termination.MaxIterations != 10 {
		t.Errorf("JSON not applied: seed %d, iterations %d", c.Seed, c.Termination.MaxIterations)
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	if _, err := Parse(strings.NewReader("sead: 3\n")); err == nil {
		t.Error("Expected an error for an unknown field")
	}
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse(strings.NewReader("  \n"))
	if err != nil {
		t.Fatalf("Empty input should yield defaults, got %v", err)
	}
	if c.Seed != Default().Seed {
		t.Errorf("Expected default seed, got %d", c.Seed)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("seed: 11\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Seed != 11 {
		t.Errorf("Expected seed 11, got %d", c.Seed)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MPP_SEED", "99")
	t.Setenv("MPP_CHAINS", "3")
	t.Setenv("MPP_MAX_ITERATIONS", "not-a-number")
	t.Setenv("MPP_STORE_BACKEND", "sqlite")
	t.Setenv("MPP_STORE_PATH", "/tmp/cp.db")

	c := Default()
	ApplyEnv(&c)
	if c.Seed != 99 || c.Chains != 3 || c.Store.Backend != "sqlite" || c.Store.Path != "/tmp/cp.db" {
		t.Errorf("Env overrides not applied: %+v", c)
	}
	if c.Termination.MaxIterations != Default().Termination.MaxIterations {
		t.Error("Malformed values should be ignored")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RunConfig)
		field  string
	}{
		{"zero chains", func(c *RunConfig) { c.Chains = 0 }, "chains"},
		{"no domain", func(c *RunConfig) { c.Domain = DomainConfig{} }, "domain"},
		{"flat domain", func(c *RunConfig) { c.Domain.Max[1] = c.Domain.Min[1] }, "domain"},
		{"point cloud prior", func(c *RunConfig) { c.Marks.Kind = "pointcloud" }, "marks.kind"},
		{"radius range", func(c *RunConfig) { c.Marks.MaxRadius = 1 }, "marks.min_radius"},
		{"regions", func(c *RunConfig) { c.Marks.CoreRatio = 1 }, "marks"},
		{"no kernels", func(c *RunConfig) { c.Kernels = nil }, "kernels"},
		{"zero weight", func(c *RunConfig) { c.Kernels[0].Weight = 0 }, "kernels[0].weight"},
		{"unknown kernel", func(c *RunConfig) { c.Kernels[1].Type = "split" }, "kernels[1].type"},
		{"move without shift", func(c *RunConfig) { c.Kernels[2].MaxShift = 0 }, "kernels[2].max_shift"},
		{"bad rate", func(c *RunConfig) { c.Schedule.Rate = 1.5 }, "schedule.rate"},
		{"unknown schedule", func(c *RunConfig) { c.Schedule.Type = "linear" }, "schedule.type"},
		{"no iterations", func(c *RunConfig) { c.Termination.MaxIterations = 0 }, "termination.max_iterations"},
		{"bad time limit", func(c *RunConfig) { c.Termination.TimeLimit = "soon" }, "termination.time_limit"},
		{"unknown energy", func(c *RunConfig) { c.Energy.Terms[0].Type = "gravity" }, "energy.terms[0].type"},
		{"contrast without image", func(c *RunConfig) {
			c.Energy.Terms = []EnergyTerm{{Type: EnergyContrast, Weight: 1}}
		}, "image.paths"},
		{"negative interval", func(c *RunConfig) { c.Feedback.TraceEvery = -1 }, "feedback"},
		{"unknown backend", func(c *RunConfig) { c.Store.Backend = "s3" }, "store.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %s, got %s (%v)", tt.field, verr.Field, err)
			}
		})
	}
}

func TestJobConfig(t *testing.T) {
	c := Default()
	c.Image.Paths = []string{"a.png", "b.png"}
	j := c.JobConfig()
	if j.ImagePath != "a.png,b.png" || j.MarkKind != "ellipse" || j.Energy != "constant+overlap" {
		t.Errorf("Unexpected job config %+v", j)
	}
	if j.Iterations != c.Termination.MaxIterations || j.Seed != c.Seed {
		t.Errorf("Budget fields not copied: %+v", j)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	c, err := Parse(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("Marshalled default does not parse: %v", err)
	}
	if c.Energy.Name() != Default().Energy.Name() || len(c.Kernels) != len(Default().Kernels) {
		t.Errorf("Round trip changed the config: %+v", c)
	}
}
