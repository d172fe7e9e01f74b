// Package config holds the run configuration of an optimization job and
// loads it from YAML or JSON.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/store"
)

// Kernel types.
const (
	KernelBirth    = "birth"
	KernelDeath    = "death"
	KernelMove     = "move"
	KernelDilate   = "dilate"
	KernelExchange = "exchange"
)

// Schedule types.
const (
	ScheduleConstant    = "constant"
	ScheduleGeometric   = "geometric"
	ScheduleLogarithmic = "logarithmic"
)

// Energy term types.
const (
	EnergyConstant = "constant"
	EnergyOverlap  = "overlap"
	EnergyContrast = "contrast"
)

// Store backends.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// RunConfig is the complete configuration of a run.
type RunConfig struct {
	// Seed of the first chain; chain i uses Seed+i.
	Seed   uint64 `json:"seed" yaml:"seed"`
	Chains int    `json:"chains" yaml:"chains"`

	Image       ImageConfig       `json:"image" yaml:"image"`
	Domain      DomainConfig      `json:"domain" yaml:"domain"`
	Marks       MarkConfig        `json:"marks" yaml:"marks"`
	Kernels     []KernelConfig    `json:"kernels" yaml:"kernels"`
	Schedule    ScheduleConfig    `json:"schedule" yaml:"schedule"`
	Termination TerminationConfig `json:"termination" yaml:"termination"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	Energy      EnergyConfig      `json:"energy" yaml:"energy"`
	Feedback    FeedbackConfig    `json:"feedback" yaml:"feedback"`
	Store       StoreConfig       `json:"store" yaml:"store"`
}

// ImageConfig selects the image the data energy is computed on.
type ImageConfig struct {
	// Paths lists the slices of the image stack, in depth order.
	Paths []string `json:"paths" yaml:"paths"`
	// Sigma is the Gaussian blur applied before sampling; 0 disables it.
	Sigma float64 `json:"sigma" yaml:"sigma"`
}

// DomainConfig bounds the mark centers. When empty and an image is set the
// image bounds are used.
type DomainConfig struct {
	Min [3]float64 `json:"min" yaml:"min"`
	Max [3]float64 `json:"max" yaml:"max"`
}

// IsZero reports whether no domain was configured.
func (d DomainConfig) IsZero() bool {
	return d.Min == [3]float64{} && d.Max == [3]float64{}
}

// MarkConfig describes the marks the prior produces.
type MarkConfig struct {
	Kind       string  `json:"kind" yaml:"kind"`
	MinRadius  float64 `json:"min_radius" yaml:"min_radius"`
	MaxRadius  float64 `json:"max_radius" yaml:"max_radius"`
	CoreRatio  float64 `json:"core_ratio" yaml:"core_ratio"`
	ShellRatio float64 `json:"shell_ratio" yaml:"shell_ratio"`
}

// RegionMap returns the configured region map.
func (m MarkConfig) RegionMap() mark.RegionMap {
	return mark.RegionMap{CoreRatio: m.CoreRatio, ShellRatio: m.ShellRatio}
}

// KernelConfig selects one kernel and its parameters. Parameters that do
// not apply to the type are ignored.
type KernelConfig struct {
	Type        string  `json:"type" yaml:"type"`
	Weight      float64 `json:"weight" yaml:"weight"`
	MaxShift    float64 `json:"max_shift,omitempty" yaml:"max_shift,omitempty"`
	MaxLogScale float64 `json:"max_log_scale,omitempty" yaml:"max_log_scale,omitempty"`
	Jitter      float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
}

// ScheduleConfig selects the annealing schedule.
type ScheduleConfig struct {
	Type    string  `json:"type" yaml:"type"`
	Initial float64 `json:"initial" yaml:"initial"`
	Rate    float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Floor   float64 `json:"floor,omitempty" yaml:"floor,omitempty"`
}

// TerminationConfig combines stop conditions; the run ends when any fires.
type TerminationConfig struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// MaxSize stops once the configuration holds that many marks; 0 disables.
	MaxSize int `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	// TimeLimit is a Go duration string such as "30s"; empty disables.
	TimeLimit     string        `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
	MaxNullStreak int           `json:"max_null_streak" yaml:"max_null_streak"`
	Plateau       PlateauConfig `json:"plateau" yaml:"plateau"`
}

// Duration parses TimeLimit.
func (t TerminationConfig) Duration() (time.Duration, error) {
	if t.TimeLimit == "" {
		return 0, nil
	}
	return time.ParseDuration(t.TimeLimit)
}

// PlateauConfig stops a run whose energy stopped improving. Patience 0 disables it.
type PlateauConfig struct {
	Patience       int     `json:"patience" yaml:"patience"`
	MinImprovement float64 `json:"min_improvement" yaml:"min_improvement"`
	Window         int     `json:"window" yaml:"window"`
}

// CacheConfig sizes the energy cache.
type CacheConfig struct {
	Size int `json:"size" yaml:"size"`
}

// EnergyConfig is a weighted sum of terms.
type EnergyConfig struct {
	Terms []EnergyTerm `json:"terms" yaml:"terms"`
}

// EnergyTerm is one weighted term.
type EnergyTerm struct {
	Type   string  `json:"type" yaml:"type"`
	Weight float64 `json:"weight" yaml:"weight"`
	// Unary and Binary are the values of a constant term.
	Unary  float64 `json:"unary,omitempty" yaml:"unary,omitempty"`
	Binary float64 `json:"binary,omitempty" yaml:"binary,omitempty"`
	// Threshold is the contrast a mark must exceed to lower the energy.
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Name identifies the energy for checkpoint compatibility, e.g. "contrast+overlap".
func (e EnergyConfig) Name() string {
	names := make([]string, len(e.Terms))
	for i, t := range e.Terms {
		names[i] = t.Type
	}
	return strings.Join(names, "+")
}

// NeedsImage reports whether a term samples the image.
func (e EnergyConfig) NeedsImage() bool {
	for _, t := range e.Terms {
		if t.Type == EnergyContrast {
			return true
		}
	}
	return false
}

// FeedbackConfig sets observer intervals in non-null iterations. Zero disables.
type FeedbackConfig struct {
	LogEvery        int `json:"log_every" yaml:"log_every"`
	TraceEvery      int `json:"trace_every" yaml:"trace_every"`
	SnapshotEvery   int `json:"snapshot_every" yaml:"snapshot_every"`
	CheckpointEvery int `json:"checkpoint_every" yaml:"checkpoint_every"`
	VerifyEvery     int `json:"verify_every" yaml:"verify_every"`
}

// StoreConfig selects where checkpoints and traces go.
type StoreConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	// Path is the base directory for fs, the database file for sqlite.
	// Traces go under Dir.
	Path string `json:"path" yaml:"path"`
	Dir  string `json:"dir" yaml:"dir"`
}

// Default returns a configuration that runs without any file: ellipses with
// an overlap penalty on a 256x256 domain.
func Default() RunConfig {
	return RunConfig{
		Seed:   1,
		Chains: 1,
		Image:  ImageConfig{Sigma: 1},
		Domain: DomainConfig{
			Min: [3]float64{0, 0, -0.5},
			Max: [3]float64{256, 256, 0.5},
		},
		Marks: MarkConfig{
			Kind:       string(mark.KindEllipse),
			MinRadius:  3,
			MaxRadius:  12,
			CoreRatio:  mark.DefaultRegionMap().CoreRatio,
			ShellRatio: mark.DefaultRegionMap().ShellRatio,
		},
		Kernels: []KernelConfig{
			{Type: KernelBirth, Weight: 0.25},
			{Type: KernelDeath, Weight: 0.25},
			{Type: KernelMove, Weight: 0.3, MaxShift: 4},
			{Type: KernelDilate, Weight: 0.1, MaxLogScale: 0.2},
			{Type: KernelExchange, Weight: 0.1, Jitter: 2},
		},
		Schedule: ScheduleConfig{Type: ScheduleGeometric, Initial: 1, Rate: 0.9995, Floor: 1e-4},
		Termination: TerminationConfig{
			MaxIterations: 20000,
			MaxNullStreak: 1000,
			Plateau:       PlateauConfig{MinImprovement: 1e-4, Window: 50},
		},
		Cache: CacheConfig{Size: 1 << 16},
		Energy: EnergyConfig{Terms: []EnergyTerm{
			{Type: EnergyConstant, Weight: 1, Unary: -1},
			{Type: EnergyOverlap, Weight: 5},
		}},
		Feedback: FeedbackConfig{LogEvery: 1000},
		Store:    StoreConfig{Backend: BackendFS, Path: "./data", Dir: "./data"},
	}
}

// Load reads a configuration file on top of Default, applies MPP_*
// environment overrides and validates the result.
func Load(path string) (RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	config, err := Parse(f)
	if err != nil {
		return config, fmt.Errorf("load config %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML (or JSON) on top of Default, applies environment
// overrides and validates. Unknown fields are errors.
func Parse(r io.Reader) (RunConfig, error) {
	config := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
			return config, fmt.Errorf("parse config: %w", err)
		}
	}
	ApplyEnv(&config)
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overrides fields from MPP_SEED, MPP_CHAINS, MPP_MAX_ITERATIONS,
// MPP_STORE_BACKEND and MPP_STORE_PATH. Malformed values are ignored.
func ApplyEnv(config *RunConfig) {
	if v := os.Getenv("MPP_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Seed = n
		}
	}
	if v := os.Getenv("MPP_CHAINS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chains = n
		}
	}
	if v := os.Getenv("MPP_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Termination.MaxIterations = n
		}
	}
	if v := os.Getenv("MPP_STORE_BACKEND"); v != "" {
		config.Store.Backend = v
	}
	if v := os.Getenv("MPP_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
}

// JobConfig returns the part of the configuration recorded with checkpoints.
func (c RunConfig) JobConfig() store.JobConfig {
	return store.JobConfig{
		ImagePath:       strings.Join(c.Image.Paths, ","),
		MarkKind:        c.Marks.Kind,
		Energy:          c.Energy.Name(),
		Iterations:      c.Termination.MaxIterations,
		Seed:            c.Seed,
		Chains:          c.Chains,
		CheckpointEvery: c.Feedback.CheckpointEvery,
	}
}

// Marshal encodes the configuration as YAML.
func (c RunConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
