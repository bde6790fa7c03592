// Package config holds the scheduler configuration described in spec §6:
// scheduler variant, fault tolerance, frame length, simulation grid and
// per-core frequency ratio.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is the sentinel wrapped by Validate when a field is out
// of range or internally inconsistent.
var ErrInvalidConfig = errors.New("invalid config")

// SchedulerType selects which scheduling algorithm a Config drives.
type SchedulerType string

const (
	FEST   SchedulerType = "FEST"
	EnSuRe SchedulerType = "EnSuRe"
)

// Config holds the tunable parameters of a scheduler run: which
// algorithm to use, the backup fan-out k, the frame/grid timing, the
// LP core count, and the LP/HP speed ratio.
type Config struct {
	SchedulerType SchedulerType `json:"scheduler_type" yaml:"scheduler_type"`
	K             int           `json:"k" yaml:"k"`
	Frame         float64       `json:"frame" yaml:"frame"`
	TimeStep      float64       `json:"time_step" yaml:"time_step"`
	NumLPCores    int           `json:"num_lp_cores" yaml:"num_lp_cores"`
	LPHPRatio     float64       `json:"lp_hp_ratio" yaml:"lp_hp_ratio"`
	LogDebug      bool          `json:"log_debug" yaml:"log_debug"`
}

// Default returns a Config with conservative, feasible defaults: a single
// LP core FEST run over a 100ms frame at a 1ms grid.
func Default() *Config {
	return &Config{
		SchedulerType: FEST,
		K:             1,
		Frame:         100,
		TimeStep:      1,
		NumLPCores:    1,
		LPHPRatio:     0.5,
		LogDebug:      false,
	}
}

// divEps bounds the floating-point tolerance used to check that TimeStep
// cleanly divides a duration. Every timing in a run (frame length,
// deadlines, slot lengths) must land on the tick grid.
const divEps = 1e-6

// Divides reports whether step evenly divides value within divEps.
func Divides(value, step float64) bool {
	if step <= 0 {
		return false
	}
	q := value / step
	return math.Abs(q-math.Round(q)) < divEps
}

// Validate rejects a Config that cannot drive a run, wrapping
// ErrInvalidConfig with the offending field.
func (c *Config) Validate() error {
	switch c.SchedulerType {
	case FEST, EnSuRe:
	default:
		return fmt.Errorf("%w: unknown scheduler_type %q", ErrInvalidConfig, c.SchedulerType)
	}
	if c.K < 0 {
		return fmt.Errorf("%w: k must be non-negative, got %d", ErrInvalidConfig, c.K)
	}
	if c.Frame <= 0 {
		return fmt.Errorf("%w: frame must be positive, got %v", ErrInvalidConfig, c.Frame)
	}
	if c.TimeStep <= 0 {
		return fmt.Errorf("%w: time_step must be positive, got %v", ErrInvalidConfig, c.TimeStep)
	}
	if !Divides(c.Frame, c.TimeStep) {
		return fmt.Errorf("%w: time_step %v does not divide frame %v", ErrInvalidConfig, c.TimeStep, c.Frame)
	}
	if c.NumLPCores < 1 {
		return fmt.Errorf("%w: num_lp_cores must be at least 1, got %d", ErrInvalidConfig, c.NumLPCores)
	}
	if c.SchedulerType == FEST && c.NumLPCores != 1 {
		return fmt.Errorf("%w: FEST requires exactly 1 LP core, got %d", ErrInvalidConfig, c.NumLPCores)
	}
	if c.LPHPRatio <= 0 || c.LPHPRatio > 1 {
		return fmt.Errorf("%w: lp_hp_ratio must be in (0,1], got %v", ErrInvalidConfig, c.LPHPRatio)
	}
	return nil
}

// LoadYAML reads and validates a Config from a YAML file.
func LoadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
