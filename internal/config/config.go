// Package config provides unified configuration loading for episim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the episim directory.
const FileName = "config.yaml"

// Config contains all episim configuration settings.
type Config struct {
	// Simulation holds defaults applied to every run before parameter
	// overrides.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Ensemble controls multi-run execution and reduction.
	Ensemble EnsembleConfig `json:"ensemble" yaml:"ensemble"`

	// Storage controls where run history is kept.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Output controls result files written by the CLI.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig sets run defaults.
type SimulationConfig struct {
	Seed    int64  `json:"seed" yaml:"seed"`
	PopType string `json:"pop_type" yaml:"pop_type"`
}

// EnsembleConfig sets multi-run defaults.
type EnsembleConfig struct {
	Runs    int `json:"runs" yaml:"runs"`
	Workers int `json:"workers" yaml:"workers"`

	// UseMean reduces with mean ± K standard deviations instead of the
	// median and the Low/High quantiles.
	UseMean bool    `json:"use_mean" yaml:"use_mean"`
	K       float64 `json:"k" yaml:"k"`
	Low     float64 `json:"low" yaml:"low"`
	High    float64 `json:"high" yaml:"high"`
}

// StorageConfig configures run history.
type StorageConfig struct {
	// Dir holds episim.db. Empty means ~/.episim.
	Dir string `json:"dir" yaml:"dir"`

	// Disabled turns off saving runs to history.
	Disabled bool `json:"disabled" yaml:"disabled"`
}

// OutputConfig configures result files.
type OutputConfig struct {
	Dir    string `json:"dir" yaml:"dir"`
	Format string `json:"format" yaml:"format"` // "json" or "arrow"

	// MetricsFile, when set, receives Prometheus text-format metrics after
	// each CLI run.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

// LoggingConfig configures episim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug", or "trace". "debug" and "trace" also write events.jsonl
	// into Dir.
	Level string `json:"level" yaml:"level"`
	Dir   string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:    1,
			PopType: "random",
		},
		Ensemble: EnsembleConfig{
			Runs:    10,
			Workers: 1,
			K:       2,
			Low:     0.1,
			High:    0.9,
		},
		Output: OutputConfig{
			Dir:    ".",
			Format: "json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.episim/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".episim", FileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.episim/config.yaml -> environment variables
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return LoadPath(path)
}

// LoadPath is Load with an explicit config file. A missing file is not an
// error.
func LoadPath(path string) (*Config, error) {
	cfg := Default()
	if _, statErr := os.Stat(path); statErr == nil {
		fileConfig, loadErr := LoadFromFile(path)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		cfg = fileConfig
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Storage.Dir = expandEnvVars(cfg.Storage.Dir)
	cfg.Output.Dir = expandEnvVars(cfg.Output.Dir)
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Simulation.PopType != "" && c.Simulation.PopType != "random" && c.Simulation.PopType != "hybrid" {
		return fmt.Errorf("invalid pop_type: %s (valid: random, hybrid)", c.Simulation.PopType)
	}
	if c.Ensemble.Runs < 1 {
		return fmt.Errorf("ensemble runs must be at least 1, got %d", c.Ensemble.Runs)
	}
	if c.Ensemble.Workers < 0 {
		return fmt.Errorf("ensemble workers must be non-negative, got %d", c.Ensemble.Workers)
	}
	if c.Ensemble.UseMean {
		if c.Ensemble.K < 0 {
			return fmt.Errorf("ensemble k must be non-negative, got %f", c.Ensemble.K)
		}
	} else if c.Ensemble.Low < 0 || c.Ensemble.High > 1 || c.Ensemble.Low > c.Ensemble.High {
		return fmt.Errorf("ensemble quantiles must satisfy 0 <= low <= high <= 1, got %f and %f", c.Ensemble.Low, c.Ensemble.High)
	}

	switch c.Output.Format {
	case "json", "arrow":
	default:
		return fmt.Errorf("invalid output format: %s (valid: json, arrow)", c.Output.Format)
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// setters maps dot-notation keys to string parsers. Get reads through
// values.
var setters = map[string]func(*Config, string) error{
	"simulation.seed": func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s", v)
		}
		c.Simulation.Seed = n
		return nil
	},
	"simulation.pop_type": func(c *Config, v string) error { c.Simulation.PopType = v; return nil },
	"ensemble.runs":       intSetter(func(c *Config) *int { return &c.Ensemble.Runs }),
	"ensemble.workers":    intSetter(func(c *Config) *int { return &c.Ensemble.Workers }),
	"ensemble.use_mean":   func(c *Config, v string) error { c.Ensemble.UseMean = parseBool(v); return nil },
	"ensemble.k":          floatSetter(func(c *Config) *float64 { return &c.Ensemble.K }),
	"ensemble.low":        floatSetter(func(c *Config) *float64 { return &c.Ensemble.Low }),
	"ensemble.high":       floatSetter(func(c *Config) *float64 { return &c.Ensemble.High }),
	"storage.dir":         func(c *Config, v string) error { c.Storage.Dir = v; return nil },
	"storage.disabled":    func(c *Config, v string) error { c.Storage.Disabled = parseBool(v); return nil },
	"output.dir":          func(c *Config, v string) error { c.Output.Dir = v; return nil },
	"output.format":       func(c *Config, v string) error { c.Output.Format = v; return nil },
	"output.metrics_file": func(c *Config, v string) error { c.Output.MetricsFile = v; return nil },
	"logging.level":       func(c *Config, v string) error { c.Logging.Level = v; return nil },
	"logging.dir":         func(c *Config, v string) error { c.Logging.Dir = v; return nil },
}

func (c *Config) values() map[string]any {
	return map[string]any{
		"simulation.seed":     c.Simulation.Seed,
		"simulation.pop_type": c.Simulation.PopType,
		"ensemble.runs":       c.Ensemble.Runs,
		"ensemble.workers":    c.Ensemble.Workers,
		"ensemble.use_mean":   c.Ensemble.UseMean,
		"ensemble.k":          c.Ensemble.K,
		"ensemble.low":        c.Ensemble.Low,
		"ensemble.high":       c.Ensemble.High,
		"storage.dir":         c.Storage.Dir,
		"storage.disabled":    c.Storage.Disabled,
		"output.dir":          c.Output.Dir,
		"output.format":       c.Output.Format,
		"output.metrics_file": c.Output.MetricsFile,
		"logging.level":       c.Logging.Level,
		"logging.dir":         c.Logging.Dir,
	}
}

// Keys returns every dot-notation key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get retrieves a configuration value by dot-notation key.
func (c *Config) Get(key string) (any, bool) {
	v, ok := c.values()[key]
	return v, ok
}

// Set parses value and assigns it to key, then validates the result. On
// error c is left unchanged.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	next := *c
	if err := set(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", v)
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %s", v)
		}
		*field(c) = f
		return nil
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// applyEnvOverrides applies EPISIM_* environment variable overrides.
// Unparseable numbers are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EPISIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulation.Seed = n
		}
	}
	if v := os.Getenv("EPISIM_POP_TYPE"); v != "" {
		cfg.Simulation.PopType = v
	}
	if v := os.Getenv("EPISIM_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ensemble.Runs = n
		}
	}
	if v := os.Getenv("EPISIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ensemble.Workers = n
		}
	}
	if v := os.Getenv("EPISIM_STORE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("EPISIM_NO_HISTORY"); v != "" {
		cfg.Storage.Disabled = parseBool(v)
	}
	if v := os.Getenv("EPISIM_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("EPISIM_OUTPUT_FORMAT"); v != "" {
		cfg.Output.Format = v
	}
	if v := os.Getenv("EPISIM_METRICS_FILE"); v != "" {
		cfg.Output.MetricsFile = v
	}
	if v := os.Getenv("EPISIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
