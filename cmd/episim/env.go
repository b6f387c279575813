package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/mcp"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/runner"
	"github.com/nvandessel/episim/internal/store"
)

// configPath returns the file named by --config, or ~/.episim/config.yaml.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// loadSettings loads configuration (defaults, file, environment) and applies
// --log-level on top.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// env is the per-command runtime: settings, logging, metrics and, when
// requested, run history.
type env struct {
	cfg         *config.Config
	logger      *slog.Logger
	events      *logging.EventLogger
	metrics     *metrics.Metrics
	metricsFile string
	store       store.RunStore
}

type envOptions struct {
	// history opens the run store.
	history bool
	// noSave keeps runs out of history even when it is enabled.
	noSave bool
}

func newEnv(cmd *cobra.Command, opts envOptions) (*env, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:         cfg,
		logger:      logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
		metrics:     metrics.New(),
		metricsFile: cfg.Output.MetricsFile,
	}
	if f := cmd.Flags().Lookup("metrics-file"); f != nil && f.Changed {
		e.metricsFile = f.Value.String()
	}

	eventDir := cfg.Logging.Dir
	if eventDir == "" {
		if eventDir, err = store.GlobalEpisimPath(); err != nil {
			return nil, err
		}
	}
	e.events = logging.NewEventLogger(eventDir, cfg.Logging.Level)

	if opts.history && !opts.noSave && !cfg.Storage.Disabled {
		if e.store, err = mcp.OpenStore(cfg); err != nil {
			e.events.Close()
			return nil, err
		}
	}
	return e, nil
}

// openHistory opens the run store regardless of storage.disabled, for the
// commands that only read or manage history.
func (e *env) openHistory() (store.RunStore, error) {
	if e.store != nil {
		return e.store, nil
	}
	cfg := *e.cfg
	cfg.Storage.Disabled = false
	st, err := mcp.OpenStore(&cfg)
	if err != nil {
		return nil, err
	}
	e.store = st
	return st, nil
}

func (e *env) runner() *runner.Runner {
	opts := []runner.Option{
		runner.WithLogger(e.logger),
		runner.WithEventLogger(e.events),
		runner.WithMetrics(e.metrics),
	}
	if e.store != nil {
		opts = append(opts, runner.WithStore(e.store))
	}
	return runner.New(e.cfg, opts...)
}

// Close writes the metrics textfile, if configured, and releases the store
// and event log.
func (e *env) Close() error {
	var firstErr error
	if e.metricsFile != "" {
		if err := e.metrics.WriteTextfile(e.metricsFile); err != nil {
			firstErr = err
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.events.Close()
	return firstErr
}

// signalContext returns a context cancelled on any of cancelSignals.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, cancelSignals...)
}

// loadParamFile reads a YAML or JSON parameter file into an override map.
// JSON is a subset of YAML, so both go through the YAML decoder.
func loadParamFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse parameter file %s: %w", filepath.Base(path), err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// parseOverrides merges a parameter file with key=value assignments, which
// win. Values are parsed as YAML scalars or flow collections, so
// "beta=0.02", "rescale=true" and "beta_layer={h: 3}" all work.
func parseOverrides(paramFile string, sets []string) (map[string]any, error) {
	overrides := map[string]any{}
	if paramFile != "" {
		var err error
		if overrides, err = loadParamFile(paramFile); err != nil {
			return nil, err
		}
	}
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q (want key=value)", kv)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if value == nil {
			value = raw
		}
		overrides[key] = value
	}
	return overrides, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
