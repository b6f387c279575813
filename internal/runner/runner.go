// Package runner executes simulations, ensembles and rescaling comparisons
// on behalf of the CLI and the MCP server, and records them in run history.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/multisim"
	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/results"
	"github.com/nvandessel/episim/internal/sanitize"
	"github.com/nvandessel/episim/internal/scenario"
	"github.com/nvandessel/episim/internal/sim"
	"github.com/nvandessel/episim/internal/store"
)

// Request describes a simulation or ensemble.
type Request struct {
	Label string

	// PopType selects the population structure; empty uses the configured
	// default.
	PopType string

	// Overrides are applied on top of the defaults for PopType. A
	// "rand_seed" override wins over Seed.
	Overrides map[string]any

	Seed *int64

	// Runs > 1 runs an ensemble and reduces it. 0 means a single run.
	Runs    int
	Workers int

	Tags []string
}

// Outcome is a finished request.
type Outcome struct {
	ID      string // run-history id; empty when history is disabled
	Kind    store.Kind
	Seed    int64
	NRuns   int
	Results *results.Results
}

// Runner carries the ambient dependencies shared by every request.
type Runner struct {
	cfg     *config.Config
	store   store.RunStore
	logger  *slog.Logger
	events  *logging.EventLogger
	metrics *metrics.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore records every outcome in st. Without it nothing is saved.
func WithStore(st store.RunStore) Option {
	return func(r *Runner) { r.store = st }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEventLogger sets the JSONL event logger passed to every sim.
func WithEventLogger(el *logging.EventLogger) Option {
	return func(r *Runner) { r.events = el }
}

// WithMetrics sets the metrics passed to every sim.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Runner{cfg: cfg, logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the run store, or nil.
func (r *Runner) Store() store.RunStore { return r.store }

// Pars builds the parameter set for req without running anything.
func (r *Runner) Pars(req Request) (params.Pars, error) {
	pt := params.PopType(req.PopType)
	if pt == "" {
		pt = params.PopType(r.cfg.Simulation.PopType)
	}
	if pt == "" {
		pt = params.PopRandom
	}
	base, err := params.Defaults(params.PopRandom).WithPopType(pt)
	if err != nil {
		return params.Pars{}, err
	}
	seed := r.cfg.Simulation.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	base = base.WithSeed(seed)

	pars, err := base.With(req.Overrides)
	if err != nil {
		return params.Pars{}, err
	}
	if err := pars.Validate(); err != nil {
		return params.Pars{}, err
	}
	return pars, nil
}

// ReduceOptions returns the configured ensemble reduction.
func (r *Runner) ReduceOptions() multisim.ReduceOptions {
	e := r.cfg.Ensemble
	return multisim.ReduceOptions{UseMean: e.UseMean, K: e.K, Low: e.Low, High: e.High}
}

// Run executes req and records it.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	pars, err := r.Pars(req)
	if err != nil {
		return nil, err
	}
	label := sanitize.Label(req.Label)
	if label == "" {
		label = "sim"
	}

	out := &Outcome{Kind: store.KindSim, Seed: pars.RandSeed, NRuns: 1}
	if req.Runs > 1 {
		out.Kind = store.KindMultiSim
		out.NRuns = req.Runs
		workers := req.Workers
		if workers == 0 {
			workers = r.cfg.Ensemble.Workers
		}
		m, err := multisim.New(pars,
			multisim.WithRuns(req.Runs),
			multisim.WithWorkers(workers),
			multisim.WithLabel(label),
			multisim.WithLogger(r.logger),
			multisim.WithEventLogger(r.events),
			multisim.WithMetrics(r.metrics),
		)
		if err != nil {
			return nil, err
		}
		if err := m.Run(ctx); err != nil {
			return nil, err
		}
		if out.Results, err = m.Reduce(r.ReduceOptions()); err != nil {
			return nil, err
		}
	} else {
		s, err := sim.New(pars,
			sim.WithLabel(label),
			sim.WithLogger(r.logger),
			sim.WithEventLogger(r.events),
			sim.WithMetrics(r.metrics),
		)
		if err != nil {
			return nil, err
		}
		if err := s.Run(ctx); err != nil {
			return nil, err
		}
		if out.Results, err = s.Results(); err != nil {
			return nil, err
		}
	}

	record := store.FromResults(out.Kind, out.Results, out.Seed, out.NRuns)
	record.Tags = req.Tags
	if out.ID, err = r.save(ctx, record); err != nil {
		return nil, err
	}
	return out, nil
}

// CompareOutcome is a finished rescaling comparison.
type CompareOutcome struct {
	ID     string
	Report *scenario.Report
}

// Compare runs a rescaling comparison and records it. Zero-valued Runs,
// Workers, Seed and PopType in o are filled from the configuration.
func (r *Runner) Compare(ctx context.Context, o scenario.Options, tags ...string) (*CompareOutcome, error) {
	if o.Runs == 0 {
		o.Runs = r.cfg.Ensemble.Runs
	}
	if o.Workers == 0 {
		o.Workers = r.cfg.Ensemble.Workers
	}
	if o.Seed == 0 {
		o.Seed = r.cfg.Simulation.Seed
	}
	if o.PopType == "" {
		o.PopType = params.PopType(r.cfg.Simulation.PopType)
	}
	o.Reduce = r.ReduceOptions()
	o.Logger = r.logger
	o.Events = r.events
	o.Metrics = r.metrics

	report, err := scenario.Run(ctx, o)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	opts, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	var optsMap map[string]any
	if err := json.Unmarshal(opts, &optsMap); err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}

	summary := make(map[string]float64)
	for _, oc := range report.Outcomes {
		if oc.Config.Strategy != scenario.Entire {
			continue
		}
		if v, err := oc.Reduced.Last(string(results.CumInfections)); err == nil {
			summary[oc.Config.Name+"."+string(results.CumInfections)] = v
		}
	}

	id, err := r.save(ctx, store.Run{
		Label:      "rescaling",
		Kind:       store.KindScenario,
		Seed:       o.Seed,
		NRuns:      o.Runs * len(report.Outcomes),
		NDays:      o.NDays,
		Tags:       tags,
		Parameters: optsMap,
		Summary:    summary,
		Report:     doc,
	})
	if err != nil {
		return nil, err
	}
	return &CompareOutcome{ID: id, Report: report}, nil
}

func (r *Runner) save(ctx context.Context, run store.Run) (string, error) {
	if r.store == nil {
		return "", nil
	}
	run.Tags = sanitize.Tags(run.Tags)
	id, err := r.store.Save(ctx, run)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	r.logger.Debug("saved run", "id", id, "kind", run.Kind, "label", run.Label)
	return id, nil
}
