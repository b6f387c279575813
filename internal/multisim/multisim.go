// Package multisim runs ensembles of independently seeded simulations and
// reduces them to summary statistics.
package multisim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/results"
	"github.com/nvandessel/episim/internal/sim"
)

// DefaultRuns is the ensemble size when WithRuns is not given.
const DefaultRuns = 10

// MultiSim is an ensemble of simulation runs.
type MultiSim struct {
	base    params.Pars
	label   string
	nRuns   int
	workers int

	logger *slog.Logger
	events *logging.EventLogger
	met    *metrics.Metrics

	sims     []*sim.Sim
	complete bool
}

// Option configures a MultiSim.
type Option func(*MultiSim)

// WithRuns sets the number of runs.
func WithRuns(n int) Option {
	return func(m *MultiSim) { m.nRuns = n }
}

// WithWorkers sets how many runs execute at once. 0 or 1 runs them in
// sequence.
func WithWorkers(k int) Option {
	return func(m *MultiSim) { m.workers = k }
}

// WithLabel names the ensemble; member runs are labeled "<label>-<i>".
func WithLabel(label string) Option {
	return func(m *MultiSim) { m.label = label }
}

// WithLogger sets the logger passed to every run.
func WithLogger(l *slog.Logger) Option {
	return func(m *MultiSim) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithEventLogger sets the event logger passed to every run.
func WithEventLogger(el *logging.EventLogger) Option {
	return func(m *MultiSim) { m.events = el }
}

// WithMetrics sets the metrics passed to every run.
func WithMetrics(met *metrics.Metrics) Option {
	return func(m *MultiSim) { m.met = met }
}

// New builds an ensemble from base. Run i uses seed base.RandSeed + i.
func New(base params.Pars, opts ...Option) (*MultiSim, error) {
	m := &MultiSim{
		base:   base.Clone(),
		label:  "ensemble",
		nRuns:  DefaultRuns,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.nRuns < 1 {
		return nil, fmt.Errorf("%w: ensemble needs at least one run, got %d", params.ErrInvalidValue, m.nRuns)
	}
	for i := 0; i < m.nRuns; i++ {
		s, err := sim.New(base.WithSeed(base.RandSeed+int64(i)),
			sim.WithLabel(fmt.Sprintf("%s-%d", m.label, i)),
			sim.WithLogger(m.logger),
			sim.WithEventLogger(m.events),
			sim.WithMetrics(m.met),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create run %d: %w", i, err)
		}
		m.sims = append(m.sims, s)
	}
	return m, nil
}

// FromSims groups existing sims, which may use different parameters, into
// one ensemble. Sims that have already run are not run again.
func FromSims(sims []*sim.Sim, opts ...Option) (*MultiSim, error) {
	if len(sims) == 0 {
		return nil, fmt.Errorf("%w: no sims given", params.ErrInvalidValue)
	}
	m := &MultiSim{
		base:   sims[0].Pars(),
		label:  "comparison",
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sims = append([]*sim.Sim(nil), sims...)
	m.nRuns = len(m.sims)
	return m, nil
}

// Label returns the ensemble label.
func (m *MultiSim) Label() string { return m.label }

// Base returns a copy of the base parameters.
func (m *MultiSim) Base() params.Pars { return m.base.Clone() }

// Sims returns the member runs.
func (m *MultiSim) Sims() []*sim.Sim { return append([]*sim.Sim(nil), m.sims...) }

// Run executes every member. With more than one worker the runs fan out; the
// first failure cancels the rest and is returned.
func (m *MultiSim) Run(ctx context.Context) error {
	if m.complete {
		return sim.ErrAlreadyRun
	}
	started := time.Now()
	m.logger.Info("running ensemble", "label", m.label, "runs", len(m.sims), "workers", max(m.workers, 1))

	if m.workers <= 1 {
		for i, s := range m.sims {
			if err := m.runOne(ctx, i, s); err != nil {
				return err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.workers)
		for i, s := range m.sims {
			g.Go(func() error {
				return m.runOne(gctx, i, s)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	m.complete = true
	m.logger.Info("ensemble complete", "label", m.label, "elapsed", time.Since(started))
	return nil
}

func (m *MultiSim) runOne(ctx context.Context, i int, s *sim.Sim) error {
	if s.Complete() {
		return nil
	}
	m.met.EnsembleRunStarted()
	defer m.met.EnsembleRunDone()
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("run %d (%s): %w", i, s.Label(), err)
	}
	return nil
}

// Results returns the results of every run, in run order.
func (m *MultiSim) Results() ([]*results.Results, error) {
	out := make([]*results.Results, len(m.sims))
	for i, s := range m.sims {
		r, err := s.Results()
		if err != nil {
			return nil, fmt.Errorf("run %d (%s): %w", i, s.Label(), err)
		}
		out[i] = r
	}
	return out, nil
}

// Combine sums the runs into one result, as if they were parts of a single
// larger population.
func (m *MultiSim) Combine() (*results.Results, error) {
	rs, err := m.Results()
	if err != nil {
		return nil, err
	}
	return Combine(m.label, rs)
}

// Reduce collapses the runs into one result with per-day bounds.
func (m *MultiSim) Reduce(opts ReduceOptions) (*results.Results, error) {
	rs, err := m.Results()
	if err != nil {
		return nil, err
	}
	return Reduce(m.label, rs, opts)
}

// Compare tabulates the final value of each channel per run.
func (m *MultiSim) Compare(channels []string) (*Comparison, error) {
	rs, err := m.Results()
	if err != nil {
		return nil, err
	}
	return Compare(rs, channels)
}

// ErrMismatchedRuns is returned when runs of different lengths are reduced
// or combined.
var ErrMismatchedRuns = errors.New("runs have different lengths")
