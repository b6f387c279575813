// Package sim runs a single agent-based epidemic simulation.
//
// A Sim is bound to one parameter set at construction and runs exactly once:
//
//	s, err := sim.New(pars, sim.WithLabel("baseline"))
//	if err := s.Run(ctx); err != nil { ... }
//	res, _ := s.Results()
//	total, _ := res.Last("cum_infections")
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nvandessel/episim/internal/dist"
	"github.com/nvandessel/episim/internal/intervention"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/population"
	"github.com/nvandessel/episim/internal/results"
)

// Lifecycle errors.
var (
	// ErrAlreadyRun is returned when a finished sim is run or stepped again.
	ErrAlreadyRun = errors.New("simulation already run")

	// ErrNotRun is returned when results are requested before the last day.
	ErrNotRun = errors.New("simulation not run")
)

// Sim is one simulation run.
type Sim struct {
	pars   params.Pars
	label  string
	logger *slog.Logger
	events *logging.EventLogger
	met    *metrics.Metrics

	rng           *rand.Rand
	people        *population.People
	interventions []intervention.Intervention
	rescaleVec    []float64
	seeds         int

	betaFactor  float64
	layerFactor map[params.Layer]float64

	t           int
	todayTests  int
	rawREff     []float64
	res         *results.Results
	initialized bool
	complete    bool
}

// Option configures a Sim.
type Option func(*Sim)

// WithLabel names the run in logs, events and results.
func WithLabel(label string) Option {
	return func(s *Sim) { s.label = label }
}

// WithLogger sets the operational logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sim) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventLogger records rescaling and intervention events as JSONL.
func WithEventLogger(el *logging.EventLogger) Option {
	return func(s *Sim) { s.events = el }
}

// WithMetrics records run counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sim) { s.met = m }
}

// New validates pars and returns a sim bound to a private copy of them.
func New(pars params.Pars, opts ...Option) (*Sim, error) {
	if err := pars.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	s := &Sim{
		pars:   pars.Clone(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.label == "" {
		s.label = fmt.Sprintf("sim-%d", pars.RandSeed)
	}
	return s, nil
}

// Label returns the run label.
func (s *Sim) Label() string { return s.label }

// Pars returns a copy of the parameters the sim is bound to.
func (s *Sim) Pars() params.Pars { return s.pars.Clone() }

// Complete reports whether the sim has run to its last day.
func (s *Sim) Complete() bool { return s.complete }

// Initialize creates the population, seeds infections and builds the
// interventions. Run calls it when needed.
func (s *Sim) Initialize() error {
	if s.initialized {
		return nil
	}
	p := s.pars
	seed := uint64(p.RandSeed)
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	people, err := population.Make(s.rng, p)
	if err != nil {
		return fmt.Errorf("failed to create population: %w", err)
	}
	s.people = people

	s.rescaleVec = make([]float64, p.NDays+1)
	start := p.PopScale
	if p.Rescale {
		start = 1
	}
	for i := range s.rescaleVec {
		s.rescaleVec[i] = start
	}

	s.betaFactor = 1
	s.layerFactor = make(map[params.Layer]float64)
	for _, l := range people.Layers() {
		s.layerFactor[l] = 1
	}

	s.interventions, err = intervention.FromSpecs(p.Interventions)
	if err != nil {
		return fmt.Errorf("failed to build interventions: %w", err)
	}
	for _, iv := range s.interventions {
		if err := iv.Initialize(s); err != nil {
			return fmt.Errorf("failed to initialize intervention %s: %w", iv.Label(), err)
		}
	}

	for _, i := range dist.ChooseN(s.rng, people.Len(), p.PopInfected) {
		if people.Infect(s.rng, i, 0, population.NoDate) {
			s.seeds++
		}
	}

	s.res = results.New(s.label, p.NDays)
	s.rawREff = make([]float64, p.NDays+1)
	s.initialized = true

	s.logger.Debug("simulation initialized",
		"label", s.label,
		"pop_size", p.PopSize,
		"pop_infected", s.seeds,
		"pop_type", p.PopType,
		"layers", len(people.Layers()),
		"interventions", len(s.interventions))
	return nil
}

// Run steps the sim through every day and finalizes its results. The
// context is checked between days.
func (s *Sim) Run(ctx context.Context) error {
	if s.complete {
		return ErrAlreadyRun
	}
	if err := s.Initialize(); err != nil {
		s.met.RecordRun(metrics.StatusError, 0)
		return err
	}

	started := time.Now()
	s.logger.Info("running simulation", "label", s.label, "n_days", s.pars.NDays, "seed", s.pars.RandSeed)
	s.events.Event("run_start", map[string]any{"label": s.label, "seed": s.pars.RandSeed})

	for !s.complete {
		if err := ctx.Err(); err != nil {
			s.met.RecordRun(metrics.StatusCancelled, time.Since(started))
			return fmt.Errorf("simulation %s stopped on day %d: %w", s.label, s.t, err)
		}
		if err := s.Step(); err != nil {
			s.met.RecordRun(metrics.StatusError, time.Since(started))
			return err
		}
	}

	elapsed := time.Since(started)
	s.met.RecordRun(metrics.StatusOK, elapsed)
	cum, _ := s.res.Last(string(results.CumInfections))
	s.logger.Info("simulation complete", "label", s.label, "cum_infections", cum, "elapsed", elapsed)
	s.events.Event("run_end", map[string]any{"label": s.label, "cum_infections": cum})
	return nil
}

// Results returns the finalized results of a completed run.
func (s *Sim) Results() (*results.Results, error) {
	if !s.complete {
		return nil, ErrNotRun
	}
	return s.res, nil
}

// RescaleVec returns a copy of the per-day population scale.
func (s *Sim) RescaleVec() []float64 {
	return append([]float64(nil), s.rescaleVec...)
}

// Day implements intervention.Host.
func (s *Sim) Day() int { return s.t }

// People implements intervention.Host.
func (s *Sim) People() *population.People { return s.people }

// Rand implements intervention.Host.
func (s *Sim) Rand() *rand.Rand { return s.rng }

// Scale implements intervention.Host.
func (s *Sim) Scale() float64 {
	if s.t < len(s.rescaleVec) {
		return s.rescaleVec[s.t]
	}
	return s.rescaleVec[len(s.rescaleVec)-1]
}

// SetBetaFactor implements intervention.Host.
func (s *Sim) SetBetaFactor(layer params.Layer, factor float64) {
	if layer == "" {
		s.betaFactor = factor
		return
	}
	if _, ok := s.layerFactor[layer]; ok {
		s.layerFactor[layer] = factor
	}
}

// AddTests implements intervention.Host.
func (s *Sim) AddTests(n int) { s.todayTests += n }

// Event implements intervention.Host.
func (s *Sim) Event(name string, fields map[string]any) {
	s.met.RecordIntervention(name)
	s.logger.Debug("intervention", "label", s.label, "day", s.t, "kind", name)
	entry := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["day"] = s.t
	entry["sim"] = s.label
	s.events.Event(name, entry)
}
