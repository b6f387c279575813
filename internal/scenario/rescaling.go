// Package scenario compares simulating an entire population against dynamic
// and static rescaling of a smaller one.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/multisim"
	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/results"
)

// Intervention selects the policy applied on the intervention day.
type Intervention string

// Interventions available to the comparison.
const (
	InterventionChangeBeta Intervention = "change_beta"
	InterventionTestNum    Intervention = "test_num"
	InterventionTestProb   Intervention = "test_prob"
)

// Strategy is how a configuration reaches the target population.
type Strategy string

// Strategies.
const (
	Entire  Strategy = "entire"
	Rescale Strategy = "rescale"
	Static  Strategy = "static"
)

// Channels reported by the comparison.
var Channels = []string{
	string(results.CumInfections),
	string(results.CumTests),
	string(results.CumDiagnoses),
	string(results.NewInfections),
	string(results.NewTests),
	string(results.NewDiagnoses),
}

// Options configures a rescaling comparison.
type Options struct {
	BasePop         int            `json:"base_pop" yaml:"base_pop"`
	PopInfected     int            `json:"pop_infected" yaml:"pop_infected"`
	Scales          []float64      `json:"scales" yaml:"scales"`
	NDays           int            `json:"n_days" yaml:"n_days"`
	Beta            float64        `json:"beta" yaml:"beta"`
	Intervention    Intervention   `json:"intervention" yaml:"intervention"`
	InterventionDay int            `json:"intervention_day" yaml:"intervention_day"`
	Runs            int            `json:"runs" yaml:"runs"`
	Workers         int            `json:"workers" yaml:"workers"`
	Seed            int64          `json:"seed" yaml:"seed"`
	PopType         params.PopType `json:"pop_type" yaml:"pop_type"`

	Reduce  multisim.ReduceOptions `json:"-" yaml:"-"`
	Logger  *slog.Logger           `json:"-" yaml:"-"`
	Events  *logging.EventLogger   `json:"-" yaml:"-"`
	Metrics *metrics.Metrics       `json:"-" yaml:"-"`
}

// DefaultOptions is the standard comparison: a 10,000-agent base population
// scaled by 10 and by 20, 120 days, test_prob from day 30, 10 runs each.
func DefaultOptions() Options {
	return Options{
		BasePop:         10000,
		PopInfected:     20,
		Scales:          []float64{10, 20},
		NDays:           120,
		Beta:            0.015,
		Intervention:    InterventionTestProb,
		InterventionDay: 30,
		Runs:            multisim.DefaultRuns,
		Seed:            1,
		PopType:         params.PopRandom,
		Reduce:          multisim.DefaultReduceOptions(),
	}
}

// Config is one named configuration of the comparison.
type Config struct {
	Name     string
	Strategy Strategy
	Scale    float64
	Pars     params.Pars
}

func (o Options) intervention() (params.InterventionSpec, error) {
	day := o.InterventionDay
	switch o.Intervention {
	case InterventionChangeBeta:
		return params.ChangeBeta([]int{day}, []float64{0.5}), nil
	case InterventionTestNum:
		return params.TestNum([]float64{1000}, 10, day), nil
	case InterventionTestProb, "":
		return params.TestProb(0.1, 0.01, day), nil
	}
	return params.InterventionSpec{}, fmt.Errorf("%w: unknown intervention %q (valid: change_beta, test_num, test_prob)", params.ErrInvalidValue, o.Intervention)
}

// Configs builds the entire, rescale and static configurations for every
// scale. Configurations for the second and later scales get a numeric
// suffix: entire2, rescale2, static2.
func Configs(o Options) ([]Config, error) {
	if o.BasePop <= 0 || o.PopInfected <= 0 || len(o.Scales) == 0 {
		return nil, fmt.Errorf("%w: base_pop, pop_infected and scales are required", params.ErrInvalidValue)
	}
	iv, err := o.intervention()
	if err != nil {
		return nil, err
	}
	popType := o.PopType
	if popType == "" {
		popType = params.PopRandom
	}
	shared := params.Defaults(popType).WithSeed(o.Seed)
	shared, err = shared.With(map[string]any{"n_days": o.NDays, "beta": o.Beta})
	if err != nil {
		return nil, err
	}
	shared = shared.WithInterventions(iv)

	var out []Config
	for k, scale := range o.Scales {
		if scale < 1 {
			return nil, fmt.Errorf("%w: scale must be >= 1, got %v", params.ErrInvalidValue, scale)
		}
		suffix := ""
		if k > 0 {
			suffix = fmt.Sprint(k + 1)
		}
		variants := []struct {
			strategy Strategy
			over     map[string]any
		}{
			{Entire, map[string]any{
				"pop_size": int(math.Round(float64(o.BasePop) * scale)), "pop_infected": o.PopInfected,
				"pop_scale": 1, "rescale": false,
			}},
			{Rescale, map[string]any{
				"pop_size": o.BasePop, "pop_infected": o.PopInfected,
				"pop_scale": scale, "rescale": true,
			}},
			{Static, map[string]any{
				"pop_size": o.BasePop, "pop_infected": int(math.Floor(float64(o.PopInfected) / scale)),
				"pop_scale": scale, "rescale": false,
			}},
		}
		for _, v := range variants {
			p, err := shared.With(v.over)
			if err != nil {
				return nil, fmt.Errorf("%s%s: %w", v.strategy, suffix, err)
			}
			out = append(out, Config{Name: string(v.strategy) + suffix, Strategy: v.strategy, Scale: scale, Pars: p})
		}
	}
	return out, nil
}

// Outcome is the reduced result of one configuration.
type Outcome struct {
	Config  Config
	Reduced *results.Results
}

// Report is the result of a comparison.
type Report struct {
	Outcomes   []Outcome
	Comparison *multisim.Comparison
	// Deviation is the relative difference of each rescaled configuration's
	// final value from its entire-population reference, per channel.
	Deviation map[string]map[string]float64
}

// Run executes every configuration as an ensemble, reduces each one and
// compares them.
func Run(ctx context.Context, o Options) (*Report, error) {
	configs, err := Configs(o)
	if err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	runs := o.Runs
	if runs < 1 {
		runs = multisim.DefaultRuns
	}

	report := &Report{Deviation: make(map[string]map[string]float64)}
	var reduced []*results.Results
	for _, c := range configs {
		logger.Info("running configuration", "name", c.Name, "pop_size", c.Pars.PopSize,
			"pop_scale", c.Pars.PopScale, "rescale", c.Pars.Rescale)
		m, err := multisim.New(c.Pars,
			multisim.WithRuns(runs),
			multisim.WithWorkers(o.Workers),
			multisim.WithLabel(c.Name),
			multisim.WithLogger(logger),
			multisim.WithEventLogger(o.Events),
			multisim.WithMetrics(o.Metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		if err := m.Run(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		r, err := m.Reduce(o.Reduce)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		report.Outcomes = append(report.Outcomes, Outcome{Config: c, Reduced: r})
		reduced = append(reduced, r)
	}

	report.Comparison, err = multisim.Compare(reduced, Channels)
	if err != nil {
		return nil, err
	}
	report.computeDeviation()
	return report, nil
}

func (r *Report) computeDeviation() {
	refs := make(map[float64]string)
	for _, o := range r.Outcomes {
		if o.Config.Strategy == Entire {
			refs[o.Config.Scale] = o.Config.Name
		}
	}
	for _, o := range r.Outcomes {
		ref, ok := refs[o.Config.Scale]
		if !ok || o.Config.Strategy == Entire {
			continue
		}
		row := make(map[string]float64, len(Channels))
		for _, ch := range Channels {
			want := r.Comparison.Values[ref][ch]
			got := r.Comparison.Values[o.Config.Name][ch]
			if want == 0 {
				row[ch] = 0
				if got != 0 {
					row[ch] = math.Inf(1)
				}
				continue
			}
			row[ch] = (got - want) / want
		}
		r.Deviation[o.Config.Name] = row
	}
}
