package mcp

import (
	"time"

	"github.com/nvandessel/episim/internal/multisim"
	"github.com/nvandessel/episim/internal/scenario"
)

// EpisimRunInput defines the input for the episim_run tool.
type EpisimRunInput struct {
	Label     string         `json:"label,omitempty" jsonschema:"Name for the run (default sim)"`
	PopType   string         `json:"pop_type,omitempty" jsonschema:"Population structure: random or hybrid"`
	Overrides map[string]any `json:"overrides,omitempty" jsonschema:"Parameter overrides keyed by parameter name, e.g. {\"pop_size\": 5000, \"beta\": 0.02}"`
	Seed      *int64         `json:"seed,omitempty" jsonschema:"Random seed; ensemble member i uses seed+i"`
	Runs      int            `json:"runs,omitempty" jsonschema:"Number of runs; more than 1 runs and reduces an ensemble"`
	Workers   int            `json:"workers,omitempty" jsonschema:"Ensemble runs to execute at once"`
	Channels  []string       `json:"channels,omitempty" jsonschema:"Channels to return in full; the summary always has every final value"`
	Tags      []string       `json:"tags,omitempty" jsonschema:"Tags stored with the run in history"`
}

// EpisimRunOutput defines the output for the episim_run tool.
type EpisimRunOutput struct {
	ID       string               `json:"id,omitempty" jsonschema:"Run history id"`
	Label    string               `json:"label"`
	Kind     string               `json:"kind" jsonschema:"sim or multisim"`
	Seed     int64                `json:"seed"`
	NRuns    int                  `json:"n_runs"`
	NDays    int                  `json:"n_days"`
	Summary  map[string]float64   `json:"summary" jsonschema:"Final value of every channel"`
	Channels map[string][]float64 `json:"channels,omitempty" jsonschema:"Daily values of the requested channels"`
	Message  string               `json:"message"`
}

// EpisimCompareInput defines the input for the episim_compare tool. Zero
// values take the standard comparison defaults.
type EpisimCompareInput struct {
	BasePop         int       `json:"base_pop,omitempty" jsonschema:"Agents in the rescaled configurations (default 10000)"`
	PopInfected     int       `json:"pop_infected,omitempty" jsonschema:"Initial infections (default 20)"`
	Scales          []float64 `json:"scales,omitempty" jsonschema:"Population scale factors to compare (default [10 20])"`
	NDays           int       `json:"n_days,omitempty" jsonschema:"Days to simulate (default 120)"`
	Beta            float64   `json:"beta,omitempty" jsonschema:"Transmission rate (default 0.015)"`
	Intervention    string    `json:"intervention,omitempty" jsonschema:"change_beta, test_num or test_prob (default test_prob)"`
	InterventionDay int       `json:"intervention_day,omitempty" jsonschema:"Day the intervention starts (default 30)"`
	Runs            int       `json:"runs,omitempty" jsonschema:"Runs per configuration"`
	Workers         int       `json:"workers,omitempty" jsonschema:"Runs to execute at once"`
	Seed            int64     `json:"seed,omitempty" jsonschema:"Base random seed"`
	PopType         string    `json:"pop_type,omitempty" jsonschema:"random or hybrid"`
	Tags            []string  `json:"tags,omitempty" jsonschema:"Tags stored with the comparison in history"`
}

// EpisimCompareOutput defines the output for the episim_compare tool.
type EpisimCompareOutput struct {
	ID         string                         `json:"id,omitempty" jsonschema:"Run history id"`
	Configs    []scenario.ConfigSummary       `json:"configs"`
	Comparison *multisim.Comparison           `json:"comparison" jsonschema:"Final value of each compared channel per configuration"`
	Deviation  map[string]map[string]*float64 `json:"deviation" jsonschema:"Relative deviation from the entire-population reference; null when undefined"`
	Message    string                         `json:"message"`
}

// EpisimHistoryInput defines the input for the episim_history tool.
type EpisimHistoryInput struct {
	Kind  string `json:"kind,omitempty" jsonschema:"Filter by kind: sim, multisim or scenario"`
	Tag   string `json:"tag,omitempty" jsonschema:"Filter by tag"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum runs to return (default 20)"`
}

// EpisimHistoryOutput defines the output for the episim_history tool.
type EpisimHistoryOutput struct {
	Runs  []RunListItem `json:"runs"`
	Count int           `json:"count"`
}

// RunListItem is a list view of a stored run.
type RunListItem struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	Kind          string    `json:"kind"`
	CreatedAt     time.Time `json:"created_at"`
	Seed          int64     `json:"seed"`
	NRuns         int       `json:"n_runs"`
	NDays         int       `json:"n_days"`
	Tags          []string  `json:"tags,omitempty"`
	CumInfections *float64  `json:"cum_infections,omitempty"`
	CumDeaths     *float64  `json:"cum_deaths,omitempty"`
}

// EpisimChannelInput defines the input for the episim_channel tool.
type EpisimChannelInput struct {
	ID      string `json:"id" jsonschema:"Run history id or unique prefix"`
	Channel string `json:"channel" jsonschema:"Channel name, e.g. new_infections"`
	Bounds  bool   `json:"bounds,omitempty" jsonschema:"Include ensemble low/high bounds"`
}

// EpisimChannelOutput defines the output for the episim_channel tool.
type EpisimChannelOutput struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Channel     string    `json:"channel"`
	Description string    `json:"description"`
	Values      []float64 `json:"values"`
	Low         []float64 `json:"low,omitempty"`
	High        []float64 `json:"high,omitempty"`
}
