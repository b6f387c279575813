// Package store persists run history: one record per simulation, ensemble or
// rescaling comparison, with its parameters, summary and results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nvandessel/episim/internal/results"
)

// ErrNotFound is returned when no run matches an id or id prefix.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguousID is returned when an id prefix matches more than one run.
var ErrAmbiguousID = errors.New("ambiguous run id")

// Kind says what produced a run record.
type Kind string

const (
	KindSim      Kind = "sim"
	KindMultiSim Kind = "multisim"
	KindScenario Kind = "scenario"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSim, KindMultiSim, KindScenario:
		return true
	}
	return false
}

// Run is a stored run. Results is nil for scenario records, which keep their
// comparison in Report instead.
type Run struct {
	ID         string             `json:"id"`
	Label      string             `json:"label"`
	Kind       Kind               `json:"kind"`
	CreatedAt  time.Time          `json:"created_at"`
	Seed       int64              `json:"seed"`
	NRuns      int                `json:"n_runs"`
	NDays      int                `json:"n_days"`
	Tags       []string           `json:"tags,omitempty"`
	Parameters map[string]any     `json:"parameters,omitempty"`
	Summary    map[string]float64 `json:"summary,omitempty"`
	Results    *results.Results   `json:"results,omitempty"`
	Report     json.RawMessage    `json:"report,omitempty"`
}

// FromResults builds a record from finished results, copying the label,
// day count, parameters and final-day summary. Non-finite summary values
// are dropped.
func FromResults(kind Kind, res *results.Results, seed int64, nRuns int) Run {
	summary := make(map[string]float64)
	for ch, v := range res.Summary() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		summary[string(ch)] = v
	}
	return Run{
		Label:      res.Label,
		Kind:       kind,
		Seed:       seed,
		NRuns:      nRuns,
		NDays:      res.NDays,
		Parameters: res.Parameters,
		Summary:    summary,
		Results:    res,
	}
}

// ListFilter narrows List. Zero values match everything; Limit <= 0 means
// no limit.
type ListFilter struct {
	Kind  Kind
	Tag   string
	Limit int
}

// RunStore is the run-history interface.
type RunStore interface {
	// Save stores run and returns its id, assigning one when run.ID is empty.
	Save(ctx context.Context, run Run) (string, error)

	// Get returns the run whose id equals or starts with id.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns runs newest first. Results and Report are not loaded.
	List(ctx context.Context, f ListFilter) ([]Run, error)

	// Delete removes a run. Deleting an unknown id returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}

func validate(run Run) error {
	if !run.Kind.Valid() {
		return fmt.Errorf("invalid run kind %q", run.Kind)
	}
	if run.Label == "" {
		return fmt.Errorf("run label is required")
	}
	return nil
}
