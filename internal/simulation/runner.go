package simulation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/results"
	"github.com/nvandessel/episim/internal/sim"
)

// DebugDirEnv names the environment variable that keeps DEBUG files.
const DebugDirEnv = "EPISIM_DEBUG_DIR"

// RunOptions controls a single harness run.
type RunOptions struct {
	// WriteJSON writes the results document to DebugPath.
	WriteJSON bool
	// PopType switches the population type before running. Layer maps reset
	// to that type's defaults.
	PopType params.PopType
}

// Runner executes sims for one test with a sandboxed HOME.
type Runner struct {
	t   testing.TB
	dir string

	// Sim is the most recent sim run.
	Sim *sim.Sim
}

// NewRunner creates a runner. DEBUG files go to a per-test temporary
// directory unless EPISIM_DEBUG_DIR is set.
func NewRunner(t testing.TB) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	dir := tmpDir
	if keep := os.Getenv(DebugDirEnv); keep != "" {
		dir = keep
	}
	return &Runner{t: t, dir: dir}
}

// DebugPath is where WriteJSON puts the results document.
func (r *Runner) DebugPath() string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(r.t.Name())
	return filepath.Join(r.dir, "DEBUG_"+name+".json")
}

// Run builds and runs a sim from pars and returns its results. Any failure
// is fatal to the test.
func (r *Runner) Run(pars params.Pars, opts RunOptions) *results.Results {
	r.t.Helper()

	if opts.PopType != "" {
		p, err := pars.WithPopType(opts.PopType)
		if err != nil {
			r.t.Fatalf("Run: %v", err)
		}
		pars = p
	}

	s, err := sim.New(pars, sim.WithLabel(r.t.Name()), sim.WithLogger(logging.Discard()))
	if err != nil {
		r.t.Fatalf("Run: sim.New: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		r.t.Fatalf("Run: %v", err)
	}
	r.Sim = s

	res, err := s.Results()
	if err != nil {
		r.t.Fatalf("Run: Results: %v", err)
	}
	if opts.WriteJSON {
		if err := res.WriteJSONFile(r.DebugPath()); err != nil {
			r.t.Fatalf("Run: writing %s: %v", r.DebugPath(), err)
		}
	}
	return res
}
