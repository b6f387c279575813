package multisim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/results"
	"github.com/nvandessel/episim/internal/sim"
)

func basePars(t *testing.T) params.Pars {
	t.Helper()
	p, err := params.Defaults(params.PopRandom).With(map[string]any{
		"pop_size":     400,
		"pop_infected": 10,
		"n_days":       15,
		"beta":         0.03,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func runEnsemble(t *testing.T, opts ...Option) *MultiSim {
	t.Helper()
	m, err := New(basePars(t), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return m
}

func TestNew_SeedsRuns(t *testing.T) {
	m, err := New(basePars(t), WithRuns(3), WithLabel("seeded"))
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range m.Sims() {
		if got := s.Pars().RandSeed; got != int64(1+i) {
			t.Errorf("run %d seed = %d, want %d", i, got, 1+i)
		}
		if want := fmt.Sprintf("seeded-%d", i); s.Label() != want {
			t.Errorf("run %d label = %q, want %q", i, s.Label(), want)
		}
	}
}

func TestNew_RejectsZeroRuns(t *testing.T) {
	if _, err := New(basePars(t), WithRuns(0)); !errors.Is(err, params.ErrInvalidValue) {
		t.Errorf("New(WithRuns(0)) = %v, want ErrInvalidValue", err)
	}
}

func TestResultsBeforeRun(t *testing.T) {
	m, err := New(basePars(t), WithRuns(2))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Results(); !errors.Is(err, sim.ErrNotRun) {
		t.Errorf("Results() = %v, want ErrNotRun", err)
	}
}

func TestRunTwice(t *testing.T) {
	m := runEnsemble(t, WithRuns(2))
	if err := m.Run(context.Background()); !errors.Is(err, sim.ErrAlreadyRun) {
		t.Errorf("second Run() = %v, want ErrAlreadyRun", err)
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	seq := runEnsemble(t, WithRuns(4))
	par := runEnsemble(t, WithRuns(4), WithWorkers(3))

	a, err := seq.Results()
	if err != nil {
		t.Fatal(err)
	}
	b, err := par.Results()
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		va, _ := a[i].Channel(string(results.CumInfections))
		vb, _ := b[i].Channel(string(results.CumInfections))
		for day := range va {
			if va[day] != vb[day] {
				t.Fatalf("run %d differs on day %d: %v vs %v", i, day, va[day], vb[day])
			}
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	for _, workers := range []int{1, 2} {
		m, err := New(basePars(t), WithRuns(3), WithWorkers(workers))
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: Run() = %v, want context.Canceled", workers, err)
		}
	}
}

func TestReduce_BoundsContainValue(t *testing.T) {
	m := runEnsemble(t, WithRuns(5))
	for _, opts := range []ReduceOptions{DefaultReduceOptions(), {UseMean: true, K: 2}, {}} {
		red, err := m.Reduce(opts)
		if err != nil {
			t.Fatalf("Reduce(%+v): %v", opts, err)
		}
		for _, ch := range results.All() {
			values, _ := red.Channel(string(ch))
			low, high, _ := red.Bounds(string(ch))
			for day := range values {
				if low[day] > values[day]+1e-9 || values[day] > high[day]+1e-9 {
					t.Errorf("%+v %s[%d]: low %v, value %v, high %v", opts, ch, day, low[day], values[day], high[day])
				}
			}
		}
	}
}

func TestReduce_InvalidQuantiles(t *testing.T) {
	m := runEnsemble(t, WithRuns(2))
	if _, err := m.Reduce(ReduceOptions{Low: 0.9, High: 0.1}); err == nil {
		t.Error("expected error for low > high")
	}
}

func TestReduce_MismatchedRuns(t *testing.T) {
	a := results.New("a", 5)
	b := results.New("b", 6)
	if _, err := Reduce("x", []*results.Results{a, b}, DefaultReduceOptions()); !errors.Is(err, ErrMismatchedRuns) {
		t.Errorf("Reduce() = %v, want ErrMismatchedRuns", err)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name            string
		xs              []float64
		opts            ReduceOptions
		value, lo, high float64
	}{
		{"median odd", []float64{3, 1, 2}, ReduceOptions{Low: 0, High: 1}, 2, 1, 3},
		{"median even interpolates", []float64{1, 2, 3, 4}, ReduceOptions{Low: 0, High: 1}, 2.5, 1, 4},
		{"mean with zero spread", []float64{5, 5, 5}, ReduceOptions{UseMean: true, K: 2}, 5, 5, 5},
		{"mean bounds clamp to data", []float64{0, 10}, ReduceOptions{UseMean: true, K: 2}, 5, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, lo, hi := summarize(append([]float64(nil), tt.xs...), tt.opts)
			if math.Abs(v-tt.value) > 1e-9 || math.Abs(lo-tt.lo) > 1e-9 || math.Abs(hi-tt.high) > 1e-9 {
				t.Errorf("summarize(%v) = (%v, %v, %v), want (%v, %v, %v)", tt.xs, v, lo, hi, tt.value, tt.lo, tt.high)
			}
		})
	}
}

func TestCombine_SumsCounts(t *testing.T) {
	m := runEnsemble(t, WithRuns(3))
	combined, err := m.Combine()
	if err != nil {
		t.Fatal(err)
	}
	runs, _ := m.Results()
	want := 0.0
	for _, r := range runs {
		v, _ := r.Last(string(results.CumInfections))
		want += v
	}
	if got, _ := combined.Last(string(results.CumInfections)); got != want {
		t.Errorf("combined cum_infections = %v, want %v", got, want)
	}
	if got, _ := combined.First(string(results.NAlive)); got != 1200 {
		t.Errorf("combined n_alive[0] = %v, want 1200", got)
	}
}

func TestFromSims_CompareLabels(t *testing.T) {
	var sims []*sim.Sim
	for i, beta := range []float64{0.01, 0.05} {
		p, err := basePars(t).With(map[string]any{"beta": beta})
		if err != nil {
			t.Fatal(err)
		}
		s, err := sim.New(p, sim.WithLabel(fmt.Sprintf("beta%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		sims = append(sims, s)
	}
	m, err := FromSims(sims)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	cmp, err := m.Compare([]string{"cum_infections", "cum_deaths"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmp.Labels) != 2 || cmp.Labels[0] != "beta0" || cmp.Labels[1] != "beta1" {
		t.Errorf("labels = %v, want [beta0 beta1]", cmp.Labels)
	}

	var buf bytes.Buffer
	if err := cmp.WriteTable(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "cum_infections") {
		t.Errorf("table missing channel row:\n%s", buf.String())
	}

	if _, err := m.Compare([]string{"bogus"}); !errors.Is(err, results.ErrUnknownChannel) {
		t.Errorf("Compare(bogus) = %v, want ErrUnknownChannel", err)
	}
}

func TestFromSims_Empty(t *testing.T) {
	if _, err := FromSims(nil); err == nil {
		t.Error("expected error for empty sims")
	}
}
