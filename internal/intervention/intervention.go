// Package intervention turns declarative intervention specs into policies
// that act on a running simulation each day.
package intervention

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/population"
)

// Host is the view of a running simulation that interventions act on.
type Host interface {
	// Day is the current simulation day.
	Day() int
	People() *population.People
	Rand() *rand.Rand
	// Scale is the number of real people each agent currently stands for.
	Scale() float64
	// SetBetaFactor multiplies transmission in layer by factor, relative to
	// the configured value. The empty layer addresses the overall beta.
	SetBetaFactor(layer params.Layer, factor float64)
	// AddTests records tests performed today.
	AddTests(n int)
	// Event records a notable intervention action.
	Event(name string, fields map[string]any)
}

// Intervention is a policy applied once per simulated day.
type Intervention interface {
	Label() string
	Initialize(h Host) error
	Apply(h Host)
}

// FromSpec builds a live intervention. Zero-valued optional fields get
// their usual defaults: sensitivity 1, symp_test 100, quar_test 1, and
// symp_quar_prob/asymp_quar_prob falling back to symp_prob/asymp_prob.
func FromSpec(spec params.InterventionSpec) (Intervention, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.Clone()
	w := window{start: spec.StartDay, end: spec.EndDay}
	sensitivity := spec.Sensitivity
	if sensitivity == 0 {
		sensitivity = 1
	}
	tests := tester{sensitivity: sensitivity, lossProb: spec.LossProb, delay: spec.TestDelay}

	switch spec.Kind {
	case params.InterventionChangeBeta:
		return &ChangeBeta{label: labelOr(spec, "change_beta"), days: spec.Days, changes: spec.Changes, layers: spec.Layers}, nil
	case params.InterventionTestNum:
		sympTest, quarTest := spec.SympTest, spec.QuarTest
		if sympTest == 0 {
			sympTest = 100
		}
		if quarTest == 0 {
			quarTest = 1
		}
		return &TestNum{
			label: labelOr(spec, "test_num"), window: w, tester: tests,
			dailyTests: spec.DailyTests, sympTest: sympTest, quarTest: quarTest,
		}, nil
	case params.InterventionTestProb:
		sympQuar, asympQuar := spec.SympProb, spec.AsympProb
		if spec.SympQuarProb != nil {
			sympQuar = *spec.SympQuarProb
		}
		if spec.AsympQuarProb != nil {
			asympQuar = *spec.AsympQuarProb
		}
		return &TestProb{
			label: labelOr(spec, "test_prob"), window: w, tester: tests,
			sympProb: spec.SympProb, asympProb: spec.AsympProb,
			sympQuarProb: sympQuar, asympQuarProb: asympQuar,
		}, nil
	case params.InterventionContactTracing:
		return &ContactTracing{label: labelOr(spec, "contact_tracing"), window: w, probs: spec.TraceProbs, times: spec.TraceTime}, nil
	case params.InterventionSequence:
		seq := &Sequence{label: labelOr(spec, "sequence"), days: spec.Days}
		for i, child := range spec.Interventions {
			iv, err := FromSpec(child)
			if err != nil {
				return nil, fmt.Errorf("sequence item %d: %w", i, err)
			}
			seq.items = append(seq.items, iv)
		}
		return seq, nil
	}
	return nil, fmt.Errorf("%w: unknown intervention kind %q", params.ErrInvalidValue, spec.Kind)
}

// FromSpecs builds every spec in order.
func FromSpecs(specs []params.InterventionSpec) ([]Intervention, error) {
	out := make([]Intervention, 0, len(specs))
	for i, s := range specs {
		iv, err := FromSpec(s)
		if err != nil {
			return nil, fmt.Errorf("intervention %d: %w", i, err)
		}
		out = append(out, iv)
	}
	return out, nil
}

func labelOr(spec params.InterventionSpec, fallback string) string {
	if spec.Label != "" {
		return spec.Label
	}
	return fallback
}

// window is the span of days an intervention is active. end 0 is open.
type window struct {
	start, end int
}

func (w window) active(t int) bool {
	return t >= w.start && (w.end == 0 || t <= w.end)
}

type tester struct {
	sensitivity float64
	lossProb    float64
	delay       int
}

func (ts tester) run(h Host, inds []int) int {
	n := h.People().Test(h.Rand(), inds, h.Day(), ts.sensitivity, ts.lossProb, ts.delay)
	h.AddTests(n)
	return n
}
