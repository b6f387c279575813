package params

import "fmt"

// InterventionKind names an intervention type.
type InterventionKind string

// Supported interventions.
const (
	InterventionChangeBeta     InterventionKind = "change_beta"
	InterventionTestNum        InterventionKind = "test_num"
	InterventionTestProb       InterventionKind = "test_prob"
	InterventionContactTracing InterventionKind = "contact_tracing"
	InterventionSequence       InterventionKind = "sequence"
)

// InterventionSpec is the declarative form of an intervention. Only the
// fields relevant to Kind are read; the sim turns specs into live
// interventions when it initializes.
type InterventionSpec struct {
	Kind  InterventionKind `json:"kind" yaml:"kind"`
	Label string           `json:"label,omitempty" yaml:"label,omitempty"`

	// change_beta and sequence
	Days    []int     `json:"days,omitempty" yaml:"days,omitempty"`
	Changes []float64 `json:"changes,omitempty" yaml:"changes,omitempty"`
	Layers  []Layer   `json:"layers,omitempty" yaml:"layers,omitempty"`

	// active window; EndDay 0 means open-ended
	StartDay int `json:"start_day,omitempty" yaml:"start_day,omitempty"`
	EndDay   int `json:"end_day,omitempty" yaml:"end_day,omitempty"`

	// test_num
	DailyTests []float64 `json:"daily_tests,omitempty" yaml:"daily_tests,omitempty"`
	SympTest   float64   `json:"symp_test,omitempty" yaml:"symp_test,omitempty"`
	QuarTest   float64   `json:"quar_test,omitempty" yaml:"quar_test,omitempty"`

	// test_prob
	SympProb      float64 `json:"symp_prob,omitempty" yaml:"symp_prob,omitempty"`
	AsympProb     float64 `json:"asymp_prob,omitempty" yaml:"asymp_prob,omitempty"`
	// Quarantine probabilities; nil uses SympProb/AsympProb.
	SympQuarProb  *float64 `json:"symp_quar_prob,omitempty" yaml:"symp_quar_prob,omitempty"`
	AsympQuarProb *float64 `json:"asymp_quar_prob,omitempty" yaml:"asymp_quar_prob,omitempty"`

	// shared by test_num and test_prob
	Sensitivity float64 `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty"`
	LossProb    float64 `json:"loss_prob,omitempty" yaml:"loss_prob,omitempty"`
	TestDelay   int     `json:"test_delay,omitempty" yaml:"test_delay,omitempty"`

	// contact_tracing
	TraceProbs map[Layer]float64 `json:"trace_probs,omitempty" yaml:"trace_probs,omitempty"`
	TraceTime  map[Layer]int     `json:"trace_time,omitempty" yaml:"trace_time,omitempty"`

	// sequence
	Interventions []InterventionSpec `json:"interventions,omitempty" yaml:"interventions,omitempty"`
}

// ChangeBeta multiplies transmission by changes[i] from days[i] onward. With
// no layers the overall beta changes; otherwise only the listed layers.
func ChangeBeta(days []int, changes []float64, layers ...Layer) InterventionSpec {
	return InterventionSpec{
		Kind:    InterventionChangeBeta,
		Days:    append([]int(nil), days...),
		Changes: append([]float64(nil), changes...),
		Layers:  append([]Layer(nil), layers...),
	}
}

// TestNum tests a fixed number of people per day. A single daily value is
// repeated for every day.
func TestNum(dailyTests []float64, sympTest float64, startDay int) InterventionSpec {
	return InterventionSpec{
		Kind:        InterventionTestNum,
		DailyTests:  append([]float64(nil), dailyTests...),
		SympTest:    sympTest,
		QuarTest:    1,
		Sensitivity: 1,
		StartDay:    startDay,
	}
}

// TestProb tests symptomatic and asymptomatic people with fixed daily
// probabilities.
func TestProb(sympProb, asympProb float64, startDay int) InterventionSpec {
	return InterventionSpec{
		Kind:        InterventionTestProb,
		SympProb:    sympProb,
		AsympProb:   asympProb,
		Sensitivity: 1,
		StartDay:    startDay,
	}
}

// WithQuarProbs returns a copy of a test_prob spec with explicit testing
// probabilities for quarantined people. Zero means they are not tested.
func (s InterventionSpec) WithQuarProbs(symp, asymp float64) InterventionSpec {
	out := s.Clone()
	out.SympQuarProb = &symp
	out.AsympQuarProb = &asymp
	return out
}

// ContactTracing traces the contacts of newly diagnosed people.
func ContactTracing(traceProbs map[Layer]float64, traceTime map[Layer]int, startDay int) InterventionSpec {
	probs := make(map[Layer]float64, len(traceProbs))
	for k, v := range traceProbs {
		probs[k] = v
	}
	times := make(map[Layer]int, len(traceTime))
	for k, v := range traceTime {
		times[k] = v
	}
	return InterventionSpec{
		Kind:       InterventionContactTracing,
		TraceProbs: probs,
		TraceTime:  times,
		StartDay:   startDay,
	}
}

// Sequence switches between interventions: from days[i] onward the i-th
// intervention is the one applied.
func Sequence(days []int, interventions []InterventionSpec) InterventionSpec {
	return InterventionSpec{
		Kind:          InterventionSequence,
		Days:          append([]int(nil), days...),
		Interventions: cloneSpecs(interventions),
	}
}

// Validate checks the fields required by Kind.
func (s InterventionSpec) Validate() error {
	switch s.Kind {
	case InterventionChangeBeta:
		if len(s.Days) == 0 || len(s.Days) != len(s.Changes) {
			return fmt.Errorf("%w: change_beta needs matching days and changes (got %d and %d)", ErrInvalidValue, len(s.Days), len(s.Changes))
		}
	case InterventionTestNum:
		if len(s.DailyTests) == 0 {
			return fmt.Errorf("%w: test_num needs daily_tests", ErrInvalidValue)
		}
	case InterventionTestProb:
		probs := []float64{s.SympProb, s.AsympProb}
		for _, q := range []*float64{s.SympQuarProb, s.AsympQuarProb} {
			if q != nil {
				probs = append(probs, *q)
			}
		}
		for _, p := range probs {
			if p < 0 || p > 1 {
				return fmt.Errorf("%w: test_prob probability %v out of [0, 1]", ErrInvalidValue, p)
			}
		}
	case InterventionContactTracing:
	case InterventionSequence:
		if len(s.Days) == 0 || len(s.Days) != len(s.Interventions) {
			return fmt.Errorf("%w: sequence needs matching days and interventions (got %d and %d)", ErrInvalidValue, len(s.Days), len(s.Interventions))
		}
		for _, child := range s.Interventions {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("sequence: %w", err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown intervention kind %q", ErrInvalidValue, s.Kind)
	}
	if s.Sensitivity < 0 || s.Sensitivity > 1 || s.LossProb < 0 || s.LossProb > 1 {
		return fmt.Errorf("%w: %s sensitivity/loss_prob out of [0, 1]", ErrInvalidValue, s.Kind)
	}
	return nil
}

// Clone returns a deep copy.
func (s InterventionSpec) Clone() InterventionSpec {
	out := s
	out.Days = append([]int(nil), s.Days...)
	out.Changes = append([]float64(nil), s.Changes...)
	out.Layers = append([]Layer(nil), s.Layers...)
	out.DailyTests = append([]float64(nil), s.DailyTests...)
	out.SympQuarProb = cloneProb(s.SympQuarProb)
	out.AsympQuarProb = cloneProb(s.AsympQuarProb)
	if s.TraceProbs != nil {
		out.TraceProbs = make(map[Layer]float64, len(s.TraceProbs))
		for k, v := range s.TraceProbs {
			out.TraceProbs[k] = v
		}
	}
	if s.TraceTime != nil {
		out.TraceTime = make(map[Layer]int, len(s.TraceTime))
		for k, v := range s.TraceTime {
			out.TraceTime[k] = v
		}
	}
	out.Interventions = cloneSpecs(s.Interventions)
	return out
}

func cloneProb(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSpecs(in []InterventionSpec) []InterventionSpec {
	if in == nil {
		return nil
	}
	out := make([]InterventionSpec, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
