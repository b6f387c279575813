package intervention

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/nvandessel/episim/internal/dist"
	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/population"
)

// ChangeBeta rescales transmission on fixed days.
type ChangeBeta struct {
	label   string
	days    []int
	changes []float64
	layers  []params.Layer
}

func (c *ChangeBeta) Label() string { return c.label }

// Initialize is a no-op; the change happens on its days.
func (c *ChangeBeta) Initialize(Host) error { return nil }

func (c *ChangeBeta) Apply(h Host) {
	t := h.Day()
	for i, day := range c.days {
		if day != t {
			continue
		}
		if len(c.layers) == 0 {
			h.SetBetaFactor("", c.changes[i])
		}
		for _, l := range c.layers {
			h.SetBetaFactor(l, c.changes[i])
		}
		h.Event("change_beta", map[string]any{"label": c.label, "factor": c.changes[i], "layers": c.layers})
	}
}

// TestNum performs a fixed number of tests per day, chosen with weights that
// favour symptomatic and quarantined people.
type TestNum struct {
	label string
	window
	tester     tester
	dailyTests []float64
	sympTest   float64
	quarTest   float64
}

func (tn *TestNum) Label() string { return tn.label }

func (tn *TestNum) Initialize(Host) error { return nil }

// Apply tests today's quota. The quota is in real people, so it is divided
// by the current scale to get the number of agents.
func (tn *TestNum) Apply(h Host) {
	t := h.Day()
	if !tn.active(t) {
		return
	}
	idx := min(t-tn.start, len(tn.dailyTests)-1)
	n := int(math.Round(tn.dailyTests[idx] / math.Max(h.Scale(), 1)))
	if n <= 0 {
		return
	}
	people := h.People()
	weights := make([]float64, people.Len())
	for i := range people.Persons {
		p := &people.Persons[i]
		if p.Dead || p.Diagnosed {
			continue
		}
		w := 1.0
		if p.Symptomatic {
			w *= tn.sympTest
		}
		if p.Quarantined {
			w *= tn.quarTest
		}
		weights[i] = w
	}
	inds := dist.ChooseWeighted(h.Rand(), weights, n)
	tn.tester.run(h, inds)
}

// TestProb tests each person with a daily probability that depends on
// symptoms and quarantine status.
type TestProb struct {
	label string
	window
	tester        tester
	sympProb      float64
	asympProb     float64
	sympQuarProb  float64
	asympQuarProb float64
}

func (tp *TestProb) Label() string { return tp.label }

func (tp *TestProb) Initialize(Host) error { return nil }

func (tp *TestProb) Apply(h Host) {
	t := h.Day()
	if !tp.active(t) {
		return
	}
	people := h.People()
	rng := h.Rand()
	var inds []int
	for i := range people.Persons {
		p := &people.Persons[i]
		if p.Dead || p.Diagnosed {
			continue
		}
		if dist.Bernoulli(rng, tp.probFor(p)) {
			inds = append(inds, i)
		}
	}
	tp.tester.run(h, inds)
}

func (tp *TestProb) probFor(p *population.Person) float64 {
	switch {
	case p.Quarantined && p.Symptomatic:
		return tp.sympQuarProb
	case p.Quarantined:
		return tp.asympQuarProb
	case p.Symptomatic:
		return tp.sympProb
	default:
		return tp.asympProb
	}
}

// ContactTracing notifies the contacts of people whose diagnosis date is
// today, including results from tests run earlier in the same day.
type ContactTracing struct {
	label string
	window
	probs map[params.Layer]float64
	times map[params.Layer]int
}

func (ct *ContactTracing) Label() string { return ct.label }

// Initialize traces every layer with probability 1 and no delay when no
// trace probabilities were given. Layers the population does not have are
// an error.
func (ct *ContactTracing) Initialize(h Host) error {
	if len(ct.probs) > 0 {
		have := make(map[params.Layer]bool)
		for _, l := range h.People().Layers() {
			have[l] = true
		}
		var missing []string
		for l := range ct.probs {
			if !have[l] {
				missing = append(missing, string(l))
			}
		}
		for l := range ct.times {
			if !have[l] && !slices.Contains(missing, string(l)) {
				missing = append(missing, string(l))
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			return fmt.Errorf("%w: %s traces layers %s, population has %v",
				params.ErrInvalidValue, ct.label, strings.Join(missing, ", "), h.People().Layers())
		}
		return nil
	}
	ct.probs = make(map[params.Layer]float64)
	if ct.times == nil {
		ct.times = make(map[params.Layer]int)
	}
	for _, l := range h.People().Layers() {
		ct.probs[l] = 1
	}
	return nil
}

func (ct *ContactTracing) Apply(h Host) {
	t := h.Day()
	if !ct.active(t) {
		return
	}
	people := h.People()
	inds := people.Indices(func(p *population.Person) bool {
		return p.DateDiagnosed == t
	})
	if len(inds) == 0 {
		return
	}
	traced := people.Trace(h.Rand(), inds, t, ct.probs, ct.times)
	h.Event("contact_tracing", map[string]any{"label": ct.label, "diagnosed": len(inds), "traced": traced})
}

// Sequence applies the intervention whose start day is the latest one not
// after today.
type Sequence struct {
	label string
	days  []int
	items []Intervention
}

func (s *Sequence) Label() string { return s.label }

func (s *Sequence) Initialize(h Host) error {
	for _, iv := range s.items {
		if err := iv.Initialize(h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequence) Apply(h Host) {
	if idx := s.current(h.Day()); idx >= 0 {
		s.items[idx].Apply(h)
	}
}

func (s *Sequence) current(t int) int {
	idx := -1
	for i, day := range s.days {
		if day <= t && (idx < 0 || day >= s.days[idx]) {
			idx = i
		}
	}
	return idx
}
