package simulation

import (
	"errors"
	"testing"

	"github.com/nvandessel/episim/internal/params"
)

// Builder accumulates parameter changes for one test run. Every method fails
// the test on an invalid change and returns the builder for chaining.
type Builder struct {
	t    testing.TB
	pars params.Pars
}

// NewBuilder starts from the random-population defaults with age-stratified
// prognoses.
func NewBuilder(t testing.TB) *Builder {
	t.Helper()
	return &Builder{t: t, pars: params.MakePars(true)}
}

// Pars returns a copy of the accumulated parameters.
func (b *Builder) Pars() params.Pars {
	return b.pars.Clone()
}

// Set applies parameter overrides by name.
func (b *Builder) Set(overrides map[string]any) *Builder {
	b.t.Helper()
	p, err := b.pars.With(overrides)
	if err != nil {
		b.t.Fatalf("Set(%v): %v", overrides, err)
	}
	b.pars = p
	return b
}

// SetProgProb pins progression probabilities to absolute values for every
// age bracket. Keys are rel_symp_prob, rel_severe_prob, rel_crit_prob and
// rel_death_prob.
func (b *Builder) SetProgProb(probs map[params.RelProbKey]float64) *Builder {
	b.t.Helper()
	p, err := b.pars.WithAbsoluteProbs(probs)
	if err != nil {
		var uke *params.UnknownKeyError
		if errors.As(err, &uke) {
			b.t.Fatalf("Key %s not found in %v", uke.Key, uke.Supported)
		}
		b.t.Fatalf("SetProgProb: %v", err)
	}
	b.pars = p
	return b
}

// SetDuration replaces a progression duration with a normal distribution.
// par2 of 0 makes the duration constant.
func (b *Builder) SetDuration(key params.DurKey, par1, par2 float64) *Builder {
	b.t.Helper()
	p, err := b.pars.WithDurationTriple(key, params.DistNormal, par1, par2)
	if err != nil {
		b.t.Fatalf("SetDuration(%s): %v", key, err)
	}
	b.pars = p
	return b
}

// Interventions replaces the intervention list.
func (b *Builder) Interventions(specs ...params.InterventionSpec) *Builder {
	b.pars = b.pars.WithInterventions(specs...)
	return b
}

// Microsim shrinks the run to the Microsim population and its contact
// count.
func (b *Builder) Microsim() *Builder {
	b.t.Helper()
	return b.Set(map[string]any{
		"pop_size":     Microsim.PopSize,
		"pop_infected": Microsim.PopInfected,
		"n_days":       Microsim.NDays,
		"contacts":     map[string]any{string(params.LayerAll): Microsim.Contacts},
	})
}

// EveryoneInfected seeds every agent on day zero.
func (b *Builder) EveryoneInfected(agents int) *Builder {
	b.t.Helper()
	return b.Set(map[string]any{"pop_size": agents, "pop_infected": agents})
}

// EveryoneInfectiousSameDay infects everyone, makes them all infectious
// daysToInfectious days later and keeps them asymptomatic.
func (b *Builder) EveryoneInfectiousSameDay(agents, daysToInfectious, nDays int) *Builder {
	b.t.Helper()
	b.EveryoneInfected(agents)
	b.SetProgProb(map[params.RelProbKey]float64{params.KeyRelSympProb: 0})
	b.SetDuration(params.DurExp2Inf, float64(daysToInfectious), 0)
	return b.Set(map[string]any{"n_days": nDays})
}

// EveryoneSymptomatic makes everyone infectious on day zero and symptomatic
// without progressing to severe disease. An optional delay pins the
// infectious-to-symptomatic duration.
func (b *Builder) EveryoneSymptomatic(agents int, delay ...int) *Builder {
	b.t.Helper()
	b.EveryoneInfectiousSameDay(agents, 0, 60)
	b.SetProgProb(map[params.RelProbKey]float64{
		params.KeyRelSympProb:   1,
		params.KeyRelSevereProb: 0,
	})
	if len(delay) > 0 {
		b.SetDuration(params.DurInf2Sym, float64(delay[0]), 0)
	}
	return b
}

// EveryoneDies sends everyone through symptomatic, severe and critical
// disease to death.
func (b *Builder) EveryoneDies(agents int) *Builder {
	b.t.Helper()
	b.EveryoneInfectiousSameDay(agents, 1, 60)
	return b.SetProgProb(map[params.RelProbKey]float64{
		params.KeyRelSympProb:   1,
		params.KeyRelSevereProb: 1,
		params.KeyRelCritProb:   1,
		params.KeyRelDeathProb:  1,
	})
}

// EveryoneSevere makes everyone severe but never critical. An optional
// delay pins both the infectious-to-symptomatic and symptomatic-to-severe
// durations.
func (b *Builder) EveryoneSevere(agents int, delay ...int) *Builder {
	b.t.Helper()
	b.EveryoneSymptomatic(agents, delay...)
	b.SetProgProb(map[params.RelProbKey]float64{
		params.KeyRelSevereProb: 1,
		params.KeyRelCritProb:   0,
	})
	if len(delay) > 0 {
		b.SetDuration(params.DurSym2Sev, float64(delay[0]), 0)
	}
	return b
}

// EveryoneCritical makes everyone critical and then recover.
func (b *Builder) EveryoneCritical(agents int, delay ...int) *Builder {
	b.t.Helper()
	b.EveryoneSevere(agents, delay...)
	b.SetProgProb(map[params.RelProbKey]float64{
		params.KeyRelCritProb:  1,
		params.KeyRelDeathProb: 0,
	})
	if len(delay) > 0 {
		b.SetDuration(params.DurSev2Crit, float64(delay[0]), 0)
	}
	return b
}

// SmallPopHighTransmission uses the HighTransmission population, beta and
// contact count. Every
// recovery and death duration is pinned to HighTransmission.MinCourse days,
// so nobody leaves the exposed state during the first days of the run.
func (b *Builder) SmallPopHighTransmission() *Builder {
	b.t.Helper()
	b.Set(map[string]any{
		"pop_size":     HighTransmission.PopSize,
		"pop_infected": HighTransmission.PopInfected,
		"n_days":       HighTransmission.NDays,
		"beta":         HighTransmission.Beta,
		"contacts":     map[string]any{string(params.LayerAll): HighTransmission.Contacts},
	})
	for _, key := range []params.DurKey{
		params.DurAsym2Rec, params.DurMild2Rec, params.DurSev2Rec,
		params.DurCrit2Rec, params.DurCrit2Die,
	} {
		b.SetDuration(key, HighTransmission.MinCourse, 0)
	}
	return b
}

// HighMortalityPop infects the HighMortality population on day zero. Every
// case becomes critical and dies with probability DefaultCFR after
// TimeToDie days.
func (b *Builder) HighMortalityPop() *Builder {
	b.t.Helper()
	b.Set(map[string]any{"prog_by_age": HighMortality.CFRByAge})
	b.EveryoneInfected(HighMortality.PopSize)
	b.SetProgProb(map[params.RelProbKey]float64{
		params.KeyRelSympProb:   1,
		params.KeyRelSevereProb: 1,
		params.KeyRelCritProb:   1,
		params.KeyRelDeathProb:  HighMortality.DefaultCFR,
	})
	return b.SetDuration(params.DurCrit2Die, HighMortality.TimeToDie, 0)
}

// ChangeBeta is a change_beta intervention.
func ChangeBeta(days []int, multipliers []float64, layers ...params.Layer) params.InterventionSpec {
	return params.ChangeBeta(days, multipliers, layers...)
}

// ProbTestOptions holds the test_prob settings. Zero values test nobody,
// in or out of quarantine, with a perfect test returned the next day from
// day 0.
type ProbTestOptions struct {
	SymptomaticProb      float64
	AsymptomaticProb     float64
	AsymptomaticQuarProb float64
	SymptomaticQuarProb  float64
	Sensitivity          float64
	LossProb             float64
	TestDelay            int
	StartDay             int
}

// ProbTests is a test_prob intervention.
func ProbTests(o ProbTestOptions) params.InterventionSpec {
	spec := params.TestProb(o.SymptomaticProb, o.AsymptomaticProb, o.StartDay).
		WithQuarProbs(o.SymptomaticQuarProb, o.AsymptomaticQuarProb)
	spec.Sensitivity = o.Sensitivity
	if spec.Sensitivity == 0 {
		spec.Sensitivity = 1
	}
	spec.LossProb = o.LossProb
	spec.TestDelay = o.TestDelay
	if spec.TestDelay == 0 {
		spec.TestDelay = 1
	}
	return spec
}

// ContactTracing is a contact_tracing intervention. Nil maps trace every
// hybrid layer with probability 1 after one day, so they need a hybrid
// population; a random one fails to initialize.
func ContactTracing(startDay int, probs map[params.Layer]float64, times map[params.Layer]int) params.InterventionSpec {
	if probs == nil {
		probs = map[params.Layer]float64{
			params.LayerHousehold: 1, params.LayerSchool: 1, params.LayerWork: 1, params.LayerCommunity: 1,
		}
	}
	if times == nil {
		times = map[params.Layer]int{
			params.LayerHousehold: 1, params.LayerSchool: 1, params.LayerWork: 1, params.LayerCommunity: 1,
		}
	}
	return params.ContactTracing(probs, times, startDay)
}

// Sequence switches between interventions on the given days.
func Sequence(days []int, interventions []params.InterventionSpec) params.InterventionSpec {
	return params.Sequence(days, interventions)
}
