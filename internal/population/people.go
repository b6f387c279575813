// Package population holds the simulated agents, their disease state and the
// contact network that connects them.
package population

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/dist"
	"github.com/nvandessel/episim/internal/params"
)

// NoDate marks an event that has not been scheduled.
const NoDate = -1

// Person is one agent. Dates are simulation days; NoDate means unscheduled.
type Person struct {
	Age     float64
	Bracket int

	SympProb   float64
	SevereProb float64
	CritProb   float64
	DeathProb  float64
	RelSus     float64
	RelTrans   float64

	Susceptible  bool
	Exposed      bool
	Infectious   bool
	Symptomatic  bool
	Severe       bool
	Critical     bool
	Recovered    bool
	Dead         bool
	Tested       bool
	Diagnosed    bool
	KnownContact bool
	Quarantined  bool

	DateExposed       int
	DateInfectious    int
	DateSymptomatic   int
	DateSevere        int
	DateCritical      int
	DateRecovered     int
	DateDead          int
	DateTested        int
	DateDiagnosed     int
	DateKnownContact  int
	DateQuarantined   int
	DateEndQuarantine int

	// InfectedBy is the index of the source, or NoDate for seeds.
	InfectedBy int
	// Secondary counts the people this person infected.
	Secondary int
}

func (p *Person) reset() {
	p.Susceptible = true
	p.Exposed, p.Infectious, p.Symptomatic = false, false, false
	p.Severe, p.Critical, p.Recovered, p.Dead = false, false, false, false
	p.Tested, p.Diagnosed, p.KnownContact, p.Quarantined = false, false, false, false
	p.DateExposed, p.DateInfectious, p.DateSymptomatic = NoDate, NoDate, NoDate
	p.DateSevere, p.DateCritical, p.DateRecovered, p.DateDead = NoDate, NoDate, NoDate, NoDate
	p.DateTested, p.DateDiagnosed, p.DateKnownContact = NoDate, NoDate, NoDate
	p.DateQuarantined, p.DateEndQuarantine = NoDate, NoDate
	p.InfectedBy = NoDate
	p.Secondary = 0
}

// People is the full agent population plus its contact layers.
type People struct {
	Persons  []Person
	Contacts map[params.Layer]*Contacts

	dur        map[params.DurKey]params.Dist
	quarPeriod int
}

// Len is the number of agents.
func (pp *People) Len() int {
	return len(pp.Persons)
}

// Layers returns the layer keys present in the network.
func (pp *People) Layers() []params.Layer {
	out := make([]params.Layer, 0, len(pp.Contacts))
	for _, l := range []params.Layer{params.LayerAll, params.LayerHousehold, params.LayerSchool, params.LayerWork, params.LayerCommunity} {
		if _, ok := pp.Contacts[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Count returns how many agents satisfy pred.
func (pp *People) Count(pred func(*Person) bool) int {
	n := 0
	for i := range pp.Persons {
		if pred(&pp.Persons[i]) {
			n++
		}
	}
	return n
}

// Indices returns the agents that satisfy pred.
func (pp *People) Indices(pred func(*Person) bool) []int {
	var out []int
	for i := range pp.Persons {
		if pred(&pp.Persons[i]) {
			out = append(out, i)
		}
	}
	return out
}

// referenceAgeBins is the share of the population per decade of age.
var referenceAgeBins = []float64{0.12, 0.13, 0.14, 0.13, 0.12, 0.13, 0.11, 0.07, 0.04, 0.01}

// Make creates pars.PopSize agents with ages, prognoses and transmissibility
// drawn from rng, and builds the contact network for pars.PopType.
func Make(rng *rand.Rand, pars params.Pars) (*People, error) {
	if pars.PopSize <= 0 {
		return nil, fmt.Errorf("population size must be positive, got %d", pars.PopSize)
	}
	pp := &People{
		Persons:    make([]Person, pars.PopSize),
		Contacts:   make(map[params.Layer]*Contacts),
		dur:        pars.Dur,
		quarPeriod: pars.QuarPeriod,
	}

	progs := pars.Prognoses
	for i := range pp.Persons {
		p := &pp.Persons[i]
		p.reset()
		p.Age = sampleAge(rng)
		b := progs.Bracket(p.Age)
		p.Bracket = b
		p.SympProb = clamp01(pars.RelSympProb * progs.SympProbs[b])
		p.SevereProb = clamp01(pars.RelSevereProb * progs.SevereProbs[b])
		p.CritProb = clamp01(pars.RelCritProb * progs.CritProbs[b])
		p.DeathProb = clamp01(pars.RelDeathProb * progs.DeathProbs[b])
		p.RelSus = progs.SusORs[b]
		p.RelTrans = progs.TransORs[b] * dist.Sample(rng, pars.BetaDist)
	}

	all := make([]int, pars.PopSize)
	for i := range all {
		all[i] = i
	}

	switch pars.PopType {
	case params.PopHybrid:
		var school, work []int
		for i, p := range pp.Persons {
			if p.Age >= 6 && p.Age < 22 {
				school = append(school, i)
			}
			if p.Age >= 22 && p.Age < 65 {
				work = append(work, i)
			}
		}
		pp.Contacts[params.LayerHousehold] = clusteredContacts(rng, params.LayerHousehold, all, pars.Contacts[params.LayerHousehold])
		pp.Contacts[params.LayerSchool] = randomContacts(rng, params.LayerSchool, school, pars.Contacts[params.LayerSchool])
		pp.Contacts[params.LayerWork] = randomContacts(rng, params.LayerWork, work, pars.Contacts[params.LayerWork])
		pp.Contacts[params.LayerCommunity] = randomContacts(rng, params.LayerCommunity, all, pars.Contacts[params.LayerCommunity])
	default:
		pp.Contacts[params.LayerAll] = randomContacts(rng, params.LayerAll, all, pars.Contacts[params.LayerAll])
	}
	return pp, nil
}

func sampleAge(rng *rand.Rand) float64 {
	u := rng.Float64()
	acc := 0.0
	for decade, share := range referenceAgeBins {
		acc += share
		if u < acc {
			return float64(decade*10) + rng.Float64()*10
		}
	}
	return 90 + rng.Float64()*10
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
