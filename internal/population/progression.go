package population

import (
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/dist"
	"github.com/nvandessel/episim/internal/params"
)

// Flows counts the state transitions that happened on one day.
type Flows struct {
	Infections  int
	Infectious  int
	Tests       int
	Diagnoses   int
	Recoveries  int
	Symptomatic int
	Severe      int
	Critical    int
	Deaths      int
	Quarantined int
}

// Infect exposes agent i on day t and schedules the rest of its disease
// course. source is the infecting agent, or NoDate for seeded infections.
// It reports false if i was not susceptible.
func (pp *People) Infect(rng *rand.Rand, i, t, source int) bool {
	p := &pp.Persons[i]
	if !p.Susceptible || p.Dead {
		return false
	}
	p.Susceptible = false
	p.Exposed = true
	p.DateExposed = t
	p.InfectedBy = source
	if source >= 0 {
		pp.Persons[source].Secondary++
	}

	p.DateInfectious = t + pp.days(rng, params.DurExp2Inf)
	var end int
	switch {
	case !dist.Bernoulli(rng, p.SympProb):
		end = p.DateInfectious + pp.days(rng, params.DurAsym2Rec)
		p.DateRecovered = end
	default:
		p.DateSymptomatic = p.DateInfectious + pp.days(rng, params.DurInf2Sym)
		if !dist.Bernoulli(rng, p.SevereProb) {
			end = p.DateSymptomatic + pp.days(rng, params.DurMild2Rec)
			p.DateRecovered = end
			break
		}
		p.DateSevere = p.DateSymptomatic + pp.days(rng, params.DurSym2Sev)
		if !dist.Bernoulli(rng, p.CritProb) {
			end = p.DateSevere + pp.days(rng, params.DurSev2Rec)
			p.DateRecovered = end
			break
		}
		p.DateCritical = p.DateSevere + pp.days(rng, params.DurSev2Crit)
		if dist.Bernoulli(rng, p.DeathProb) {
			end = p.DateCritical + pp.days(rng, params.DurCrit2Die)
			p.DateDead = end
		} else {
			end = p.DateCritical + pp.days(rng, params.DurCrit2Rec)
			p.DateRecovered = end
		}
	}

	// The course always outlasts the day of exposure.
	if end <= t {
		if p.DateDead != NoDate {
			p.DateDead = t + 1
		} else {
			p.DateRecovered = t + 1
		}
	}
	return true
}

func (pp *People) days(rng *rand.Rand, key params.DurKey) int {
	return dist.SampleDays(rng, pp.dur[key])
}

// UpdateStates advances every agent's disease, diagnosis and quarantine
// state to day t and returns the transitions.
func (pp *People) UpdateStates(t int) Flows {
	var f Flows
	for i := range pp.Persons {
		p := &pp.Persons[i]

		if p.Exposed {
			if !p.Infectious && reached(p.DateInfectious, t) {
				p.Infectious = true
				f.Infectious++
			}
			if !p.Symptomatic && reached(p.DateSymptomatic, t) {
				p.Symptomatic = true
				f.Symptomatic++
			}
			if !p.Severe && reached(p.DateSevere, t) {
				p.Severe = true
				f.Severe++
			}
			if !p.Critical && reached(p.DateCritical, t) {
				p.Critical = true
				f.Critical++
			}
			if reached(p.DateRecovered, t) {
				p.endInfection()
				p.Recovered = true
				f.Recoveries++
			} else if reached(p.DateDead, t) {
				p.endInfection()
				p.Dead = true
				p.Quarantined = false
				f.Deaths++
			}
		}

		if !p.Diagnosed && reached(p.DateDiagnosed, t) {
			p.Diagnosed = true
			p.Quarantined = false
			f.Diagnoses++
		}

		if p.Quarantined && reached(p.DateEndQuarantine, t) {
			p.Quarantined = false
			p.DateQuarantined = NoDate
			p.DateEndQuarantine = NoDate
		} else if !p.Quarantined && !p.Dead && !p.Diagnosed && reached(p.DateQuarantined, t) {
			p.Quarantined = true
			p.DateEndQuarantine = t + pp.quarPeriod
			f.Quarantined++
		}
	}
	return f
}

func (p *Person) endInfection() {
	p.Exposed = false
	p.Infectious = false
	p.Symptomatic = false
	p.Severe = false
	p.Critical = false
}

func reached(date, t int) bool {
	return date != NoDate && date <= t
}

// MakeSusceptible returns agent i to the never-infected state. Diagnoses and
// quarantine are cleared along with the disease course.
func (pp *People) MakeSusceptible(i int) {
	pp.Persons[i].reset()
}
