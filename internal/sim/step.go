package sim

import (
	"context"
	"math"

	"github.com/nvandessel/episim/internal/dist"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/population"
	"github.com/nvandessel/episim/internal/results"
)

// Step advances the sim by one day. After the last day it finalizes the
// results; stepping a complete sim returns ErrAlreadyRun.
func (s *Sim) Step() error {
	if s.complete {
		return ErrAlreadyRun
	}
	if err := s.Initialize(); err != nil {
		return err
	}
	t := s.t

	if s.pars.Rescale {
		s.rescale(t)
	}

	flows := s.people.UpdateStates(t)
	s.rawREff[t] = s.endedSecondary(t)

	s.todayTests = 0
	for _, iv := range s.interventions {
		iv.Apply(s)
	}
	flows.Tests = s.todayTests

	flows.Infections = s.transmit(t)
	s.record(t, flows)
	s.met.RecordDay(flows.Infections, s.rescaleVec[t])
	s.logger.Log(context.Background(), logging.LevelTrace, "day",
		"label", s.label, "t", t,
		"new_infections", flows.Infections,
		"scale", s.rescaleVec[t])

	s.t++
	if s.t > s.pars.NDays {
		s.finalize()
		s.complete = true
	}
	return nil
}

// rescale grows the scale of all later days once enough agents have left
// the susceptible pool, and returns a matching share of them to it.
func (s *Sim) rescale(t int) {
	popScale := s.pars.PopScale
	current := s.rescaleVec[t]
	if current >= popScale {
		return
	}
	nonSus := s.people.Indices(func(p *population.Person) bool { return !p.Susceptible })
	if float64(len(nonSus))/float64(s.people.Len()) <= s.pars.RescaleThreshold {
		return
	}
	ratio := math.Min(s.pars.RescaleFactor, popScale/current)
	for d := t + 1; d < len(s.rescaleVec); d++ {
		s.rescaleVec[d] = math.Min(s.rescaleVec[d]*ratio, popScale)
	}
	n := int(math.Round(float64(len(nonSus)) * (1 - 1/ratio)))
	for _, k := range dist.ChooseN(s.rng, len(nonSus), n) {
		s.people.MakeSusceptible(nonSus[k])
	}

	s.met.RecordRescale()
	s.logger.Debug("rescaled population", "label", s.label, "day", t, "ratio", ratio, "scale", current*ratio, "reset", n)
	s.events.Event("rescale", map[string]any{
		"sim": s.label, "day": t, "ratio": ratio, "scale": math.Min(current*ratio, popScale), "reset": n,
	})
}

// endedSecondary is the mean number of secondary infections caused by
// people whose infection ended on day t, or NaN if nobody's did.
func (s *Sim) endedSecondary(t int) float64 {
	total, n := 0, 0
	for i := range s.people.Persons {
		p := &s.people.Persons[i]
		if (p.Recovered && p.DateRecovered == t) || (p.Dead && p.DateDead == t) {
			total += p.Secondary
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return float64(total) / float64(n)
}

// transmit checks every edge of every layer in both directions and returns
// the number of new infections.
func (s *Sim) transmit(t int) int {
	pp := s.people
	n := pp.Len()
	infections := 0
	for _, layer := range pp.Layers() {
		c := pp.Contacts[layer]
		beta := s.pars.Beta * s.betaFactor * s.pars.BetaLayer[layer] * s.layerFactor[layer]
		if beta <= 0 {
			continue
		}
		iso := s.pars.IsoFactor[layer]
		quar := s.pars.QuarFactor[layer]
		for k := range c.P1 {
			a, b := c.P1[k], c.P2[k]
			if a >= n || b >= n {
				continue
			}
			for _, pair := range [2][2]int{{a, b}, {b, a}} {
				src, tgt := &pp.Persons[pair[0]], &pp.Persons[pair[1]]
				if !src.Infectious || src.Dead || !tgt.Susceptible || tgt.Dead {
					continue
				}
				prob := beta * src.RelTrans * s.viralLoad(src, t) * tgt.RelSus
				if !src.Symptomatic {
					prob *= s.pars.AsympFactor
				}
				if src.Diagnosed {
					prob *= iso
				} else if src.Quarantined {
					prob *= quar
				}
				if tgt.Quarantined {
					prob *= quar
				}
				if dist.Bernoulli(s.rng, prob) && pp.Infect(s.rng, pair[1], t, pair[0]) {
					infections++
				}
			}
		}
	}
	return infections
}

// viralLoad is the relative infectiousness of p on day t. The first part of
// the infectious period carries load_ratio times the load of the rest,
// normalized so the mean over the period is 1.
func (s *Sim) viralLoad(p *population.Person, t int) float64 {
	end := p.DateRecovered
	if end == population.NoDate {
		end = p.DateDead
	}
	dur := float64(end - p.DateInfectious)
	if p.DateInfectious == population.NoDate || end == population.NoDate || dur <= 0 {
		return 1
	}
	vd := s.pars.ViralDist
	high := math.Min(vd.FracTime*dur, vd.HighCap)
	norm := (high*vd.LoadRatio + (dur - high)) / dur
	if norm <= 0 {
		return 1
	}
	if float64(t-p.DateInfectious) < high {
		return vd.LoadRatio / norm
	}
	return 1 / norm
}

// record stores unscaled flows and stocks for day t.
func (s *Sim) record(t int, f population.Flows) {
	set := func(ch results.Channel, v int) {
		s.res.MustSeries(ch).Values[t] = float64(v)
	}
	set(results.NewInfections, f.Infections)
	set(results.NewInfectious, f.Infectious)
	set(results.NewTests, f.Tests)
	set(results.NewDiagnoses, f.Diagnoses)
	set(results.NewRecoveries, f.Recoveries)
	set(results.NewSymptomatic, f.Symptomatic)
	set(results.NewSevere, f.Severe)
	set(results.NewCritical, f.Critical)
	set(results.NewDeaths, f.Deaths)
	set(results.NewQuarantined, f.Quarantined)

	var st struct {
		sus, exp, inf, sym, sev, crit, diag, quar, alive int
	}
	for i := range s.people.Persons {
		p := &s.people.Persons[i]
		if p.Susceptible {
			st.sus++
		}
		if p.Exposed {
			st.exp++
		}
		if p.Infectious {
			st.inf++
		}
		if p.Symptomatic {
			st.sym++
		}
		if p.Severe {
			st.sev++
		}
		if p.Critical {
			st.crit++
		}
		if p.Diagnosed {
			st.diag++
		}
		if p.Quarantined {
			st.quar++
		}
		if !p.Dead {
			st.alive++
		}
	}
	set(results.NSusceptible, st.sus)
	set(results.NExposed, st.exp)
	set(results.NInfectious, st.inf)
	set(results.NSymptomatic, st.sym)
	set(results.NSevere, st.sev)
	set(results.NCritical, st.crit)
	set(results.NDiagnosed, st.diag)
	set(results.NQuarantined, st.quar)
	set(results.NAlive, st.alive)
}
