package sim

import (
	"math"

	"github.com/nvandessel/episim/internal/results"
)

// finalize scales agent counts to real people, fills cumulative channels and
// computes the derived ones.
func (s *Sim) finalize() {
	r := s.res
	for _, ch := range results.All() {
		info, _ := results.Lookup(ch)
		if !info.Count || info.Kind == results.KindCumulative {
			continue
		}
		values := r.MustSeries(ch).Values
		for t := range values {
			values[t] *= s.rescaleVec[t]
		}
	}

	for _, pair := range results.FlowPairs {
		flow := r.MustSeries(pair.New).Values
		cum := r.MustSeries(pair.Cum).Values
		total := 0.0
		if pair.New == results.NewInfections {
			total = float64(s.seeds) * s.rescaleVec[0]
		}
		for t, v := range flow {
			total += v
			cum[t] = total
		}
	}

	// r_eff carries the last known value over days on which no infection
	// ended.
	reff := r.MustSeries(results.REff).Values
	last := 0.0
	for t := range reff {
		if v := s.rawREff[t]; !math.IsNaN(v) {
			last = v
		}
		reff[t] = last
	}
	r.DeriveRates()

	r.RescaleVec = s.RescaleVec()
	if m, err := s.pars.ToMap(); err == nil {
		r.Parameters = m
	} else {
		s.logger.Warn("failed to encode parameters into results", "label", s.label, "error", err)
	}
}
