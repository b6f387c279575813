package results

import "math"

const (
	// DoublingWindow is the number of days over which growth is measured.
	DoublingWindow = 3
	// MaxDoublingTime caps doubling_time when growth stalls.
	MaxDoublingTime = 30.0
)

// DeriveRates computes prevalence, incidence and doubling_time from the
// count channels. r_eff depends on individual histories and is left alone.
func (r *Results) DeriveRates() {
	exposed := r.MustSeries(NExposed).Values
	alive := r.MustSeries(NAlive).Values
	susceptible := r.MustSeries(NSusceptible).Values
	newInf := r.MustSeries(NewInfections).Values
	cumInf := r.MustSeries(CumInfections).Values

	prevalence := r.MustSeries(Prevalence).Values
	incidence := r.MustSeries(Incidence).Values
	doubling := r.MustSeries(DoublingTime).Values

	for t := range prevalence {
		prevalence[t] = ratio(exposed[t], alive[t])
		incidence[t] = ratio(newInf[t], susceptible[t])
		if t >= DoublingWindow {
			doubling[t] = DoublingTimeOf(cumInf[t-DoublingWindow], cumInf[t])
		} else {
			doubling[t] = 0
		}
	}
}

// DoublingTimeOf is the number of days cumulative infections take to double
// at the growth rate seen over the window, capped at MaxDoublingTime.
func DoublingTimeOf(before, after float64) float64 {
	if before <= 0 || after <= before {
		return MaxDoublingTime
	}
	d := DoublingWindow * math.Ln2 / math.Log(after/before)
	return math.Min(d, MaxDoublingTime)
}

func ratio(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}
