package population

import (
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/dist"
	"github.com/nvandessel/episim/internal/params"
)

// Test tests the given agents on day t. Infectious agents test positive with
// probability sensitivity, and a positive result is lost with probability
// lossProb; otherwise they are diagnosed delay days later. It returns the
// number of tests performed.
func (pp *People) Test(rng *rand.Rand, inds []int, t int, sensitivity, lossProb float64, delay int) int {
	n := 0
	for _, i := range inds {
		p := &pp.Persons[i]
		if p.Dead {
			continue
		}
		n++
		p.Tested = true
		p.DateTested = t
		if !p.Infectious || p.Diagnosed {
			continue
		}
		if !dist.Bernoulli(rng, sensitivity) || dist.Bernoulli(rng, lossProb) {
			continue
		}
		date := t + max(delay, 0)
		if p.DateDiagnosed == NoDate || date < p.DateDiagnosed {
			p.DateDiagnosed = date
		}
	}
	return n
}

// Trace notifies the contacts of the given agents. In each layer a contact is
// reached with probs[layer] and becomes a known contact, quarantined from
// t + times[layer]. Layers missing from probs are not traced.
func (pp *People) Trace(rng *rand.Rand, inds []int, t int, probs map[params.Layer]float64, times map[params.Layer]int) int {
	reachedCount := 0
	n := pp.Len()
	for _, layer := range pp.Layers() {
		prob, ok := probs[layer]
		if !ok || prob <= 0 {
			continue
		}
		start := t + max(times[layer], 0)
		c := pp.Contacts[layer]
		for _, i := range inds {
			for _, j := range c.Neighbors(n, i) {
				q := &pp.Persons[j]
				if q.Dead || q.Diagnosed || !dist.Bernoulli(rng, prob) {
					continue
				}
				if !q.KnownContact || start < q.DateKnownContact {
					q.DateKnownContact = start
				}
				q.KnownContact = true
				pp.Quarantine(j, start)
				reachedCount++
			}
		}
	}
	return reachedCount
}

// Quarantine schedules agent i to enter quarantine on day start, keeping an
// earlier start if one is already scheduled.
func (pp *People) Quarantine(i, start int) {
	p := &pp.Persons[i]
	if p.Quarantined {
		// Re-exposure restarts the clock.
		p.DateEndQuarantine = max(p.DateEndQuarantine, start+pp.quarPeriod)
		return
	}
	if p.DateQuarantined == NoDate || start < p.DateQuarantined {
		p.DateQuarantined = start
	}
}
