// Package dist samples the parameterized distributions used for durations,
// transmissibility and contact counts.
package dist

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/episim/internal/params"
)

// Sample draws one value from d.
func Sample(rng *rand.Rand, d params.Dist) float64 {
	switch d.Kind {
	case params.DistConstant:
		return d.Par1
	case params.DistUniform:
		return d.Par1 + rng.Float64()*(d.Par2-d.Par1)
	case params.DistUniformInt:
		lo, hi := int(math.Round(d.Par1)), int(math.Round(d.Par2))
		if hi <= lo {
			return float64(lo)
		}
		return float64(lo + rng.IntN(hi-lo+1))
	case params.DistNormal:
		return d.Par1 + d.Par2*rng.NormFloat64()
	case params.DistNormalInt:
		return math.Round(d.Par1 + d.Par2*rng.NormFloat64())
	case params.DistLognormal:
		return Lognormal(rng, d.Par1, d.Par2)
	case params.DistLognormalInt:
		return math.Round(Lognormal(rng, d.Par1, d.Par2))
	case params.DistPoisson:
		return float64(Poisson(rng, d.Par1))
	case params.DistNegBinomial:
		return NegBinomial(rng, d.Par1, d.Par2, d.Step)
	}
	return d.Par1
}

// SampleDays draws a duration in whole days, never negative.
func SampleDays(rng *rand.Rand, d params.Dist) int {
	v := math.Round(Sample(rng, d))
	if v < 0 {
		return 0
	}
	return int(v)
}

// Lognormal draws from a lognormal distribution parameterized by the mean and
// standard deviation of the resulting values (not of the underlying normal).
func Lognormal(rng *rand.Rand, mean, std float64) float64 {
	if mean <= 0 {
		return 0
	}
	if std == 0 {
		return mean
	}
	variance := std * std
	sigma2 := math.Log(variance/(mean*mean) + 1)
	mu := math.Log(mean) - sigma2/2
	return math.Exp(mu + math.Sqrt(sigma2)*rng.NormFloat64())
}

// Poisson draws a Poisson-distributed count with rate lambda.
func Poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda > 30 {
		// Normal approximation is accurate enough for contact counts this large.
		v := math.Round(lambda + math.Sqrt(lambda)*rng.NormFloat64())
		if v < 0 {
			return 0
		}
		return int(v)
	}
	limit := math.Exp(-lambda)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}

// NegBinomial draws from a negative binomial with the given mean and
// dispersion, as a gamma-Poisson mixture. Smaller dispersion means heavier
// overdispersion. When step > 0 the draw is made on a grid of that size, so
// a mean of 1.0 with step 0.01 yields values like 0.37 or 2.15.
func NegBinomial(rng *rand.Rand, mean, dispersion, step float64) float64 {
	if mean <= 0 {
		return 0
	}
	if step <= 0 {
		step = 1
	}
	scaledMean := mean / step
	if dispersion <= 0 {
		return float64(Poisson(rng, scaledMean)) * step
	}
	lambda := Gamma(rng, dispersion, scaledMean/dispersion)
	return float64(Poisson(rng, lambda)) * step
}

// Gamma draws from a gamma distribution with the given shape and scale using
// Marsaglia and Tsang's method.
func Gamma(rng *rand.Rand, shape, scale float64) float64 {
	if shape <= 0 || scale <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		return Gamma(rng, shape+1, scale) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// Bernoulli reports whether an event with probability p happens.
func Bernoulli(rng *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

// ChooseN picks n distinct indices from [0, size) uniformly at random. If n
// is at least size every index is returned.
func ChooseN(rng *rand.Rand, size, n int) []int {
	if n <= 0 || size <= 0 {
		return nil
	}
	if n >= size {
		out := make([]int, size)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return rng.Perm(size)[:n]
}

// ChooseWeighted picks up to n distinct indices with probability proportional
// to weights. Indices with zero weight are never chosen.
func ChooseWeighted(rng *rand.Rand, weights []float64, n int) []int {
	if n <= 0 {
		return nil
	}
	// Efraimidis-Spirakis: keep the n largest u^(1/w) keys.
	type keyed struct {
		idx int
		key float64
	}
	candidates := make([]keyed, 0, len(weights))
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		candidates = append(candidates, keyed{idx: i, key: math.Log(rng.Float64()) / w})
	}
	if n >= len(candidates) {
		out := make([]int, len(candidates))
		for i, c := range candidates {
			out[i] = c.idx
		}
		return out
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].key > candidates[j].key })
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].idx
	}
	return out
}
