package params

import (
	"fmt"
	"sort"
)

// Prognoses holds per-age-bracket progression probabilities.
//
// SympProbs are absolute. SevereProbs, CritProbs and DeathProbs are
// conditional on reaching the previous stage (severe given symptomatic,
// critical given severe, death given critical).
type Prognoses struct {
	AgeCutoffs  []float64 `json:"age_cutoffs" yaml:"age_cutoffs"`
	SusORs      []float64 `json:"sus_ORs" yaml:"sus_ORs"`
	TransORs    []float64 `json:"trans_ORs" yaml:"trans_ORs"`
	SympProbs   []float64 `json:"symp_probs" yaml:"symp_probs"`
	SevereProbs []float64 `json:"severe_probs" yaml:"severe_probs"`
	CritProbs   []float64 `json:"crit_probs" yaml:"crit_probs"`
	DeathProbs  []float64 `json:"death_probs" yaml:"death_probs"`
}

// GetPrognoses returns the default prognoses, stratified by age when byAge
// is true.
func GetPrognoses(byAge bool) Prognoses {
	if !byAge {
		return relativePrognoses(Prognoses{
			AgeCutoffs:  []float64{0},
			SusORs:      []float64{1.00},
			TransORs:    []float64{1.00},
			SympProbs:   []float64{0.75},
			SevereProbs: []float64{0.10},
			CritProbs:   []float64{0.04},
			DeathProbs:  []float64{0.01},
		})
	}
	return relativePrognoses(Prognoses{
		AgeCutoffs:  []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90},
		SusORs:      []float64{0.34, 0.67, 1.00, 1.00, 1.00, 1.00, 1.24, 1.47, 1.47, 1.47},
		TransORs:    []float64{1.00, 1.00, 1.00, 1.00, 1.00, 1.00, 1.00, 1.00, 1.00, 1.00},
		SympProbs:   []float64{0.50, 0.55, 0.60, 0.65, 0.70, 0.75, 0.80, 0.85, 0.90, 0.90},
		SevereProbs: []float64{0.00050, 0.00165, 0.00720, 0.02080, 0.03430, 0.07650, 0.13280, 0.20655, 0.24570, 0.24570},
		CritProbs:   []float64{0.00003, 0.00008, 0.00036, 0.00104, 0.00216, 0.00933, 0.03639, 0.08923, 0.17420, 0.17420},
		DeathProbs:  []float64{0.00002, 0.00002, 0.00010, 0.00032, 0.00098, 0.00265, 0.00766, 0.02439, 0.08292, 0.16190},
	})
}

// relativePrognoses converts absolute stage probabilities into conditional
// ones.
func relativePrognoses(p Prognoses) Prognoses {
	out := p.Clone()
	for i := range out.AgeCutoffs {
		out.DeathProbs[i] = safeDiv(p.DeathProbs[i], p.CritProbs[i])
		out.CritProbs[i] = safeDiv(p.CritProbs[i], p.SevereProbs[i])
		out.SevereProbs[i] = safeDiv(p.SevereProbs[i], p.SympProbs[i])
	}
	return out
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Clone returns a deep copy.
func (p Prognoses) Clone() Prognoses {
	return Prognoses{
		AgeCutoffs:  cloneFloats(p.AgeCutoffs),
		SusORs:      cloneFloats(p.SusORs),
		TransORs:    cloneFloats(p.TransORs),
		SympProbs:   cloneFloats(p.SympProbs),
		SevereProbs: cloneFloats(p.SevereProbs),
		CritProbs:   cloneFloats(p.CritProbs),
		DeathProbs:  cloneFloats(p.DeathProbs),
	}
}

// Array returns the probability array for key.
func (p Prognoses) Array(key PrognosisKey) ([]float64, bool) {
	switch key {
	case ProgSymp:
		return p.SympProbs, true
	case ProgSevere:
		return p.SevereProbs, true
	case ProgCrit:
		return p.CritProbs, true
	case ProgDeath:
		return p.DeathProbs, true
	}
	return nil, false
}

// withConstant returns a copy with the array for key replaced by a constant
// array of the same length.
func (p Prognoses) withConstant(key PrognosisKey, value float64) Prognoses {
	out := p.Clone()
	old, _ := out.Array(key)
	fresh := make([]float64, len(old))
	for i := range fresh {
		fresh[i] = value
	}
	switch key {
	case ProgSymp:
		out.SympProbs = fresh
	case ProgSevere:
		out.SevereProbs = fresh
	case ProgCrit:
		out.CritProbs = fresh
	case ProgDeath:
		out.DeathProbs = fresh
	}
	return out
}

// Bracket returns the index of the age bracket containing age.
func (p Prognoses) Bracket(age float64) int {
	i := sort.SearchFloat64s(p.AgeCutoffs, age)
	if i < len(p.AgeCutoffs) && p.AgeCutoffs[i] == age {
		return i
	}
	if i == 0 {
		return 0
	}
	return i - 1
}

// Validate checks that every array matches the number of age brackets.
func (p Prognoses) Validate() error {
	n := len(p.AgeCutoffs)
	if n == 0 {
		return fmt.Errorf("%w: prognoses need at least one age cutoff", ErrInvalidValue)
	}
	arrays := map[string][]float64{
		"sus_ORs": p.SusORs, "trans_ORs": p.TransORs, "symp_probs": p.SympProbs,
		"severe_probs": p.SevereProbs, "crit_probs": p.CritProbs, "death_probs": p.DeathProbs,
	}
	for name, arr := range arrays {
		if len(arr) != n {
			return fmt.Errorf("%w: prognoses %s has %d entries, want %d", ErrInvalidValue, name, len(arr), n)
		}
	}
	if !sort.Float64sAreSorted(p.AgeCutoffs) {
		return fmt.Errorf("%w: prognoses age_cutoffs must be ascending", ErrInvalidValue)
	}
	return nil
}

func cloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}
