// Package params defines the simulation parameter set and its immutable
// builder.
//
// A Pars value is created from Defaults and refined through With* methods,
// each of which returns a new value and leaves the receiver untouched:
//
//	base := params.Defaults(params.PopRandom)
//	p, err := base.With(map[string]any{"pop_size": 500, "beta": 0.4})
//	p, err = p.WithAbsoluteProb(params.KeyRelSympProb, 0)
package params

import (
	"errors"
	"fmt"
)

// Parameter errors.
var (
	// ErrUnknownKey is returned when an override names a key outside the
	// supported schema.
	ErrUnknownKey = errors.New("unknown parameter key")

	// ErrInvalidValue is returned when a value has the wrong type or
	// violates a parameter invariant.
	ErrInvalidValue = errors.New("invalid parameter value")
)

// Pars is a complete simulation parameter set.
type Pars struct {
	PopSize          int     `json:"pop_size" yaml:"pop_size"`
	PopInfected      int     `json:"pop_infected" yaml:"pop_infected"`
	PopType          PopType `json:"pop_type" yaml:"pop_type"`
	PopScale         float64 `json:"pop_scale" yaml:"pop_scale"`
	Rescale          bool    `json:"rescale" yaml:"rescale"`
	RescaleThreshold float64 `json:"rescale_threshold" yaml:"rescale_threshold"`
	RescaleFactor    float64 `json:"rescale_factor" yaml:"rescale_factor"`
	NDays            int     `json:"n_days" yaml:"n_days"`
	RandSeed         int64   `json:"rand_seed" yaml:"rand_seed"`

	Beta        float64           `json:"beta" yaml:"beta"`
	Contacts    map[Layer]float64 `json:"contacts" yaml:"contacts"`
	BetaLayer   map[Layer]float64 `json:"beta_layer" yaml:"beta_layer"`
	IsoFactor   map[Layer]float64 `json:"iso_factor" yaml:"iso_factor"`
	QuarFactor  map[Layer]float64 `json:"quar_factor" yaml:"quar_factor"`
	QuarPeriod  int               `json:"quar_period" yaml:"quar_period"`
	AsympFactor float64           `json:"asymp_factor" yaml:"asymp_factor"`
	BetaDist    Dist              `json:"beta_dist" yaml:"beta_dist"`
	ViralDist   ViralDist         `json:"viral_dist" yaml:"viral_dist"`

	Dur map[DurKey]Dist `json:"dur" yaml:"dur"`

	RelSympProb   float64   `json:"rel_symp_prob" yaml:"rel_symp_prob"`
	RelSevereProb float64   `json:"rel_severe_prob" yaml:"rel_severe_prob"`
	RelCritProb   float64   `json:"rel_crit_prob" yaml:"rel_crit_prob"`
	RelDeathProb  float64   `json:"rel_death_prob" yaml:"rel_death_prob"`
	ProgByAge     bool      `json:"prog_by_age" yaml:"prog_by_age"`
	Prognoses     Prognoses `json:"prognoses" yaml:"prognoses"`

	Interventions []InterventionSpec `json:"interventions" yaml:"interventions"`
}

// Defaults returns the default parameter set for a population type.
func Defaults(pt PopType) Pars {
	p := Pars{
		PopSize:          20000,
		PopInfected:      20,
		PopType:          PopRandom,
		PopScale:         1,
		Rescale:          true,
		RescaleThreshold: 0.05,
		RescaleFactor:    1.2,
		NDays:            60,
		RandSeed:         1,
		Beta:             0.016,
		QuarPeriod:       14,
		AsympFactor:      1.0,
		BetaDist:         Dist{Kind: DistNegBinomial, Par1: 1.0, Par2: 0.45, Step: 0.01},
		ViralDist:        ViralDist{FracTime: 0.3, LoadRatio: 2, HighCap: 4},
		Dur:              DefaultDurations(),
		RelSympProb:      1.0,
		RelSevereProb:    1.0,
		RelCritProb:      1.0,
		RelDeathProb:     1.0,
		ProgByAge:        true,
		Prognoses:        GetPrognoses(true),
	}
	p.setLayerDefaults(pt)
	return p
}

// MakePars returns the random-population defaults with prognoses set by age
// or not.
func MakePars(progByAge bool) Pars {
	p := Defaults(PopRandom)
	p.ProgByAge = progByAge
	p.Prognoses = GetPrognoses(progByAge)
	return p
}

// DefaultDurations returns the default progression durations in days.
func DefaultDurations() map[DurKey]Dist {
	return map[DurKey]Dist{
		DurExp2Inf:  {Kind: DistLognormalInt, Par1: 4.6, Par2: 4.8},
		DurInf2Sym:  {Kind: DistLognormalInt, Par1: 1.0, Par2: 0.9},
		DurSym2Sev:  {Kind: DistLognormalInt, Par1: 6.6, Par2: 4.9},
		DurSev2Crit: {Kind: DistLognormalInt, Par1: 3.0, Par2: 7.4},
		DurAsym2Rec: {Kind: DistLognormalInt, Par1: 8.0, Par2: 2.0},
		DurMild2Rec: {Kind: DistLognormalInt, Par1: 8.0, Par2: 2.0},
		DurSev2Rec:  {Kind: DistLognormalInt, Par1: 14.0, Par2: 2.4},
		DurCrit2Rec: {Kind: DistLognormalInt, Par1: 14.0, Par2: 2.4},
		DurCrit2Die: {Kind: DistLognormalInt, Par1: 6.2, Par2: 1.7},
	}
}

func (p *Pars) setLayerDefaults(pt PopType) {
	p.PopType = pt
	if pt == PopHybrid {
		p.Contacts = map[Layer]float64{LayerHousehold: 2.0, LayerSchool: 20, LayerWork: 16, LayerCommunity: 20}
		p.BetaLayer = map[Layer]float64{LayerHousehold: 3.0, LayerSchool: 0.6, LayerWork: 0.6, LayerCommunity: 0.3}
		p.IsoFactor = map[Layer]float64{LayerHousehold: 0.3, LayerSchool: 0.1, LayerWork: 0.1, LayerCommunity: 0.1}
		p.QuarFactor = map[Layer]float64{LayerHousehold: 0.8, LayerSchool: 0.0, LayerWork: 0.0, LayerCommunity: 0.1}
		return
	}
	p.Contacts = map[Layer]float64{LayerAll: 20}
	p.BetaLayer = map[Layer]float64{LayerAll: 1.0}
	p.IsoFactor = map[Layer]float64{LayerAll: 0.2}
	p.QuarFactor = map[Layer]float64{LayerAll: 0.3}
}

// WithPopType returns a copy switched to another population type, resetting
// the per-layer maps to that type's defaults.
func (p Pars) WithPopType(pt PopType) (Pars, error) {
	if pt != PopRandom && pt != PopHybrid {
		return Pars{}, fmt.Errorf("%w: pop_type %q (valid: random, hybrid)", ErrInvalidValue, pt)
	}
	out := p.Clone()
	out.setLayerDefaults(pt)
	return out, nil
}

// Clone returns a deep copy.
func (p Pars) Clone() Pars {
	out := p
	out.Contacts = cloneLayerMap(p.Contacts)
	out.BetaLayer = cloneLayerMap(p.BetaLayer)
	out.IsoFactor = cloneLayerMap(p.IsoFactor)
	out.QuarFactor = cloneLayerMap(p.QuarFactor)
	if p.Dur != nil {
		out.Dur = make(map[DurKey]Dist, len(p.Dur))
		for k, v := range p.Dur {
			out.Dur[k] = v
		}
	}
	out.Prognoses = p.Prognoses.Clone()
	out.Interventions = cloneSpecs(p.Interventions)
	return out
}

// ScaledPopSize is the number of people the simulation represents.
func (p Pars) ScaledPopSize() float64 {
	return float64(p.PopSize) * p.PopScale
}

// Layers returns the contact layers for the configured population type.
func (p Pars) Layers() []Layer {
	return LayersFor(p.PopType)
}

// Validate checks parameter invariants.
func (p Pars) Validate() error {
	switch {
	case p.PopSize <= 0:
		return fmt.Errorf("%w: pop_size must be positive, got %d", ErrInvalidValue, p.PopSize)
	case p.PopInfected < 0 || p.PopInfected > p.PopSize:
		return fmt.Errorf("%w: pop_infected must be in [0, pop_size=%d], got %d", ErrInvalidValue, p.PopSize, p.PopInfected)
	case p.PopType != PopRandom && p.PopType != PopHybrid:
		return fmt.Errorf("%w: pop_type %q (valid: random, hybrid)", ErrInvalidValue, p.PopType)
	case p.PopScale < 1:
		return fmt.Errorf("%w: pop_scale must be >= 1, got %v", ErrInvalidValue, p.PopScale)
	case p.RescaleThreshold < 0 || p.RescaleThreshold > 1:
		return fmt.Errorf("%w: rescale_threshold must be in [0, 1], got %v", ErrInvalidValue, p.RescaleThreshold)
	case p.Rescale && p.RescaleFactor <= 1:
		return fmt.Errorf("%w: rescale_factor must be > 1, got %v", ErrInvalidValue, p.RescaleFactor)
	case p.NDays < 1:
		return fmt.Errorf("%w: n_days must be >= 1, got %d", ErrInvalidValue, p.NDays)
	case p.Beta < 0:
		return fmt.Errorf("%w: beta must be non-negative, got %v", ErrInvalidValue, p.Beta)
	case p.QuarPeriod < 0:
		return fmt.Errorf("%w: quar_period must be non-negative, got %d", ErrInvalidValue, p.QuarPeriod)
	}

	for _, layer := range p.Layers() {
		if _, ok := p.Contacts[layer]; !ok {
			return fmt.Errorf("%w: contacts missing layer %q for pop_type %s", ErrInvalidValue, layer, p.PopType)
		}
		if _, ok := p.BetaLayer[layer]; !ok {
			return fmt.Errorf("%w: beta_layer missing layer %q for pop_type %s", ErrInvalidValue, layer, p.PopType)
		}
	}

	if err := p.BetaDist.Validate(); err != nil {
		return fmt.Errorf("beta_dist: %w", err)
	}
	for key := range knownDurKeys {
		d, ok := p.Dur[key]
		if !ok {
			return fmt.Errorf("%w: dur missing %q", ErrInvalidValue, key)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("dur %s: %w", key, err)
		}
	}
	if err := p.Prognoses.Validate(); err != nil {
		return err
	}
	for i, spec := range p.Interventions {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("interventions[%d]: %w", i, err)
		}
	}
	return nil
}

func cloneLayerMap(in map[Layer]float64) map[Layer]float64 {
	if in == nil {
		return nil
	}
	out := make(map[Layer]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
