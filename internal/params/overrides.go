package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// UnknownKeyError reports an override key outside the supported set.
type UnknownKeyError struct {
	Key       string
	Supported []string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("key %q not found in %v", e.Key, e.Supported)
}

// Unwrap lets errors.Is match ErrUnknownKey.
func (e *UnknownKeyError) Unwrap() error { return ErrUnknownKey }

// With returns a copy of p with overrides merged on top. Keys are validated
// against the supported schema before anything is applied, so a failed call
// never yields a half-updated value. Values may be Go-typed or come from a
// JSON/YAML decode (float64 for numbers, map[string]any for objects).
//
// The dur, contacts, beta_layer, iso_factor and quar_factor maps merge entry
// by entry; every other key replaces the old value.
func (p Pars) With(overrides map[string]any) (Pars, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !knownKeys[Key(k)] {
			return Pars{}, &UnknownKeyError{Key: k, Supported: Keys()}
		}
		keys = append(keys, k)
	}
	// pop_type resets the layer maps, so it goes first.
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i] == string(KeyPopType) && keys[j] != string(KeyPopType)
	})

	out := p.Clone()
	for _, k := range keys {
		if err := out.set(Key(k), overrides[k]); err != nil {
			return Pars{}, err
		}
	}
	return out, nil
}

func (p *Pars) set(key Key, value any) error {
	var err error
	switch key {
	case KeyPopSize:
		err = decodeInto(value, &p.PopSize)
	case KeyPopInfected:
		err = decodeInto(value, &p.PopInfected)
	case KeyPopType:
		var pt PopType
		if err = decodeInto(value, &pt); err == nil {
			if pt != PopRandom && pt != PopHybrid {
				return fmt.Errorf("%w: pop_type %q (valid: random, hybrid)", ErrInvalidValue, pt)
			}
			p.setLayerDefaults(pt)
		}
	case KeyPopScale:
		err = decodeInto(value, &p.PopScale)
	case KeyRescale:
		err = decodeInto(value, &p.Rescale)
	case KeyRescaleThreshold:
		err = decodeInto(value, &p.RescaleThreshold)
	case KeyRescaleFactor:
		err = decodeInto(value, &p.RescaleFactor)
	case KeyNDays:
		err = decodeInto(value, &p.NDays)
	case KeyRandSeed:
		err = decodeInto(value, &p.RandSeed)
	case KeyBeta:
		err = decodeInto(value, &p.Beta)
	case KeyContacts:
		err = mergeLayerMap(value, &p.Contacts)
	case KeyBetaLayer:
		err = mergeLayerMap(value, &p.BetaLayer)
	case KeyIsoFactor:
		err = mergeLayerMap(value, &p.IsoFactor)
	case KeyQuarFactor:
		err = mergeLayerMap(value, &p.QuarFactor)
	case KeyQuarPeriod:
		err = decodeInto(value, &p.QuarPeriod)
	case KeyAsympFactor:
		err = decodeInto(value, &p.AsympFactor)
	case KeyBetaDist:
		err = decodeInto(value, &p.BetaDist)
	case KeyViralDist:
		err = decodeInto(value, &p.ViralDist)
	case KeyDur:
		var durs map[DurKey]Dist
		if err = decodeInto(value, &durs); err == nil {
			if p.Dur == nil {
				p.Dur = make(map[DurKey]Dist, len(durs))
			}
			for k, d := range durs {
				if !knownDurKeys[k] {
					return &UnknownKeyError{Key: string(k), Supported: DurKeys()}
				}
				p.Dur[k] = d
			}
		}
	case KeyRelSympProb:
		err = decodeInto(value, &p.RelSympProb)
	case KeyRelSevereProb:
		err = decodeInto(value, &p.RelSevereProb)
	case KeyRelCritProb:
		err = decodeInto(value, &p.RelCritProb)
	case KeyRelDeathProb:
		err = decodeInto(value, &p.RelDeathProb)
	case KeyProgByAge:
		if err = decodeInto(value, &p.ProgByAge); err == nil {
			p.Prognoses = GetPrognoses(p.ProgByAge)
		}
	case KeyPrognoses:
		var progs Prognoses
		if err = decodeInto(value, &progs); err == nil {
			p.Prognoses = progs
		}
	case KeyInterventions:
		var specs []InterventionSpec
		if err = decodeInto(value, &specs); err == nil {
			p.Interventions = specs
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	return nil
}

// WithDuration returns a copy with one duration distribution replaced.
func (p Pars) WithDuration(key DurKey, d Dist) (Pars, error) {
	if !knownDurKeys[key] {
		return Pars{}, &UnknownKeyError{Key: string(key), Supported: DurKeys()}
	}
	if err := d.Validate(); err != nil {
		return Pars{}, fmt.Errorf("dur %s: %w", key, err)
	}
	out := p.Clone()
	if out.Dur == nil {
		out.Dur = make(map[DurKey]Dist, 1)
	}
	out.Dur[key] = d
	return out, nil
}

// WithDurationTriple is WithDuration from a (kind, par1, par2) triple.
func (p Pars) WithDurationTriple(key DurKey, kind DistKind, par1, par2 float64) (Pars, error) {
	return p.WithDuration(key, Dist{Kind: kind, Par1: par1, Par2: par2})
}

// WithAbsoluteProb pins a progression probability to the same value for
// every age bracket. key is one of rel_symp_prob, rel_severe_prob,
// rel_crit_prob or rel_death_prob; the matching prognosis array is replaced
// by a constant array of the same length.
func (p Pars) WithAbsoluteProb(key RelProbKey, value float64) (Pars, error) {
	target, ok := relProbTargets[key]
	if !ok {
		return Pars{}, &UnknownKeyError{Key: string(key), Supported: RelProbKeys()}
	}
	if value < 0 || value > 1 {
		return Pars{}, fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidValue, key, value)
	}
	out := p.Clone()
	out.Prognoses = out.Prognoses.withConstant(target, value)
	return out, nil
}

// WithAbsoluteProbs applies WithAbsoluteProb for every entry.
func (p Pars) WithAbsoluteProbs(probs map[RelProbKey]float64) (Pars, error) {
	keys := make([]string, 0, len(probs))
	for k := range probs {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	out := p
	for _, k := range keys {
		var err error
		if out, err = out.WithAbsoluteProb(RelProbKey(k), probs[RelProbKey(k)]); err != nil {
			return Pars{}, err
		}
	}
	return out, nil
}

// WithInterventions returns a copy whose intervention list is replaced.
func (p Pars) WithInterventions(specs ...InterventionSpec) Pars {
	out := p.Clone()
	out.Interventions = cloneSpecs(specs)
	return out
}

// WithSeed returns a copy with a different random seed.
func (p Pars) WithSeed(seed int64) Pars {
	out := p.Clone()
	out.RandSeed = seed
	return out
}

// ToMap renders p as a JSON-compatible map keyed by parameter name.
func (p Pars) ToMap() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling parameters: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling parameters: %w", err)
	}
	return out, nil
}

// decodeInto converts a loosely typed value into target through JSON, which
// accepts both Go-typed values and generic decoder output.
func decodeInto(value any, target any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func mergeLayerMap(value any, target *map[Layer]float64) error {
	var m map[Layer]float64
	if err := decodeInto(value, &m); err != nil {
		return err
	}
	if *target == nil {
		*target = make(map[Layer]float64, len(m))
	}
	valid := map[Layer]bool{LayerAll: true, LayerHousehold: true, LayerSchool: true, LayerWork: true, LayerCommunity: true}
	for k, v := range m {
		if !valid[k] {
			return fmt.Errorf("unknown layer %q (valid: a, h, s, w, c)", k)
		}
		if v < 0 {
			return fmt.Errorf("layer %s value must be non-negative, got %v", k, v)
		}
		(*target)[k] = v
	}
	return nil
}
