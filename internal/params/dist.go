package params

import "fmt"

// DistKind names a probability distribution family.
type DistKind string

// Supported distribution families. The *_int variants round samples to the
// nearest integer.
const (
	DistConstant     DistKind = "constant"
	DistUniform      DistKind = "uniform"
	DistUniformInt   DistKind = "uniform_int"
	DistNormal       DistKind = "normal"
	DistNormalInt    DistKind = "normal_int"
	DistLognormal    DistKind = "lognormal"
	DistLognormalInt DistKind = "lognormal_int"
	DistPoisson      DistKind = "poisson"
	DistNegBinomial  DistKind = "neg_binomial"
)

var knownDists = map[DistKind]bool{
	DistConstant: true, DistUniform: true, DistUniformInt: true,
	DistNormal: true, DistNormalInt: true, DistLognormal: true,
	DistLognormalInt: true, DistPoisson: true, DistNegBinomial: true,
}

// Dist is a distribution kind plus two shape parameters.
//
// The meaning of Par1/Par2 depends on the kind: mean and standard deviation
// for normal and lognormal, low and high for uniform, rate for poisson (Par2
// unused), mean and dispersion for neg_binomial, and the value for constant.
type Dist struct {
	Kind DistKind `json:"dist" yaml:"dist"`
	Par1 float64  `json:"par1" yaml:"par1"`
	Par2 float64  `json:"par2" yaml:"par2"`
	// Step discretizes neg_binomial samples (0 = integers).
	Step float64 `json:"step,omitempty" yaml:"step,omitempty"`
}

// Validate checks that the kind is known and the parameters are usable.
func (d Dist) Validate() error {
	if !knownDists[d.Kind] {
		return fmt.Errorf("%w: unknown distribution %q (valid: %v)", ErrInvalidValue, d.Kind, sortedNames(knownDists))
	}
	if d.Par2 < 0 && d.Kind != DistUniform && d.Kind != DistUniformInt {
		return fmt.Errorf("%w: distribution %s has negative par2 %v", ErrInvalidValue, d.Kind, d.Par2)
	}
	if (d.Kind == DistUniform || d.Kind == DistUniformInt) && d.Par2 < d.Par1 {
		return fmt.Errorf("%w: uniform bounds reversed [%v, %v]", ErrInvalidValue, d.Par1, d.Par2)
	}
	return nil
}

// ViralDist shapes the viral load over the infectious period: the first
// FracTime of the period (capped at HighCap days) is LoadRatio times more
// infectious than the rest.
type ViralDist struct {
	FracTime  float64 `json:"frac_time" yaml:"frac_time"`
	LoadRatio float64 `json:"load_ratio" yaml:"load_ratio"`
	HighCap   float64 `json:"high_cap" yaml:"high_cap"`
}
