package params

import (
	"errors"
	"reflect"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	for _, pt := range []PopType{PopRandom, PopHybrid} {
		p := Defaults(pt)
		if err := p.Validate(); err != nil {
			t.Errorf("Defaults(%s).Validate() = %v", pt, err)
		}
		if got := len(p.Contacts); got != len(LayersFor(pt)) {
			t.Errorf("Defaults(%s) has %d contact layers, want %d", pt, got, len(LayersFor(pt)))
		}
	}
}

func TestMakePars(t *testing.T) {
	if n := len(MakePars(true).Prognoses.AgeCutoffs); n != 10 {
		t.Errorf("age-stratified prognoses have %d brackets, want 10", n)
	}
	if n := len(MakePars(false).Prognoses.AgeCutoffs); n != 1 {
		t.Errorf("flat prognoses have %d brackets, want 1", n)
	}
}

func TestWith(t *testing.T) {
	base := Defaults(PopRandom)
	p, err := base.With(map[string]any{
		"pop_size":  float64(500), // as decoded from JSON
		"beta":      0.4,
		"rescale":   false,
		"contacts":  map[string]any{"a": 3.0},
		"dur":       map[string]any{"exp2inf": map[string]any{"dist": "normal", "par1": 2.0, "par2": 0.0}},
		"pop_scale": 10,
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if p.PopSize != 500 || p.Beta != 0.4 || p.Rescale || p.PopScale != 10 {
		t.Errorf("With scalar overrides not applied: %+v", p)
	}
	if p.Contacts[LayerAll] != 3 {
		t.Errorf("contacts[a] = %v, want 3", p.Contacts[LayerAll])
	}
	if d := p.Dur[DurExp2Inf]; d.Kind != DistNormal || d.Par1 != 2 {
		t.Errorf("dur exp2inf = %+v", d)
	}
	if len(p.Dur) != len(DefaultDurations()) {
		t.Errorf("dur override dropped other durations: %d left", len(p.Dur))
	}

	// The receiver is untouched.
	if base.PopSize != 20000 || base.Contacts[LayerAll] != 20 || base.Dur[DurExp2Inf].Kind != DistLognormalInt {
		t.Error("With modified the receiver")
	}
}

func TestWith_Errors(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		target    error
	}{
		{"unknown key", map[string]any{"pop_sise": 10}, ErrUnknownKey},
		{"wrong type", map[string]any{"pop_size": "many"}, ErrInvalidValue},
		{"bad pop type", map[string]any{"pop_type": "synthpops"}, ErrInvalidValue},
		{"unknown layer", map[string]any{"contacts": map[string]any{"x": 1.0}}, ErrInvalidValue},
		{"unknown duration", map[string]any{"dur": map[string]any{"inf2moon": map[string]any{"dist": "normal"}}}, ErrUnknownKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Defaults(PopRandom).With(tt.overrides)
			if !errors.Is(err, tt.target) {
				t.Errorf("With(%v) = %v, want %v", tt.overrides, err, tt.target)
			}
		})
	}
}

func TestWith_UnknownKeyListsSupported(t *testing.T) {
	_, err := Defaults(PopRandom).With(map[string]any{"bogus": 1})
	var uke *UnknownKeyError
	if !errors.As(err, &uke) {
		t.Fatalf("err = %v, want UnknownKeyError", err)
	}
	if uke.Key != "bogus" || !reflect.DeepEqual(uke.Supported, Keys()) {
		t.Errorf("UnknownKeyError = %+v", uke)
	}
}

func TestWith_PopTypeResetsLayers(t *testing.T) {
	p, err := Defaults(PopRandom).With(map[string]any{
		"pop_type": "hybrid",
		"contacts": map[string]any{"h": 4.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Contacts[LayerHousehold] != 4 || p.Contacts[LayerSchool] != 20 {
		t.Errorf("contacts = %v, want hybrid defaults with h=4", p.Contacts)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		over map[string]any
	}{
		{"zero population", map[string]any{"pop_size": 0}},
		{"too many infected", map[string]any{"pop_size": 10, "pop_infected": 11}},
		{"scale below one", map[string]any{"pop_scale": 0.5}},
		{"rescale factor", map[string]any{"rescale_factor": 1.0}},
		{"threshold", map[string]any{"rescale_threshold": 1.5}},
		{"no days", map[string]any{"n_days": 0}},
		{"negative beta", map[string]any{"beta": -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Defaults(PopRandom).With(tt.over)
			if err != nil {
				t.Fatalf("With: %v", err)
			}
			if err := p.Validate(); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("Validate() = %v, want ErrInvalidValue", err)
			}
		})
	}
}

func TestWithAbsoluteProb(t *testing.T) {
	p, err := MakePars(true).WithAbsoluteProb(KeyRelDeathProb, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range p.Prognoses.DeathProbs {
		if v != 0.3 {
			t.Errorf("death_probs[%d] = %v, want 0.3", i, v)
		}
	}
	if p.Prognoses.SympProbs[0] != MakePars(true).Prognoses.SympProbs[0] {
		t.Error("other arrays should be untouched")
	}

	if _, err := p.WithAbsoluteProb("rel_zombie_prob", 0.1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key = %v, want ErrUnknownKey", err)
	}
	if _, err := p.WithAbsoluteProb(KeyRelSympProb, 1.5); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("out of range = %v, want ErrInvalidValue", err)
	}
}

func TestWithDurationTriple(t *testing.T) {
	p, err := MakePars(true).WithDurationTriple(DurCrit2Die, DistNormal, 6, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Dur[DurCrit2Die]; got != (Dist{Kind: DistNormal, Par1: 6}) {
		t.Errorf("crit2die = %+v", got)
	}
	if _, err := p.WithDurationTriple(DurCrit2Die, "cauchy", 1, 1); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("unknown distribution = %v, want ErrInvalidValue", err)
	}
}

func TestWithDuration_ZeroPars(t *testing.T) {
	want := Dist{Kind: DistConstant, Par1: 3}
	p, err := Pars{}.WithDuration(DurExp2Inf, want)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Dur[DurExp2Inf]; got != want {
		t.Errorf("exp2inf = %+v, want %+v", got, want)
	}
	if len(p.Dur) != 1 {
		t.Errorf("Dur = %v, want one entry", p.Dur)
	}
}

func TestClone_Deep(t *testing.T) {
	p := MakePars(true).WithInterventions(ChangeBeta([]int{5}, []float64{0.5}))
	c := p.Clone()
	c.Contacts[LayerAll] = 99
	c.Dur[DurExp2Inf] = Dist{Kind: DistConstant, Par1: 1}
	c.Prognoses.SympProbs[0] = 0
	c.Interventions[0].Changes[0] = 0.1

	if p.Contacts[LayerAll] == 99 || p.Dur[DurExp2Inf].Kind == DistConstant ||
		p.Prognoses.SympProbs[0] == 0 || p.Interventions[0].Changes[0] == 0.1 {
		t.Error("Clone shares state with the original")
	}
}

func TestClone_QuarantineProbs(t *testing.T) {
	p := MakePars(true).WithInterventions(TestProb(0.2, 0.1, 0).WithQuarProbs(0.5, 0))
	c := p.Clone()
	*c.Interventions[0].SympQuarProb = 0.9
	if got := *p.Interventions[0].SympQuarProb; got != 0.5 {
		t.Errorf("original symp_quar_prob = %v after mutating clone, want 0.5", got)
	}
	if got := *p.Interventions[0].AsympQuarProb; got != 0 {
		t.Errorf("asymp_quar_prob = %v, want explicit 0", got)
	}
}

func TestToMap(t *testing.T) {
	m, err := Defaults(PopHybrid).ToMap()
	if err != nil {
		t.Fatal(err)
	}
	if m["pop_type"] != "hybrid" || m["pop_size"] != 20000.0 {
		t.Errorf("ToMap = pop_type %v, pop_size %v", m["pop_type"], m["pop_size"])
	}
	back, err := MakePars(true).With(map[string]any{"contacts": m["contacts"], "pop_type": m["pop_type"]})
	if err != nil {
		t.Fatalf("ToMap output not accepted by With: %v", err)
	}
	if back.Contacts[LayerSchool] != 20 {
		t.Errorf("contacts[s] = %v, want 20", back.Contacts[LayerSchool])
	}
}

func TestPrognoses(t *testing.T) {
	p := GetPrognoses(true)
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		age  float64
		want int
	}{{0, 0}, {9.9, 0}, {10, 1}, {45, 4}, {95, 9}}
	for _, tt := range tests {
		if got := p.Bracket(tt.age); got != tt.want {
			t.Errorf("Bracket(%v) = %d, want %d", tt.age, got, tt.want)
		}
	}

	// Stage probabilities are conditional on the previous stage.
	flat := GetPrognoses(false)
	if got := flat.SevereProbs[0]; got < 0.1333 || got > 0.1334 {
		t.Errorf("conditional severe prob = %v, want 0.10/0.75", got)
	}

	broken := p.Clone()
	broken.DeathProbs = broken.DeathProbs[:3]
	if err := broken.Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Validate() = %v, want ErrInvalidValue", err)
	}
}

func TestInterventionSpecs(t *testing.T) {
	valid := []InterventionSpec{
		ChangeBeta([]int{1}, []float64{0.5}, LayerSchool),
		TestNum([]float64{100}, 10, 0),
		TestProb(0.1, 0.01, 30),
		TestProb(0.1, 0.01, 0).WithQuarProbs(0, 0),
		ContactTracing(nil, nil, 0),
		Sequence([]int{0, 10}, []InterventionSpec{TestProb(0.1, 0, 0), TestNum([]float64{5}, 1, 0)}),
	}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("%s: %v", s.Kind, err)
		}
	}

	invalid := []InterventionSpec{
		TestNum(nil, 10, 0),
		TestProb(1.5, 0, 0),
		TestProb(0.1, 0, 0).WithQuarProbs(1.5, 0),
		TestProb(0.1, 0, 0).WithQuarProbs(0, -0.1),
		Sequence([]int{0}, nil),
		{Kind: InterventionTestProb, Sensitivity: 2},
	}
	for _, s := range invalid {
		if err := s.Validate(); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("%s %+v: Validate() = %v, want ErrInvalidValue", s.Kind, s, err)
		}
	}
}
