package params

import "sort"

// Key names a top-level simulation parameter.
type Key string

// Top-level parameter keys.
const (
	KeyPopSize          Key = "pop_size"
	KeyPopInfected      Key = "pop_infected"
	KeyPopType          Key = "pop_type"
	KeyPopScale         Key = "pop_scale"
	KeyRescale          Key = "rescale"
	KeyRescaleThreshold Key = "rescale_threshold"
	KeyRescaleFactor    Key = "rescale_factor"
	KeyNDays            Key = "n_days"
	KeyRandSeed         Key = "rand_seed"
	KeyBeta             Key = "beta"
	KeyContacts         Key = "contacts"
	KeyBetaLayer        Key = "beta_layer"
	KeyIsoFactor        Key = "iso_factor"
	KeyQuarFactor       Key = "quar_factor"
	KeyQuarPeriod       Key = "quar_period"
	KeyAsympFactor      Key = "asymp_factor"
	KeyBetaDist         Key = "beta_dist"
	KeyViralDist        Key = "viral_dist"
	KeyDur              Key = "dur"
	KeyRelSympProb      Key = "rel_symp_prob"
	KeyRelSevereProb    Key = "rel_severe_prob"
	KeyRelCritProb      Key = "rel_crit_prob"
	KeyRelDeathProb     Key = "rel_death_prob"
	KeyProgByAge        Key = "prog_by_age"
	KeyPrognoses        Key = "prognoses"
	KeyInterventions    Key = "interventions"
)

// knownKeys is the override schema. Every key accepted by Pars.With is listed.
var knownKeys = map[Key]bool{
	KeyPopSize: true, KeyPopInfected: true, KeyPopType: true, KeyPopScale: true,
	KeyRescale: true, KeyRescaleThreshold: true, KeyRescaleFactor: true,
	KeyNDays: true, KeyRandSeed: true, KeyBeta: true, KeyContacts: true,
	KeyBetaLayer: true, KeyIsoFactor: true, KeyQuarFactor: true, KeyQuarPeriod: true,
	KeyAsympFactor: true, KeyBetaDist: true, KeyViralDist: true, KeyDur: true,
	KeyRelSympProb: true, KeyRelSevereProb: true, KeyRelCritProb: true,
	KeyRelDeathProb: true, KeyProgByAge: true, KeyPrognoses: true,
	KeyInterventions: true,
}

// Keys returns every supported top-level key, sorted.
func Keys() []string {
	return sortedNames(knownKeys)
}

// DurKey names a disease-progression duration.
type DurKey string

// Duration keys. Each is measured from the start of the preceding stage.
const (
	DurExp2Inf  DurKey = "exp2inf"  // exposed to infectious
	DurInf2Sym  DurKey = "inf2sym"  // infectious to symptomatic
	DurSym2Sev  DurKey = "sym2sev"  // symptomatic to severe
	DurSev2Crit DurKey = "sev2crit" // severe to critical
	DurAsym2Rec DurKey = "asym2rec" // infectious (asymptomatic) to recovered
	DurMild2Rec DurKey = "mild2rec" // symptomatic to recovered
	DurSev2Rec  DurKey = "sev2rec"  // severe to recovered
	DurCrit2Rec DurKey = "crit2rec" // critical to recovered
	DurCrit2Die DurKey = "crit2die" // critical to dead
)

var knownDurKeys = map[DurKey]bool{
	DurExp2Inf: true, DurInf2Sym: true, DurSym2Sev: true, DurSev2Crit: true,
	DurAsym2Rec: true, DurMild2Rec: true, DurSev2Rec: true, DurCrit2Rec: true,
	DurCrit2Die: true,
}

// DurKeys returns every supported duration key, sorted.
func DurKeys() []string {
	return sortedNames(knownDurKeys)
}

// RelProbKey names a relative progression probability.
type RelProbKey = Key

// PrognosisKey names a per-age-bracket probability array.
type PrognosisKey string

// Prognosis array keys.
const (
	ProgSymp   PrognosisKey = "symp_probs"
	ProgSevere PrognosisKey = "severe_probs"
	ProgCrit   PrognosisKey = "crit_probs"
	ProgDeath  PrognosisKey = "death_probs"
)

// relProbTargets maps each relative probability to the prognosis array it
// scales.
var relProbTargets = map[RelProbKey]PrognosisKey{
	KeyRelSympProb:   ProgSymp,
	KeyRelSevereProb: ProgSevere,
	KeyRelCritProb:   ProgCrit,
	KeyRelDeathProb:  ProgDeath,
}

// RelProbKeys returns the keys accepted by WithAbsoluteProb, sorted.
func RelProbKeys() []string {
	return sortedNames(relProbTargets)
}

// Layer names a contact network layer.
type Layer string

// Contact layers. Random populations use a single layer; hybrid populations
// split contacts into households, schools, workplaces and community.
const (
	LayerAll       Layer = "a"
	LayerHousehold Layer = "h"
	LayerSchool    Layer = "s"
	LayerWork      Layer = "w"
	LayerCommunity Layer = "c"
)

// PopType selects how the contact network is generated.
type PopType string

// Population types.
const (
	PopRandom PopType = "random"
	PopHybrid PopType = "hybrid"
)

// LayersFor returns the layer keys used by a population type.
func LayersFor(pt PopType) []Layer {
	if pt == PopHybrid {
		return []Layer{LayerHousehold, LayerSchool, LayerWork, LayerCommunity}
	}
	return []Layer{LayerAll}
}

func sortedNames[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
