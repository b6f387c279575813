package results

import "sort"

// Channel names a per-day time series in a simulation's output.
type Channel string

// Daily flows.
const (
	NewInfections  Channel = "new_infections"
	NewInfectious  Channel = "new_infectious"
	NewTests       Channel = "new_tests"
	NewDiagnoses   Channel = "new_diagnoses"
	NewRecoveries  Channel = "new_recoveries"
	NewSymptomatic Channel = "new_symptomatic"
	NewSevere      Channel = "new_severe"
	NewCritical    Channel = "new_critical"
	NewDeaths      Channel = "new_deaths"
	NewQuarantined Channel = "new_quarantined"
)

// Cumulative totals of the daily flows.
const (
	CumInfections  Channel = "cum_infections"
	CumInfectious  Channel = "cum_infectious"
	CumTests       Channel = "cum_tests"
	CumDiagnoses   Channel = "cum_diagnoses"
	CumRecoveries  Channel = "cum_recoveries"
	CumSymptomatic Channel = "cum_symptomatic"
	CumSevere      Channel = "cum_severe"
	CumCritical    Channel = "cum_critical"
	CumDeaths      Channel = "cum_deaths"
	CumQuarantined Channel = "cum_quarantined"
)

// Stocks: how many people are in a state on a given day.
const (
	NSusceptible Channel = "n_susceptible"
	NExposed     Channel = "n_exposed"
	NInfectious  Channel = "n_infectious"
	NSymptomatic Channel = "n_symptomatic"
	NSevere      Channel = "n_severe"
	NCritical    Channel = "n_critical"
	NDiagnosed   Channel = "n_diagnosed"
	NQuarantined Channel = "n_quarantined"
	NAlive       Channel = "n_alive"
)

// Derived series.
const (
	Prevalence   Channel = "prevalence"
	Incidence    Channel = "incidence"
	REff         Channel = "r_eff"
	DoublingTime Channel = "doubling_time"
)

// Kind groups channels by how they are computed.
type Kind int

// Channel kinds.
const (
	KindFlow Kind = iota
	KindCumulative
	KindStock
	KindDerived
)

// Info describes a channel.
type Info struct {
	Name  string
	Kind  Kind
	Count bool // people counts, multiplied by the population scale
}

// FlowPairs maps each daily flow to its cumulative channel.
var FlowPairs = []struct{ New, Cum Channel }{
	{NewInfections, CumInfections},
	{NewInfectious, CumInfectious},
	{NewTests, CumTests},
	{NewDiagnoses, CumDiagnoses},
	{NewRecoveries, CumRecoveries},
	{NewSymptomatic, CumSymptomatic},
	{NewSevere, CumSevere},
	{NewCritical, CumCritical},
	{NewDeaths, CumDeaths},
	{NewQuarantined, CumQuarantined},
}

var registry = map[Channel]Info{
	NewInfections:  {"Number of new infections", KindFlow, true},
	NewInfectious:  {"Number of newly infectious people", KindFlow, true},
	NewTests:       {"Number of new tests", KindFlow, true},
	NewDiagnoses:   {"Number of new diagnoses", KindFlow, true},
	NewRecoveries:  {"Number of new recoveries", KindFlow, true},
	NewSymptomatic: {"Number of new symptomatic cases", KindFlow, true},
	NewSevere:      {"Number of new severe cases", KindFlow, true},
	NewCritical:    {"Number of new critical cases", KindFlow, true},
	NewDeaths:      {"Number of new deaths", KindFlow, true},
	NewQuarantined: {"Number of newly quarantined people", KindFlow, true},

	CumInfections:  {"Cumulative infections", KindCumulative, true},
	CumInfectious:  {"Cumulative infectious people", KindCumulative, true},
	CumTests:       {"Cumulative tests", KindCumulative, true},
	CumDiagnoses:   {"Cumulative diagnoses", KindCumulative, true},
	CumRecoveries:  {"Cumulative recoveries", KindCumulative, true},
	CumSymptomatic: {"Cumulative symptomatic cases", KindCumulative, true},
	CumSevere:      {"Cumulative severe cases", KindCumulative, true},
	CumCritical:    {"Cumulative critical cases", KindCumulative, true},
	CumDeaths:      {"Cumulative deaths", KindCumulative, true},
	CumQuarantined: {"Cumulative quarantined people", KindCumulative, true},

	NSusceptible: {"Number susceptible", KindStock, true},
	NExposed:     {"Number exposed", KindStock, true},
	NInfectious:  {"Number infectious", KindStock, true},
	NSymptomatic: {"Number symptomatic", KindStock, true},
	NSevere:      {"Number of severe cases", KindStock, true},
	NCritical:    {"Number of critical cases", KindStock, true},
	NDiagnosed:   {"Number of confirmed cases", KindStock, true},
	NQuarantined: {"Number in quarantine", KindStock, true},
	NAlive:       {"Number alive", KindStock, true},

	Prevalence:   {"Prevalence", KindDerived, false},
	Incidence:    {"Incidence", KindDerived, false},
	REff:         {"Effective reproduction number", KindDerived, false},
	DoublingTime: {"Doubling time", KindDerived, false},
}

// Lookup returns the description of a channel.
func Lookup(ch Channel) (Info, bool) {
	info, ok := registry[ch]
	return info, ok
}

// All returns every channel, sorted by name.
func All() []Channel {
	out := make([]Channel, 0, len(registry))
	for ch := range registry {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Names returns every channel name, sorted.
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, ch := range all {
		out[i] = string(ch)
	}
	return out
}
