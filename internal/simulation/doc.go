// Package simulation provides a test harness for exercising the epidemic
// engine end to end.
//
// Builders start from the age-stratified defaults and apply the common
// setups: tiny populations, everyone infected on day zero, forced
// progression to symptomatic, severe, critical or death, and a small
// population with very high transmission. The runner executes the real
// engine with no mocks and can write the full results document to
// DEBUG_<test>.json for inspection.
//
// Usage:
//
//	func TestEveryoneInfected(t *testing.T) {
//	    pars := simulation.NewBuilder(t).EveryoneInfected(500).Pars()
//	    res := simulation.NewRunner(t).Run(pars, simulation.RunOptions{})
//	    simulation.AssertDayZero(t, res, "n_exposed", 500)
//	}
//
// Set EPISIM_DEBUG_DIR to keep the DEBUG files in that directory instead of
// a per-test temporary one.
package simulation
