package population

import (
	"math/rand/v2"
	"reflect"
	"sort"
	"testing"

	"github.com/nvandessel/episim/internal/params"
)

func makePeople(t *testing.T, pt params.PopType, size int) *People {
	t.Helper()
	pars, err := params.Defaults(pt).With(map[string]any{"pop_size": size, "pop_infected": 0})
	if err != nil {
		t.Fatal(err)
	}
	pp, err := Make(rand.New(rand.NewPCG(3, 4)), pars)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	return pp
}

// pinned returns people whose every duration is a constant number of days.
func pinned(t *testing.T, size int, days map[params.DurKey]float64) *People {
	t.Helper()
	pp := makePeople(t, params.PopRandom, size)
	for key, d := range days {
		pp.dur[key] = params.Dist{Kind: params.DistNormal, Par1: d}
	}
	return pp
}

func TestMake(t *testing.T) {
	pp := makePeople(t, params.PopRandom, 2000)
	if pp.Len() != 2000 {
		t.Fatalf("Len = %d, want 2000", pp.Len())
	}
	if got := pp.Layers(); !reflect.DeepEqual(got, []params.Layer{params.LayerAll}) {
		t.Errorf("Layers = %v, want [a]", got)
	}
	if n := pp.Count(func(p *Person) bool { return p.Susceptible }); n != 2000 {
		t.Errorf("%d susceptible, want everyone", n)
	}
	degree := 2 * float64(pp.Contacts[params.LayerAll].Len()) / float64(pp.Len())
	if degree < 18 || degree > 22 {
		t.Errorf("mean degree = %v, want about 20", degree)
	}

	hybrid := makePeople(t, params.PopHybrid, 500)
	want := []params.Layer{params.LayerHousehold, params.LayerSchool, params.LayerWork, params.LayerCommunity}
	if got := hybrid.Layers(); !reflect.DeepEqual(got, want) {
		t.Errorf("hybrid Layers = %v, want %v", got, want)
	}
}

func TestMake_InvalidSize(t *testing.T) {
	pars := params.Defaults(params.PopRandom)
	pars.PopSize = 0
	if _, err := Make(rand.New(rand.NewPCG(1, 1)), pars); err == nil {
		t.Error("expected error for empty population")
	}
}

func TestNeighbors(t *testing.T) {
	c := NewContacts(params.LayerAll)
	c.Add(0, 1)
	c.Add(1, 2)
	c.Add(2, 2)
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2 (self-loop ignored)", c.Len())
	}
	got := append([]int(nil), c.Neighbors(3, 1)...)
	sort.Ints(got)
	if !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("Neighbors(1) = %v, want [0 2]", got)
	}
	if n := c.Neighbors(3, 7); n != nil {
		t.Errorf("out-of-range Neighbors = %v, want nil", n)
	}

	// Adding an edge invalidates the index.
	c.Add(0, 2)
	if got := c.Neighbors(3, 0); len(got) != 2 {
		t.Errorf("Neighbors(0) after Add = %v, want two entries", got)
	}
}

func TestInfect(t *testing.T) {
	pp := makePeople(t, params.PopRandom, 10)
	rng := rand.New(rand.NewPCG(5, 6))

	if !pp.Infect(rng, 0, 0, NoDate) {
		t.Fatal("first infection should succeed")
	}
	if pp.Infect(rng, 0, 1, NoDate) {
		t.Error("re-infecting an exposed agent should fail")
	}
	if !pp.Infect(rng, 1, 2, 0) {
		t.Fatal("infection by agent 0 should succeed")
	}

	p := pp.Persons[1]
	if p.Susceptible || !p.Exposed || p.DateExposed != 2 || p.InfectedBy != 0 {
		t.Errorf("infected person state = %+v", p)
	}
	if pp.Persons[0].Secondary != 1 {
		t.Errorf("source secondary = %d, want 1", pp.Persons[0].Secondary)
	}
	if end := max(p.DateRecovered, p.DateDead); end <= 2 {
		t.Errorf("disease course ends on day %d, want after exposure", end)
	}
}

func TestUpdateStates_Progression(t *testing.T) {
	pp := pinned(t, 5, map[params.DurKey]float64{
		params.DurExp2Inf:  2,
		params.DurInf2Sym:  1,
		params.DurMild2Rec: 4,
	})
	rng := rand.New(rand.NewPCG(7, 8))
	pp.Persons[0].SympProb = 1
	pp.Persons[0].SevereProb = 0
	pp.Infect(rng, 0, 0, NoDate)

	want := map[int]Flows{
		2: {Infectious: 1},
		3: {Symptomatic: 1},
		7: {Recoveries: 1},
	}
	for day := 0; day <= 8; day++ {
		if got := pp.UpdateStates(day); got != want[day] {
			t.Errorf("day %d flows = %+v, want %+v", day, got, want[day])
		}
	}
	p := pp.Persons[0]
	if p.Exposed || p.Infectious || !p.Recovered {
		t.Errorf("final state = exposed %v infectious %v recovered %v", p.Exposed, p.Infectious, p.Recovered)
	}
}

func TestUpdateStates_Death(t *testing.T) {
	pp := pinned(t, 3, map[params.DurKey]float64{
		params.DurExp2Inf:  0,
		params.DurInf2Sym:  0,
		params.DurSym2Sev:  1,
		params.DurSev2Crit: 1,
		params.DurCrit2Die: 1,
	})
	rng := rand.New(rand.NewPCG(9, 10))
	p := &pp.Persons[0]
	p.SympProb, p.SevereProb, p.CritProb, p.DeathProb = 1, 1, 1, 1
	pp.Infect(rng, 0, 0, NoDate)
	pp.Quarantine(0, 1)

	deaths := 0
	for day := 0; day <= 4; day++ {
		deaths += pp.UpdateStates(day).Deaths
	}
	if deaths != 1 || !pp.Persons[0].Dead || pp.Persons[0].Quarantined {
		t.Errorf("deaths = %d, dead %v, quarantined %v", deaths, pp.Persons[0].Dead, pp.Persons[0].Quarantined)
	}
}

func TestTest(t *testing.T) {
	pp := pinned(t, 4, map[params.DurKey]float64{params.DurExp2Inf: 0})
	rng := rand.New(rand.NewPCG(11, 12))
	pp.Infect(rng, 0, 0, NoDate)
	pp.UpdateStates(0)
	pp.Persons[3].Dead = true

	n := pp.Test(rng, []int{0, 1, 3}, 0, 1, 0, 2)
	if n != 2 {
		t.Errorf("tests performed = %d, want 2 (dead agents are skipped)", n)
	}
	if pp.Persons[0].DateDiagnosed != 2 {
		t.Errorf("infectious agent diagnosis date = %d, want 2", pp.Persons[0].DateDiagnosed)
	}
	if pp.Persons[1].DateDiagnosed != NoDate || !pp.Persons[1].Tested {
		t.Errorf("healthy agent = %+v, want tested but not diagnosed", pp.Persons[1])
	}

	f := pp.UpdateStates(2)
	if f.Diagnoses != 1 || !pp.Persons[0].Diagnosed {
		t.Errorf("day 2 diagnoses = %d", f.Diagnoses)
	}
}

func TestQuarantine(t *testing.T) {
	pp := makePeople(t, params.PopRandom, 3)
	pp.Quarantine(1, 2)
	pp.Quarantine(1, 5) // later start is ignored

	if f := pp.UpdateStates(1); f.Quarantined != 0 {
		t.Errorf("quarantined before start: %+v", f)
	}
	if f := pp.UpdateStates(2); f.Quarantined != 1 || !pp.Persons[1].Quarantined {
		t.Errorf("day 2 flows = %+v", f)
	}
	end := pp.Persons[1].DateEndQuarantine
	if end != 2+pp.quarPeriod {
		t.Errorf("quarantine ends day %d, want %d", end, 2+pp.quarPeriod)
	}
	pp.UpdateStates(end)
	if pp.Persons[1].Quarantined {
		t.Error("quarantine should have ended")
	}
}

func TestTrace(t *testing.T) {
	pp := makePeople(t, params.PopRandom, 5)
	c := NewContacts(params.LayerAll)
	c.Add(0, 1)
	c.Add(0, 2)
	c.Add(3, 4)
	pp.Contacts = map[params.Layer]*Contacts{params.LayerAll: c}
	pp.Persons[2].Diagnosed = true

	rng := rand.New(rand.NewPCG(13, 14))
	n := pp.Trace(rng, []int{0}, 4, map[params.Layer]float64{params.LayerAll: 1}, map[params.Layer]int{params.LayerAll: 1})
	if n != 1 {
		t.Errorf("traced %d, want 1 (diagnosed contacts are skipped)", n)
	}
	if p := pp.Persons[1]; !p.KnownContact || p.DateQuarantined != 5 {
		t.Errorf("contact = known %v, quarantine day %d", p.KnownContact, p.DateQuarantined)
	}
	if pp.Persons[3].KnownContact {
		t.Error("unrelated agent was traced")
	}
}

func TestMakeSusceptible(t *testing.T) {
	pp := makePeople(t, params.PopRandom, 3)
	rng := rand.New(rand.NewPCG(15, 16))
	pp.Infect(rng, 0, 0, NoDate)
	age := pp.Persons[0].Age

	pp.MakeSusceptible(0)
	p := pp.Persons[0]
	if !p.Susceptible || p.Exposed || p.DateInfectious != NoDate {
		t.Errorf("reset person = %+v", p)
	}
	if p.Age != age {
		t.Error("reset should keep demographics")
	}
}
