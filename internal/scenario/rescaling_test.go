package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nvandessel/episim/internal/params"
)

func TestConfigs_Default(t *testing.T) {
	configs, err := Configs(DefaultOptions())
	if err != nil {
		t.Fatalf("Configs: %v", err)
	}

	tests := []struct {
		name        string
		popSize     int
		popInfected int
		popScale    float64
		rescale     bool
	}{
		{"entire", 100000, 20, 1, false},
		{"rescale", 10000, 20, 10, true},
		{"static", 10000, 2, 10, false},
		{"entire2", 200000, 20, 1, false},
		{"rescale2", 10000, 20, 20, true},
		{"static2", 10000, 1, 20, false},
	}
	if len(configs) != len(tests) {
		t.Fatalf("got %d configs, want %d", len(configs), len(tests))
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := configs[i]
			if c.Name != tt.name {
				t.Fatalf("config %d name = %q, want %q", i, c.Name, tt.name)
			}
			p := c.Pars
			if p.PopSize != tt.popSize || p.PopInfected != tt.popInfected || p.PopScale != tt.popScale || p.Rescale != tt.rescale {
				t.Errorf("pars = (%d, %d, %v, %v), want (%d, %d, %v, %v)",
					p.PopSize, p.PopInfected, p.PopScale, p.Rescale,
					tt.popSize, tt.popInfected, tt.popScale, tt.rescale)
			}
			if p.NDays != 120 || p.Beta != 0.015 {
				t.Errorf("shared pars n_days=%d beta=%v, want 120 and 0.015", p.NDays, p.Beta)
			}
			if len(p.Interventions) != 1 || p.Interventions[0].Kind != params.InterventionTestProb {
				t.Errorf("interventions = %+v, want one test_prob", p.Interventions)
			}
			if err := p.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestConfigs_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"unknown intervention", func(o *Options) { o.Intervention = "lockdown" }},
		{"no scales", func(o *Options) { o.Scales = nil }},
		{"scale below one", func(o *Options) { o.Scales = []float64{0.5} }},
		{"no base population", func(o *Options) { o.BasePop = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if _, err := Configs(o); !errors.Is(err, params.ErrInvalidValue) {
				t.Errorf("Configs() = %v, want ErrInvalidValue", err)
			}
		})
	}
}

func TestConfigs_Interventions(t *testing.T) {
	for _, iv := range []Intervention{InterventionChangeBeta, InterventionTestNum, InterventionTestProb} {
		o := DefaultOptions()
		o.Intervention = iv
		configs, err := Configs(o)
		if err != nil {
			t.Fatalf("%s: %v", iv, err)
		}
		if got := configs[0].Pars.Interventions[0].Kind; string(got) != string(iv) {
			t.Errorf("intervention kind = %s, want %s", got, iv)
		}
	}
}

func TestRun_Small(t *testing.T) {
	o := DefaultOptions()
	o.BasePop = 300
	o.PopInfected = 10
	o.Scales = []float64{2}
	o.NDays = 15
	o.Beta = 0.03
	o.InterventionDay = 5
	o.Runs = 2

	report, err := Run(context.Background(), o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(report.Outcomes))
	}
	if got := report.Comparison.Labels; len(got) != 3 || got[0] != "entire" || got[2] != "static" {
		t.Errorf("comparison labels = %v", got)
	}
	for _, name := range []string{"rescale", "static"} {
		row, ok := report.Deviation[name]
		if !ok {
			t.Errorf("no deviation for %s", name)
			continue
		}
		if len(row) != len(Channels) {
			t.Errorf("%s deviation has %d channels, want %d", name, len(row), len(Channels))
		}
	}
	if _, ok := report.Deviation["entire"]; ok {
		t.Error("reference configuration should not have a deviation row")
	}

	// The entire population is simulated one-to-one.
	for _, out := range report.Outcomes {
		if out.Config.Strategy != Entire {
			continue
		}
		for day, v := range out.Reduced.RescaleVec {
			if v != 1 {
				t.Fatalf("entire rescale_vec[%d] = %v, want 1", day, v)
			}
		}
	}
}

func TestRun_StrategiesAgree(t *testing.T) {
	if testing.Short() {
		t.Skip("runs three ensembles")
	}
	o := DefaultOptions()
	o.BasePop = 2000
	o.PopInfected = 100
	o.Scales = []float64{5}
	o.NDays = 60
	o.Runs = 4

	report, err := Run(context.Background(), o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	entire := report.Comparison.Values["entire"][Channels[0]]
	if entire <= float64(o.PopInfected) {
		t.Fatalf("entire cum_infections = %v, want growth beyond the %d seeds", entire, o.PopInfected)
	}
	for _, name := range []string{"rescale", "static"} {
		dev := report.Deviation[name][Channels[0]]
		if math.IsNaN(dev) || math.Abs(dev) > 0.35 {
			t.Errorf("%s cum_infections deviation = %.1f%%, want within 35%% of entire", name, 100*dev)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	o := DefaultOptions()
	o.BasePop = 200
	o.Scales = []float64{2}
	o.NDays = 5
	o.Runs = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, o); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestReport_JSONAndTable(t *testing.T) {
	configs, err := Configs(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	r := &Report{
		Outcomes: []Outcome{{Config: configs[0]}, {Config: configs[1]}},
		Deviation: map[string]map[string]float64{
			"rescale": {"cum_infections": 0.05, "cum_tests": math.Inf(1)},
		},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var doc struct {
		Configs   []ConfigSummary                `json:"configs"`
		Deviation map[string]map[string]*float64 `json:"deviation"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Configs) != 2 || doc.Configs[1].Strategy != Rescale || !doc.Configs[1].Rescale {
		t.Errorf("configs = %+v", doc.Configs)
	}
	row := doc.Deviation["rescale"]
	if row["cum_tests"] != nil {
		t.Errorf("infinite deviation encoded as %v, want null", *row["cum_tests"])
	}
	if v := row["cum_infections"]; v == nil || *v != 0.05 {
		t.Errorf("cum_infections deviation = %v", v)
	}

	var buf bytes.Buffer
	if err := r.WriteDeviationTable(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"rescale", "+5.0%", "n/a"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
