package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/scenario"
)

// isolateHome points HOME at a temp directory so history, config and audit
// files never touch the real ~/.episim.
// MUST be called for any test that opens a store.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", home)
	for _, key := range []string{"EPISIM_STORE_DIR", "EPISIM_NO_HISTORY", "EPISIM_OUTPUT_DIR", "EPISIM_SEED", "EPISIM_RUNS", "EPISIM_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return home
}

// execute runs the CLI with args on a fresh command tree and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
}

var smallRun = []string{"--set", "pop_size=300", "--set", "pop_infected=10", "--set", "n_days=12"}

func TestParseOverrides(t *testing.T) {
	dir := t.TempDir()
	paramFile := filepath.Join(dir, "pars.yaml")
	if err := os.WriteFile(paramFile, []byte("beta: 0.02\npop_size: 500\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    string
		sets    []string
		want    map[string]any
		wantErr bool
	}{
		{"empty", "", nil, map[string]any{}, false},
		{"scalars", "", []string{"beta=0.02", "rescale=true", "pop_size=100"}, map[string]any{"beta": 0.02, "rescale": true, "pop_size": 100}, false},
		{"flow map", "", []string{"beta_layer={h: 3}"}, map[string]any{"beta_layer": map[string]any{"h": 3}}, false},
		{"empty value kept as string", "", []string{"label="}, map[string]any{"label": ""}, false},
		{"set wins over file", paramFile, []string{"pop_size=200"}, map[string]any{"beta": 0.02, "pop_size": 200}, false},
		{"missing equals", "", []string{"beta"}, nil, true},
		{"empty key", "", []string{"=3"}, nil, true},
		{"missing file", filepath.Join(dir, "nope.yaml"), nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOverrides(tt.file, tt.sets)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOverrides() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseOverrides() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		explicit, path, configured, want string
	}{
		{"ARROW", "out.json", "json", "arrow"},
		{"", "out.arrow", "json", "arrow"},
		{"", "out.feather", "", "arrow"},
		{"", "out.JSON", "arrow", "json"},
		{"", "out.dat", "arrow", "arrow"},
		{"", "", "", "json"},
	}
	for _, tt := range tests {
		if got := resolveFormat(tt.explicit, tt.path, tt.configured); got != tt.want {
			t.Errorf("resolveFormat(%q, %q, %q) = %q, want %q", tt.explicit, tt.path, tt.configured, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{-3, "-3"},
		{1.5, "1.500"},
		{math.NaN(), "n/a"},
		{math.Inf(1), "n/a"},
		{1e20, "100000000000000000000.000"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJSONFloats(t *testing.T) {
	got := jsonFloats([]float64{1, math.NaN(), math.Inf(-1), 2})
	if got[0] == nil || *got[0] != 1 || got[1] != nil || got[2] != nil || got[3] == nil || *got[3] != 2 {
		t.Errorf("jsonFloats() = %v", got)
	}
}

func TestSignalContext(t *testing.T) {
	if !slices.Contains(cancelSignals, os.Interrupt) {
		t.Errorf("cancelSignals = %v, want os.Interrupt", cancelSignals)
	}
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := signalContext(parent)
	defer cancel()
	if ctx.Err() != nil {
		t.Fatal("context cancelled before any signal")
	}
	cancelParent()
	<-ctx.Done()
	if ctx.Err() != context.Canceled {
		t.Errorf("ctx.Err() = %v, want context.Canceled", ctx.Err())
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	decode(t, out, &v)
	if v["version"] != version || v["commit"] != commit {
		t.Errorf("version output = %v", v)
	}
}

func TestRunCmd_NoSave(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, append([]string{"run", "--no-save", "--json", "--label", "smoke"}, smallRun...)...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var got struct {
		ID      string             `json:"id"`
		Label   string             `json:"label"`
		NRuns   int                `json:"n_runs"`
		NDays   int                `json:"n_days"`
		Summary map[string]float64 `json:"summary"`
	}
	decode(t, out, &got)
	if got.ID != "" {
		t.Errorf("--no-save run got id %q", got.ID)
	}
	if got.Label != "smoke" || got.NRuns != 1 || got.NDays != 12 {
		t.Errorf("run output = %+v", got)
	}
	if got.Summary["cum_infections"] < 10 {
		t.Errorf("cum_infections = %v, want at least the seeds", got.Summary["cum_infections"])
	}

	history, err := execute(t, "history", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Count int `json:"count"`
	}
	decode(t, history, &list)
	if list.Count != 0 {
		t.Errorf("history has %d runs after --no-save", list.Count)
	}
}

func TestRunCmd_TextOutputAndResultsFile(t *testing.T) {
	isolateHome(t)
	outFile := filepath.Join(t.TempDir(), "res.json")
	out, err := execute(t, append([]string{"run", "--no-save", "--out", outFile}, smallRun...)...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "cum_infections") || !strings.Contains(out, "Results written to "+outFile) {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(outFile); err != nil {
		t.Errorf("results file not written: %v", err)
	}
}

func TestRunCmd_BadOverride(t *testing.T) {
	isolateHome(t)
	if _, err := execute(t, "run", "--no-save", "--set", "no_such_parameter=1"); err == nil {
		t.Error("expected error for unknown parameter")
	}
	if _, err := execute(t, "run", "--no-save", "--set", "beta"); err == nil {
		t.Error("expected error for malformed --set")
	}
}

func TestHistoryShowExportDelete(t *testing.T) {
	isolateHome(t)

	out, err := execute(t, append([]string{"multirun", "--runs", "2", "--json", "--tag", "smoke"}, smallRun...)...)
	if err != nil {
		t.Fatalf("multirun: %v", err)
	}
	var run struct {
		ID    string `json:"id"`
		Kind  string `json:"kind"`
		NRuns int    `json:"n_runs"`
	}
	decode(t, out, &run)
	if run.ID == "" || run.Kind != "multisim" || run.NRuns != 2 {
		t.Fatalf("multirun output = %+v", run)
	}

	out, err = execute(t, "history", "--json", "--tag", "smoke")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Count int `json:"count"`
		Runs  []struct {
			ID string `json:"id"`
		} `json:"runs"`
	}
	decode(t, out, &list)
	if list.Count != 1 || list.Runs[0].ID != run.ID {
		t.Fatalf("history = %+v", list)
	}

	out, err = execute(t, "show", run.ID[:8], "--channel", "new_infections", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var ch struct {
		ID     string     `json:"id"`
		Values []*float64 `json:"values"`
		Low    []*float64 `json:"low"`
		High   []*float64 `json:"high"`
	}
	decode(t, out, &ch)
	if ch.ID != run.ID || len(ch.Values) != 13 || len(ch.Low) != 13 || len(ch.High) != 13 {
		t.Errorf("show channel: id %s, %d values, %d low, %d high", ch.ID, len(ch.Values), len(ch.Low), len(ch.High))
	}

	if _, err := execute(t, "show", run.ID, "--channel", "bogus"); err == nil {
		t.Error("expected error for unknown channel")
	}

	exportPath := filepath.Join(t.TempDir(), "export.arrow")
	if _, err := execute(t, "export", run.ID, "--out", exportPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	if info, err := os.Stat(exportPath); err != nil || info.Size() == 0 {
		t.Errorf("export file missing or empty: %v", err)
	}

	out, err = execute(t, "delete", run.ID[:8])
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, run.ID) {
		t.Errorf("delete output = %q", out)
	}
	if _, err := execute(t, "show", run.ID); err == nil {
		t.Error("show after delete should fail")
	}
}

func TestBackupCreateAndRestore(t *testing.T) {
	home := isolateHome(t)

	if _, err := execute(t, append([]string{"run", "--json"}, smallRun...)...); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err := execute(t, "backup", "create", "--json")
	if err != nil {
		t.Fatalf("backup create: %v", err)
	}
	var created struct {
		Path string `json:"path"`
		Runs int    `json:"runs"`
	}
	decode(t, out, &created)
	if created.Runs != 1 || !strings.HasPrefix(created.Path, filepath.Join(home, ".episim", "backups")) {
		t.Fatalf("backup create = %+v", created)
	}

	if _, err := execute(t, "backup", "verify", created.Path); err != nil {
		t.Errorf("verify: %v", err)
	}

	out, err = execute(t, "backup", "restore", created.Path, "--json")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	var restored struct {
		RunsRestored int `json:"runs_restored"`
		RunsSkipped  int `json:"runs_skipped"`
	}
	decode(t, out, &restored)
	if restored.RunsRestored != 0 || restored.RunsSkipped != 1 {
		t.Errorf("merge restore over same history = %+v", restored)
	}

	outside := filepath.Join(t.TempDir(), "elsewhere.json.gz")
	if _, err := execute(t, "backup", "create", "--output", outside); err == nil {
		t.Error("expected backup outside allowed directories to be rejected")
	}
}

func TestConfigSetGet(t *testing.T) {
	isolateHome(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := execute(t, "--config", cfgPath, "config", "set", "ensemble.runs", "7"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := execute(t, "--config", cfgPath, "config", "get", "ensemble.runs", "--json")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	var got struct {
		Key   string `json:"key"`
		Value int    `json:"value"`
	}
	decode(t, out, &got)
	if got.Key != "ensemble.runs" || got.Value != 7 {
		t.Errorf("config get = %+v", got)
	}

	if _, err := execute(t, "--config", cfgPath, "config", "set", "ensemble.runs", "0"); err == nil {
		t.Error("expected invalid value to be rejected")
	}
	if _, err := execute(t, "--config", cfgPath, "config", "get", "nope"); err == nil {
		t.Error("expected unknown key error")
	}

	// Environment overrides apply on read but are not persisted by set.
	t.Setenv("EPISIM_RUNS", "3")
	if _, err := execute(t, "--config", cfgPath, "config", "set", "output.format", "arrow"); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EPISIM_RUNS", "")
	out, err = execute(t, "--config", cfgPath, "config", "get", "ensemble.runs")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "ensemble.runs = 7" {
		t.Errorf("config get after env override = %q", out)
	}
}

func TestCompareOptionsFromFlags(t *testing.T) {
	optsFile := filepath.Join(t.TempDir(), "opts.yaml")
	if err := os.WriteFile(optsFile, []byte("base_pop: 2000\nn_days: 40\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := newCompareCmd()
	if err := cmd.ParseFlags([]string{"--options", optsFile, "--n-days", "30", "--scales", "2,4", "--intervention", "test_num", "--seed", "5"}); err != nil {
		t.Fatal(err)
	}
	got, err := compareOptionsFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}

	def := scenario.DefaultOptions()
	if got.BasePop != 2000 {
		t.Errorf("BasePop = %d, want 2000 from file", got.BasePop)
	}
	if got.NDays != 30 {
		t.Errorf("NDays = %d, want flag value 30", got.NDays)
	}
	if !reflect.DeepEqual(got.Scales, []float64{2, 4}) {
		t.Errorf("Scales = %v", got.Scales)
	}
	if got.Intervention != scenario.InterventionTestNum || got.Seed != 5 {
		t.Errorf("Intervention %q seed %d", got.Intervention, got.Seed)
	}
	if got.PopInfected != def.PopInfected || got.Beta != def.Beta {
		t.Errorf("unset options changed: %+v", got)
	}
	if got.Runs != 0 || got.PopType != params.PopType("") {
		t.Errorf("Runs %d PopType %q should be left to configuration", got.Runs, got.PopType)
	}
}

func TestChannelsCmd(t *testing.T) {
	out, err := execute(t, "channels")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"new_infections", "cum_infections", "r_eff"} {
		if !strings.Contains(out, want) {
			t.Errorf("channels output missing %s", want)
		}
	}
}
