package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRun(StatusOK, time.Second)
	m.RecordDay(3, 1)
	m.RecordRescale()
	m.RecordIntervention("change_beta")
	m.EnsembleRunStarted()
	m.EnsembleRunDone()
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteTextfile on nil: %v", err)
	}
	if m.Gatherer() != nil {
		t.Error("nil metrics should have no gatherer")
	}
}

func TestRecordRun(t *testing.T) {
	m := New()
	m.RecordRun(StatusOK, 10*time.Millisecond)
	m.RecordRun(StatusOK, 20*time.Millisecond)
	m.RecordRun(StatusError, time.Millisecond)

	expected := `
		# HELP episim_runs_total Total number of simulation runs by outcome
		# TYPE episim_runs_total counter
		episim_runs_total{status="error"} 1
		episim_runs_total{status="ok"} 2
	`
	if err := testutil.CollectAndCompare(m.RunsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if got := testutil.CollectAndCount(m.RunDuration); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestRecordDay(t *testing.T) {
	m := New()
	m.RecordDay(5, 1)
	m.RecordDay(7, 1.2)

	if got := testutil.ToFloat64(m.DaysSimulated); got != 2 {
		t.Errorf("days = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InfectionsTotal); got != 12 {
		t.Errorf("infections = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.PopulationScale); got != 1.2 {
		t.Errorf("scale = %v, want 1.2", got)
	}
}

func TestEnsembleGauge(t *testing.T) {
	m := New()
	m.EnsembleRunStarted()
	m.EnsembleRunStarted()
	m.EnsembleRunDone()
	if got := testutil.ToFloat64(m.EnsembleRuns); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordRescale()
	m.RecordIntervention("test_prob")

	path := filepath.Join(t.TempDir(), "episim.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"episim_rescale_events_total 1",
		`episim_intervention_events_total{kind="test_prob"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}
