package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docship/docship/pkg/types"
)

func sampleReport() *types.RunReport {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &types.RunReport{
		RunID:       "run-1",
		AgentID:     "laptop-01",
		StartedAt:   start,
		FinishedAt:  start.Add(90 * time.Second),
		Disposition: types.DispositionPartiallyDelivered,
		FilesFound:  4,
		Units: []types.UnitReport{
			{Name: "archive", Delivered: true, Attempts: make([]types.AttemptReport, 2)},
			{Name: "log", Attempts: make([]types.AttemptReport, 3)},
		},
		Cleanup: []types.CleanupReport{
			{Path: "/w/a.zip", Status: "removed"},
			{Path: "/w/a.log", Status: "failed"},
		},
	}
}

func value(t *testing.T, mfs map[string]*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf, ok := mfs[name]
	require.True(t, ok, "metric %s missing", name)
	require.NotEmpty(t, mf.GetMetric())
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func TestTextfile_WritesParsableExposition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docship.prom")
	w := NewTextfile(path)

	require.NoError(t, w.AfterRun(context.Background(), sampleReport()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(f)
	require.NoError(t, err)

	assert.Equal(t, 4.0, value(t, mfs, "docship_files_found"))
	assert.Equal(t, 1.0, value(t, mfs, "docship_units_delivered"))
	assert.Equal(t, 1.0, value(t, mfs, "docship_units_failed"))
	assert.Equal(t, 5.0, value(t, mfs, "docship_delivery_attempts_total"))
	assert.Equal(t, 1.0, value(t, mfs, "docship_cleanup_failures"))
	assert.Equal(t, 90.0, value(t, mfs, "docship_run_duration_seconds"))

	disp := map[string]float64{}
	for _, m := range mfs["docship_run_disposition"].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "disposition" {
				disp[l.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"completed": 0, "partially_delivered": 1, "aborted": 0}, disp)
}

func TestTextfile_ReplacesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docship.prom")
	w := NewTextfile(path)

	require.NoError(t, w.AfterRun(context.Background(), sampleReport()))
	rep := sampleReport()
	rep.FilesFound = 9
	require.NoError(t, w.AfterRun(context.Background(), rep))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `docship_files_found{agent="laptop-01"} 9`)
}

func TestTextfile_MissingDirectory(t *testing.T) {
	w := NewTextfile(filepath.Join(t.TempDir(), "nope", "docship.prom"))
	assert.Error(t, w.AfterRun(context.Background(), sampleReport()))
}
