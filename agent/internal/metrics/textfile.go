package metrics

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/docship/docship/pkg/types"
)

var dispositions = []types.Disposition{
	types.DispositionCompleted,
	types.DispositionPartiallyDelivered,
	types.DispositionAborted,
}

// Textfile writes the last run's report as a Prometheus text exposition for
// the node_exporter textfile collector. It implements pipeline.Hook.
type Textfile struct {
	path string
}

// NewTextfile returns a writer targeting path. The directory must exist.
func NewTextfile(path string) *Textfile {
	return &Textfile{path: path}
}

func (t *Textfile) Name() string { return "metrics-textfile" }

// AfterRun renders rep and replaces the textfile atomically: the collector
// never reads a half-written file.
func (t *Textfile) AfterRun(_ context.Context, rep *types.RunReport) error {
	var buf bytes.Buffer
	for _, mf := range Families(rep) {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), "."+filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("metrics: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("metrics: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("metrics: rename into place: %w", err)
	}
	return nil
}

// Families converts rep into metric families, sorted by name.
func Families(rep *types.RunReport) []*dto.MetricFamily {
	agent := label("agent", rep.AgentID)

	disp := &dto.MetricFamily{
		Name: ptr("docship_run_disposition"),
		Help: ptr("1 for the disposition of the last run, 0 otherwise."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, d := range dispositions {
		v := 0.0
		if rep.Disposition == d {
			v = 1
		}
		disp.Metric = append(disp.Metric, &dto.Metric{
			Label: []*dto.LabelPair{agent, label("disposition", string(d))},
			Gauge: &dto.Gauge{Value: ptr(v)},
		})
	}

	degraded := 0.0
	if rep.ScanDegraded {
		degraded = 1
	}

	out := []*dto.MetricFamily{
		disp,
		gauge("docship_files_found", "Files selected by the last scan.", agent, float64(rep.FilesFound)),
		gauge("docship_bytes_found", "Total size of the selected files in bytes.", agent, float64(rep.Bytes)),
		gauge("docship_scan_degraded", "1 when the last scan failed and the run continued without files.", agent, degraded),
		gauge("docship_units_delivered", "Delivery units delivered by the last run.", agent, float64(rep.UnitsDelivered())),
		gauge("docship_units_failed", "Delivery units skipped after exhausting retries in the last run.", agent, float64(rep.UnitsFailed())),
		gauge("docship_delivery_attempts_total", "Delivery attempts made by the last run across all units.", agent, float64(rep.DeliveryAttempts())),
		gauge("docship_cleanup_failures", "Artifacts the last run could not remove.", agent, float64(rep.CleanupFailures())),
		gauge("docship_run_duration_seconds", "Wall time of the last run.", agent, rep.Duration().Seconds()),
		gauge("docship_run_timestamp_seconds", "Unix time the last run finished.", agent, float64(rep.FinishedAt.Unix())),
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

func gauge(name, help string, lbl *dto.LabelPair, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Label: []*dto.LabelPair{lbl},
			Gauge: &dto.Gauge{Value: ptr(v)},
		}},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T { return &v }
