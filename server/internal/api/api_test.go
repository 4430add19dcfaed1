package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docship/docship/pkg/types"
	"github.com/docship/docship/server/internal/alerts"
	"github.com/docship/docship/server/internal/api"
	"github.com/docship/docship/server/internal/history"
	"github.com/docship/docship/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

var base = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

func newStore(reps ...*types.RunReport) *store.Store {
	st := store.New(5 * time.Minute)
	for _, r := range reps {
		st.Put(r)
	}
	return st
}

func report(agent string, d types.Disposition, finished time.Time) *types.RunReport {
	return &types.RunReport{
		RunID:       agent + "-run",
		AgentID:     agent,
		Channel:     "objectstore",
		Disposition: d,
		FilesFound:  4,
		Bytes:       2048,
		StartedAt:   finished.Add(-time.Minute),
		FinishedAt:  finished,
		Units: []types.UnitReport{
			{Name: "archive", Delivered: d != types.DispositionAborted},
			{Name: "log", Delivered: d == types.DispositionCompleted},
		},
	}
}

type fakeHistory struct {
	runs     []*types.RunReport
	agents   []history.AgentSummary
	err      error
	gotAgent string
	gotLimit int
}

func (f *fakeHistory) Recent(_ context.Context, agent string, limit int) ([]*types.RunReport, error) {
	f.gotAgent, f.gotLimit = agent, limit
	return f.runs, f.err
}

func (f *fakeHistory) Agents(context.Context) ([]history.AgentSummary, error) {
	return f.agents, f.err
}

type fakeAlerts []*alerts.Alert

func (f fakeAlerts) Active() []*alerts.Alert { return f }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := api.New(newStore(), api.Options{})
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" || resp.AgentCount != 0 {
		t.Errorf("health: got %+v, want unknown with 0 agents", resp)
	}
}

func TestHealth_States(t *testing.T) {
	cases := []struct {
		name string
		reps []*types.RunReport
		want string
	}{
		{"all completed", []*types.RunReport{
			report("a", types.DispositionCompleted, base),
		}, "ok"},
		{"one partial", []*types.RunReport{
			report("a", types.DispositionCompleted, base),
			report("b", types.DispositionPartiallyDelivered, base),
		}, "degraded"},
		{"one aborted", []*types.RunReport{
			report("a", types.DispositionPartiallyDelivered, base),
			report("b", types.DispositionAborted, base),
		}, "failing"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := get(t, api.New(newStore(c.reps...), api.Options{}), "/api/v1/health")
			var resp api.HealthResponse
			decode(t, rr, &resp)
			if resp.State != c.want {
				t.Errorf("state: got %q, want %q", resp.State, c.want)
			}
			if resp.AgentCount != len(c.reps) {
				t.Errorf("agent_count: got %d, want %d", resp.AgentCount, len(c.reps))
			}
		})
	}
}

func TestHealth_CountsFiringAlerts(t *testing.T) {
	al := fakeAlerts{{State: "firing"}, {State: "resolved"}, {State: "firing"}}
	rr := get(t, api.New(newStore(), api.Options{Alerts: al}), "/api/v1/health")
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.AlertCount != 2 {
		t.Errorf("alert_count: got %d, want 2", resp.AlertCount)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(), api.Options{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/agents ---------------------------------------------------------

func TestListAgents_Empty(t *testing.T) {
	rr := get(t, api.New(newStore(), api.Options{}), "/api/v1/agents")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.AgentResponse
	decode(t, rr, &resp)
	if resp == nil || len(resp) != 0 {
		t.Errorf("agents: got %v, want empty array", resp)
	}
}

func TestListAgents_Fields(t *testing.T) {
	h := api.New(newStore(
		report("nas", types.DispositionCompleted, base),
		report("laptop", types.DispositionAborted, base),
	), api.Options{})
	rr := get(t, h, "/api/v1/agents")

	var resp []api.AgentResponse
	decode(t, rr, &resp)
	if len(resp) != 2 {
		t.Fatalf("agents: got %d, want 2", len(resp))
	}
	l := resp[0]
	if l.AgentID != "laptop" || l.Disposition != types.DispositionAborted {
		t.Errorf("agents[0]: got %+v", l)
	}
	if l.UnitsDelivered != 0 || l.UnitsFailed != 2 {
		t.Errorf("units: got %d/%d, want 0 delivered 2 failed", l.UnitsDelivered, l.UnitsFailed)
	}
	if l.FinishedAt != "2026-03-01T02:00:00Z" || l.LastSeen == "" {
		t.Errorf("timestamps: finished=%q last_seen=%q", l.FinishedAt, l.LastSeen)
	}
	if resp[1].AgentID != "nas" || resp[1].UnitsDelivered != 2 {
		t.Errorf("agents[1]: got %+v", resp[1])
	}
}

func TestGetAgent_Found(t *testing.T) {
	h := api.New(newStore(report("nas", types.DispositionCompleted, base)), api.Options{})
	rr := get(t, h, "/api/v1/agents/nas")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.AgentDetailResponse
	decode(t, rr, &resp)
	if resp.AgentID != "nas" || resp.Report == nil || len(resp.Report.Units) != 2 {
		t.Errorf("detail: got %+v", resp)
	}
}

func TestGetAgent_NotFound(t *testing.T) {
	rr := get(t, api.New(newStore(), api.Options{}), "/api/v1/agents/ghost")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestGetAgent_BarePathLists(t *testing.T) {
	h := api.New(newStore(report("nas", types.DispositionCompleted, base)), api.Options{})
	rr := get(t, h, "/api/v1/agents/")
	var resp []api.AgentResponse
	decode(t, rr, &resp)
	if len(resp) != 1 {
		t.Errorf("agents: got %d, want 1", len(resp))
	}
}

// --- /api/v1/runs -----------------------------------------------------------

func TestRuns_FromHistory(t *testing.T) {
	hist := &fakeHistory{runs: []*types.RunReport{report("nas", types.DispositionCompleted, base)}}
	h := api.New(newStore(), api.Options{History: hist, RunsLimit: 25})

	rr := get(t, h, "/api/v1/runs?agent=nas")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RunsResponse
	decode(t, rr, &resp)
	if resp.Source != "history" || len(resp.Runs) != 1 {
		t.Errorf("runs: got %+v", resp)
	}
	if hist.gotAgent != "nas" || hist.gotLimit != 25 {
		t.Errorf("history query: agent=%q limit=%d, want nas/25", hist.gotAgent, hist.gotLimit)
	}

	get(t, h, "/api/v1/runs?limit=5000")
	if hist.gotLimit != 1000 {
		t.Errorf("limit cap: got %d, want 1000", hist.gotLimit)
	}
}

func TestRuns_HistoryError(t *testing.T) {
	hist := &fakeHistory{err: errors.New("disk I/O error")}
	rr := get(t, api.New(newStore(), api.Options{History: hist}), "/api/v1/runs")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}

func TestRuns_LiveFallback(t *testing.T) {
	h := api.New(newStore(
		report("a", types.DispositionCompleted, base),
		report("b", types.DispositionAborted, base.Add(time.Hour)),
		report("c", types.DispositionCompleted, base.Add(2*time.Hour)),
	), api.Options{})

	rr := get(t, h, "/api/v1/runs?limit=2")
	var resp api.RunsResponse
	decode(t, rr, &resp)
	if resp.Source != "live" || len(resp.Runs) != 2 {
		t.Fatalf("runs: got source=%q n=%d", resp.Source, len(resp.Runs))
	}
	if resp.Runs[0].AgentID != "c" || resp.Runs[1].AgentID != "b" {
		t.Errorf("order: got %s,%s want c,b", resp.Runs[0].AgentID, resp.Runs[1].AgentID)
	}

	rr = get(t, h, "/api/v1/runs?agent=a")
	decode(t, rr, &resp)
	if len(resp.Runs) != 1 || resp.Runs[0].AgentID != "a" {
		t.Errorf("filtered runs: got %+v", resp.Runs)
	}
}

func TestRuns_BadLimit(t *testing.T) {
	h := api.New(newStore(), api.Options{})
	for _, q := range []string{"limit=0", "limit=-3", "limit=ten"} {
		if rr := get(t, h, "/api/v1/runs?"+q); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want 400", q, rr.Code)
		}
	}
}

// --- /api/v1/history/agents ------------------------------------------------

func TestHistoryAgents(t *testing.T) {
	hist := &fakeHistory{agents: []history.AgentSummary{
		{AgentID: "nas", Runs: 12, LastFinishedAt: base, LastDisposition: types.DispositionCompleted},
	}}
	rr := get(t, api.New(newStore(), api.Options{History: hist}), "/api/v1/history/agents")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []history.AgentSummary
	decode(t, rr, &resp)
	if len(resp) != 1 || resp[0].AgentID != "nas" || resp[0].Runs != 12 {
		t.Errorf("agents: got %+v", resp)
	}
}

func TestHistoryAgents_Disabled(t *testing.T) {
	rr := get(t, api.New(newStore(), api.Options{}), "/api/v1/history/agents")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_EmptyWithoutEngine(t *testing.T) {
	rr := get(t, api.New(newStore(), api.Options{}), "/api/v1/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body: got %q, want []", body)
	}
}

func TestAlerts_FromEngine(t *testing.T) {
	al := fakeAlerts{{RuleName: "run-aborted", AgentID: "nas", State: "firing"}}
	rr := get(t, api.New(newStore(), api.Options{Alerts: al}), "/api/v1/alerts")
	var resp []alerts.Alert
	decode(t, rr, &resp)
	if len(resp) != 1 || resp[0].RuleName != "run-aborted" {
		t.Errorf("alerts: got %+v", resp)
	}
}

// --- /api/v1/snapshot -------------------------------------------------------

func TestSnapshot(t *testing.T) {
	h := api.New(newStore(
		report("a", types.DispositionCompleted, base),
		report("b", types.DispositionCompleted, base),
	), api.Options{})
	rr := get(t, h, "/api/v1/snapshot")

	var resp api.SnapshotResponse
	decode(t, rr, &resp)
	if len(resp.Agents) != 2 || resp.Health.State != "ok" {
		t.Errorf("snapshot: got %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.GeneratedAt); err != nil {
		t.Errorf("generated_at: %v", err)
	}
}

func TestContentTypeJSON(t *testing.T) {
	h := api.New(newStore(), api.Options{})
	for _, path := range []string{
		"/api/v1/health",
		"/api/v1/agents",
		"/api/v1/runs",
		"/api/v1/alerts",
		"/api/v1/snapshot",
	} {
		rr := get(t, h, path)
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s Content-Type: got %q, want application/json", path, ct)
		}
	}
}
