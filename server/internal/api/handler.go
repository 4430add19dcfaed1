package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docship/docship/pkg/types"
	"github.com/docship/docship/server/internal/alerts"
	"github.com/docship/docship/server/internal/history"
	"github.com/docship/docship/server/internal/store"
)

const maxRunsLimit = 1000

// RunHistory is the persistent run log consulted by GET /api/v1/runs and
// GET /api/v1/history/agents.
type RunHistory interface {
	Recent(ctx context.Context, agentID string, limit int) ([]*types.RunReport, error)
	Agents(ctx context.Context) ([]history.AgentSummary, error)
}

// AlertSource lists current and recently resolved alerts.
type AlertSource interface {
	Active() []*alerts.Alert
}

// Options wires the optional collaborators of the API. Nil fields disable
// the corresponding data: runs fall back to the live store and alerts are
// reported as an empty list.
type Options struct {
	History   RunHistory
	Alerts    AlertSource
	RunsLimit int
}

// Handler is the HTTP handler for all /api/v1/* read endpoints.
// It reads agent state from the report store and returns JSON responses.
type Handler struct {
	store *store.Store
	opts  Options
	mux   *http.ServeMux
}

// New creates a Handler wired to the given report store and registers all routes.
func New(st *store.Store, opts Options) http.Handler {
	if opts.RunsLimit <= 0 {
		opts.RunsLimit = 100
	}
	h := &Handler{store: st, opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/agents", h.listAgents)
	h.mux.HandleFunc("/api/v1/agents/", h.getAgent) // subtree: extracts {id}
	h.mux.HandleFunc("/api/v1/runs", h.runs)
	h.mux.HandleFunc("/api/v1/history/agents", h.historyAgents)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: fleet state and per-disposition counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildHealth(h.store, h.opts.Alerts))
}

// listAgents returns GET /api/v1/agents: the latest run of every live agent.
func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, agentList(h.store))
}

// getAgent returns GET /api/v1/agents/{id}: one agent's latest full report.
func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	if id == "" {
		h.listAgents(w, r)
		return
	}

	e, ok := h.store.Live(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "agent not found")
		return
	}
	jsonResp(w, http.StatusOK, AgentDetailResponse{
		AgentResponse: toAgentResponse(e),
		Report:        e.Report,
	})
}

// runs returns GET /api/v1/runs?agent=<id>&limit=<n>: recent runs, newest
// first, from the persistent history when configured.
func (h *Handler) runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	agent := r.URL.Query().Get("agent")
	limit := h.opts.RunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	if h.opts.History != nil {
		runs, err := h.opts.History.Recent(r.Context(), agent, limit)
		if err != nil {
			slog.Error("api: list runs failed", "agent", agent, "err", err)
			jsonErr(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if runs == nil {
			runs = []*types.RunReport{}
		}
		jsonResp(w, http.StatusOK, RunsResponse{Source: "history", Runs: runs})
		return
	}

	runs := make([]*types.RunReport, 0)
	for _, e := range h.store.List() {
		if agent != "" && e.Report.AgentID != agent {
			continue
		}
		runs = append(runs, e.Report)
	}
	sortByFinished(runs)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	jsonResp(w, http.StatusOK, RunsResponse{Source: "live", Runs: runs})
}

// historyAgents returns GET /api/v1/history/agents: every agent that ever
// reported, including those evicted from the live store. 404 without history.
func (h *Handler) historyAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.opts.History == nil {
		jsonErr(w, http.StatusNotFound, "history disabled")
		return
	}
	agents, err := h.opts.History.Agents(r.Context())
	if err != nil {
		slog.Error("api: list history agents failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if agents == nil {
		agents = []history.AgentSummary{}
	}
	jsonResp(w, http.StatusOK, agents)
}

// alerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.opts.Alerts != nil {
		out = append(out, h.opts.Alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot: health plus every live agent.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.opts.Alerts))
}

// --- shared builders --------------------------------------------------------

// BuildHealth aggregates the dispositions of all live agents.
func BuildHealth(st *store.Store, al AlertSource) HealthResponse {
	entries := st.List()
	resp := HealthResponse{AgentCount: len(entries)}
	if al != nil {
		for _, a := range al.Active() {
			if a.State == "firing" {
				resp.AlertCount++
			}
		}
	}

	if len(entries) == 0 {
		resp.State = "unknown"
		return resp
	}
	for _, e := range entries {
		switch e.Report.Disposition {
		case types.DispositionCompleted:
			resp.CompletedCount++
		case types.DispositionPartiallyDelivered:
			resp.PartialCount++
		default:
			resp.AbortedCount++
		}
	}
	switch {
	case resp.AbortedCount > 0:
		resp.State = "failing"
	case resp.PartialCount > 0:
		resp.State = "degraded"
	default:
		resp.State = "ok"
	}
	return resp
}

// BuildSnapshot assembles the full view served by GET /api/v1/snapshot and
// broadcast over WebSocket.
func BuildSnapshot(st *store.Store, al AlertSource) SnapshotResponse {
	return SnapshotResponse{
		Health:      BuildHealth(st, al),
		Agents:      agentList(st),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func agentList(st *store.Store) []AgentResponse {
	entries := st.List()
	out := make([]AgentResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAgentResponse(e))
	}
	return out
}

// toAgentResponse maps a store.Entry to its JSON summary.
func toAgentResponse(e *store.Entry) AgentResponse {
	rep := e.Report
	return AgentResponse{
		AgentID:         rep.AgentID,
		RunID:           rep.RunID,
		Disposition:     rep.Disposition,
		Channel:         rep.Channel,
		FilesFound:      rep.FilesFound,
		Bytes:           rep.Bytes,
		UnitsDelivered:  rep.UnitsDelivered(),
		UnitsFailed:     rep.UnitsFailed(),
		ScanDegraded:    rep.ScanDegraded,
		CleanupFailures: rep.CleanupFailures(),
		StartedAt:       formatTime(rep.StartedAt),
		FinishedAt:      formatTime(rep.FinishedAt),
		LastSeen:        formatTime(e.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sortByFinished(runs []*types.RunReport) {
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].FinishedAt.After(runs[j].FinishedAt) })
}
