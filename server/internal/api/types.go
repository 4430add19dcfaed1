package api

import "github.com/docship/docship/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "ok" when every live agent completed its last run, "degraded"
	// when at least one was partially delivered, "failing" when at least one
	// aborted, and "unknown" when no agent has reported.
	State          string `json:"state"`
	AgentCount     int    `json:"agent_count"`
	CompletedCount int    `json:"completed_count"`
	PartialCount   int    `json:"partial_count"`
	AbortedCount   int    `json:"aborted_count"`
	AlertCount     int    `json:"alert_count"`
}

// AgentResponse summarises an agent's latest run in GET /api/v1/agents.
type AgentResponse struct {
	AgentID         string            `json:"agent_id"`
	RunID           string            `json:"run_id"`
	Disposition     types.Disposition `json:"disposition"`
	Channel         string            `json:"channel"`
	FilesFound      int               `json:"files_found"`
	Bytes           int64             `json:"bytes"`
	UnitsDelivered  int               `json:"units_delivered"`
	UnitsFailed     int               `json:"units_failed"`
	ScanDegraded    bool              `json:"scan_degraded"`
	CleanupFailures int               `json:"cleanup_failures"`
	StartedAt       string            `json:"started_at"`  // RFC3339
	FinishedAt      string            `json:"finished_at"` // RFC3339
	LastSeen        string            `json:"last_seen"`   // RFC3339
}

// AgentDetailResponse is the payload for GET /api/v1/agents/{id}: the
// summary plus the full latest report.
type AgentDetailResponse struct {
	AgentResponse
	Report *types.RunReport `json:"report"`
}

// RunsResponse is the payload for GET /api/v1/runs.
type RunsResponse struct {
	// Source is "history" when runs come from the persistent history and
	// "live" when only the latest report per agent is available.
	Source string             `json:"source"`
	Runs   []*types.RunReport `json:"runs"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Health      HealthResponse  `json:"health"`
	Agents      []AgentResponse `json:"agents"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
