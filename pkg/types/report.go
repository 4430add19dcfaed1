package types

import "time"

// Disposition is the terminal classification of a run.
type Disposition string

const (
	DispositionCompleted          Disposition = "completed"
	DispositionPartiallyDelivered Disposition = "partially_delivered"
	DispositionAborted            Disposition = "aborted"
)

// RunReport is the terminal record of one pipeline run. The agent logs it,
// hands it to lifecycle hooks and ships it to docship-server as JSON.
type RunReport struct {
	RunID       string      `json:"run_id"`
	AgentID     string      `json:"agent_id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Channel     string      `json:"channel,omitempty"`
	Disposition Disposition `json:"disposition"`

	// ScanDegraded is true when every scan attempt failed and the run went
	// on with an empty file list.
	ScanDegraded bool  `json:"scan_degraded"`
	ScanAttempts int   `json:"scan_attempts"`
	FilesFound   int   `json:"files_found"`
	Bytes        int64 `json:"bytes"`

	// ArchiveEntries is empty when no archive was built.
	ArchiveEntries []string `json:"archive_entries,omitempty"`
	// Replaced lists source paths overwritten by a basename collision.
	Replaced []string `json:"replaced,omitempty"`

	Units   []UnitReport    `json:"units,omitempty"`
	Errors  []StageError    `json:"errors,omitempty"`
	Cleanup []CleanupReport `json:"cleanup,omitempty"`
}

// UnitReport is the outcome of one delivery unit.
type UnitReport struct {
	Name      string          `json:"name"`
	Key       string          `json:"key,omitempty"`
	Delivered bool            `json:"delivered"`
	Attempts  []AttemptReport `json:"attempts,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// AttemptReport records one invocation of a retried operation.
type AttemptReport struct {
	Index      int       `json:"index"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// StageError is one failure recorded during the run. Kind matches the
// agent's fault kinds: scan, archive, connectivity, destination, delivery,
// cleanup.
type StageError struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CleanupReport is the outcome of reclaiming one artifact.
type CleanupReport struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// UnitsDelivered counts delivered units.
func (r *RunReport) UnitsDelivered() int {
	n := 0
	for _, u := range r.Units {
		if u.Delivered {
			n++
		}
	}
	return n
}

// UnitsFailed counts units whose retries were exhausted.
func (r *RunReport) UnitsFailed() int {
	return len(r.Units) - r.UnitsDelivered()
}

// DeliveryAttempts sums attempts across every unit.
func (r *RunReport) DeliveryAttempts() int {
	n := 0
	for _, u := range r.Units {
		n += len(u.Attempts)
	}
	return n
}

// CleanupFailures counts artifacts that could not be removed.
func (r *RunReport) CleanupFailures() int {
	n := 0
	for _, c := range r.Cleanup {
		if c.Status == "failed" {
			n++
		}
	}
	return n
}

// Duration is the wall time between start and finish.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode maps the disposition to the agent's process exit status.
func (d Disposition) ExitCode() int {
	switch d {
	case DispositionCompleted:
		return 0
	case DispositionPartiallyDelivered:
		return 3
	default:
		return 2
	}
}
