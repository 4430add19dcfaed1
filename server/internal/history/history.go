package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/docship/docship/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// AgentSummary aggregates the stored runs of one agent.
type AgentSummary struct {
	AgentID         string            `json:"agent_id"`
	Runs            int               `json:"runs"`
	LastFinishedAt  time.Time         `json:"last_finished_at"`
	LastDisposition types.Disposition `json:"last_disposition"`
}

// History is the SQLite-backed run history.
type History struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the SQLite database at dsn and applies pending migrations.
// Use ":memory:" for a throwaway database.
func Open(dsn string) (*History, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: run migrations: %w", err)
	}

	return &History{db: db, now: time.Now}, nil
}

// Close releases the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Save records rep. A report re-posted with the same run_id replaces the
// earlier row, so reporter retries never duplicate a run.
func (h *History) Save(ctx context.Context, rep *types.RunReport) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("history: marshal report: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, agent_id, started_at, finished_at, disposition,
		                   files_found, bytes, units_delivered, units_failed, report, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET
		   agent_id = excluded.agent_id,
		   started_at = excluded.started_at,
		   finished_at = excluded.finished_at,
		   disposition = excluded.disposition,
		   files_found = excluded.files_found,
		   bytes = excluded.bytes,
		   units_delivered = excluded.units_delivered,
		   units_failed = excluded.units_failed,
		   report = excluded.report,
		   received_at = excluded.received_at`,
		rep.RunID, rep.AgentID,
		formatTime(rep.StartedAt), formatTime(rep.FinishedAt),
		string(rep.Disposition), rep.FilesFound, rep.Bytes,
		rep.UnitsDelivered(), rep.UnitsFailed(),
		string(body), formatTime(h.now()),
	)
	if err != nil {
		return fmt.Errorf("history: upsert run %s: %w", rep.RunID, err)
	}
	return nil
}

// Recent returns up to limit reports, newest first. An empty agentID
// returns runs of every agent.
func (h *History) Recent(ctx context.Context, agentID string, limit int) ([]*types.RunReport, error) {
	q := `SELECT report FROM runs`
	var args []any
	if agentID != "" {
		q += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	q += ` ORDER BY finished_at DESC, run_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var out []*types.RunReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		rep := new(types.RunReport)
		if err := json.Unmarshal([]byte(body), rep); err != nil {
			return nil, fmt.Errorf("history: decode run: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// Agents summarises every agent that has at least one stored run,
// ordered by agent ID.
func (h *History) Agents(ctx context.Context) ([]AgentSummary, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT r.agent_id, c.runs, r.finished_at, r.disposition
		 FROM runs r
		 JOIN (SELECT agent_id, COUNT(*) AS runs, MAX(finished_at) AS last_finished
		       FROM runs GROUP BY agent_id) c
		   ON c.agent_id = r.agent_id AND c.last_finished = r.finished_at
		 GROUP BY r.agent_id
		 ORDER BY r.agent_id`)
	if err != nil {
		return nil, fmt.Errorf("history: list agents: %w", err)
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		var (
			s           AgentSummary
			finished    string
			disposition string
		)
		if err := rows.Scan(&s.AgentID, &s.Runs, &finished, &disposition); err != nil {
			return nil, fmt.Errorf("history: scan agent: %w", err)
		}
		if s.LastFinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("history: agent %s: %w", s.AgentID, err)
		}
		s.LastDisposition = types.Disposition(disposition)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes runs that finished before cutoff and returns how many
// were removed.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// Run prunes runs older than retention once an hour until ctx is cancelled.
// A zero retention keeps every run and Run only waits for ctx.
func (h *History) Run(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := h.Prune(ctx, now.Add(-retention))
			if err != nil {
				slog.Error("history: prune failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("history: pruned old runs", "count", n)
			}
		}
	}
}

// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
