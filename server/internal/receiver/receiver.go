package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/docship/docship/pkg/types"
	"github.com/docship/docship/server/internal/store"
)

// Recorder persists accepted reports.
type Recorder interface {
	Save(ctx context.Context, rep *types.RunReport) error
}

// Evaluator runs alert rules against accepted reports.
type Evaluator interface {
	Evaluate(rep *types.RunReport)
}

// Publisher pushes accepted reports to live subscribers.
type Publisher interface {
	Publish(rep *types.RunReport)
}

// Options wires the optional consumers of accepted reports. Nil fields are
// skipped.
type Options struct {
	History      Recorder
	Alerts       Evaluator
	Hub          Publisher
	MaxBodyBytes int64
}

// Receiver is the HTTP endpoint that accepts RunReport documents posted by
// docship-agent instances.
type Receiver struct {
	store *store.Store
	opts  Options
}

// New creates a Receiver that writes accepted reports to st.
func New(st *store.Store, opts Options) *Receiver {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &Receiver{store: st, opts: opts}
}

// ServeHTTP handles POST /api/v1/reports. It decodes the (optionally gzipped)
// JSON report, validates it, stores it and fans it out to history, alerts and
// the WebSocket hub. Authentication is enforced upstream by the auth
// middleware, so the receiver only performs structural validation.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rep, status, err := r.decode(w, req)
	if err != nil {
		slog.Warn("receiver: report rejected", "remote", req.RemoteAddr, "status", status, "err", err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	r.store.Put(rep)

	if r.opts.History != nil {
		if err := r.opts.History.Save(req.Context(), rep); err != nil {
			// The report is live in the store; a history failure does not
			// make the agent retry.
			slog.Error("receiver: history save failed", "agent", rep.AgentID, "run_id", rep.RunID, "err", err)
		}
	}
	if r.opts.Alerts != nil {
		r.opts.Alerts.Evaluate(rep)
	}
	if r.opts.Hub != nil {
		r.opts.Hub.Publish(rep)
	}

	slog.Info("receiver: report stored",
		"agent", rep.AgentID,
		"run_id", rep.RunID,
		"disposition", rep.Disposition,
		"units_delivered", rep.UnitsDelivered(),
		"units_failed", rep.UnitsFailed(),
	)

	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// decode reads and validates the request body. On failure it returns the
// HTTP status to answer with.
func (r *Receiver) decode(w http.ResponseWriter, req *http.Request) (*types.RunReport, int, error) {
	body := http.MaxBytesReader(w, req.Body, r.opts.MaxBodyBytes)
	var src io.Reader = body
	if strings.EqualFold(req.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("invalid gzip body")
		}
		defer zr.Close()
		// Cap the inflated size as well as the wire size.
		src = io.LimitReader(zr, r.opts.MaxBodyBytes+1)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("report too large")
		}
		return nil, http.StatusBadRequest, errors.New("unreadable body")
	}
	if int64(len(data)) > r.opts.MaxBodyBytes {
		return nil, http.StatusRequestEntityTooLarge, errors.New("report too large")
	}

	rep := new(types.RunReport)
	if err := json.Unmarshal(data, rep); err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid JSON report")
	}
	if rep.AgentID == "" {
		return nil, http.StatusBadRequest, errors.New("agent_id is required")
	}
	if rep.RunID == "" {
		return nil, http.StatusBadRequest, errors.New("run_id is required")
	}
	switch rep.Disposition {
	case types.DispositionCompleted, types.DispositionPartiallyDelivered, types.DispositionAborted:
	default:
		return nil, http.StatusBadRequest, errors.New("unknown disposition")
	}
	return rep, 0, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
