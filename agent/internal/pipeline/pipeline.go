package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/docship/docship/agent/internal/archive"
	"github.com/docship/docship/agent/internal/cleanup"
	"github.com/docship/docship/agent/internal/config"
	"github.com/docship/docship/agent/internal/delivery"
	"github.com/docship/docship/agent/internal/fault"
	"github.com/docship/docship/agent/internal/retry"
	"github.com/docship/docship/agent/internal/scanner"
	"github.com/docship/docship/pkg/types"
)

// Scanner produces one scan attempt per call.
type Scanner interface {
	Scan(ctx context.Context) (*scanner.Result, error)
	Root() string
}

// Gate blocks until the network is reachable.
type Gate interface {
	Wait(ctx context.Context, pollInterval, probeTimeout, maxWait time.Duration) error
}

// Pipeline runs scan, archive, connectivity gate, delivery and cleanup in
// strict sequence. One Pipeline may run many times; no state survives a run.
type Pipeline struct {
	cfg     config.AgentConfig
	scanner Scanner
	gate    Gate
	channel delivery.Channel
	cleaner *cleanup.Coordinator
	exec    *retry.Executor
	hooks   []Hook

	// logOut receives the run's JSON log next to the run log file.
	logOut io.Writer
	newID  func() string
	now    func() time.Time
}

// New wires a Pipeline. Hooks run in the order given.
func New(cfg config.AgentConfig, sc Scanner, gate Gate, ch delivery.Channel, hooks ...Hook) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		scanner: sc,
		gate:    gate,
		channel: ch,
		cleaner: cleanup.New(),
		exec:    &retry.Executor{},
		hooks:   hooks,
		logOut:  os.Stdout,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// state carries the transient artifacts of one run to cleanup.
type state struct {
	outcome      Outcome
	artifactPath string
	logPath      string
}

// Run executes one pipeline run and returns its report. Run never returns
// early without cleaning up: the archive and run log are reclaimed exactly
// once, after the disposition is known, whatever happened before.
func (p *Pipeline) Run(ctx context.Context) *types.RunReport {
	rep := &types.RunReport{
		RunID:     p.newID(),
		AgentID:   p.cfg.ID,
		StartedAt: p.now(),
		Channel:   p.channel.Kind(),
	}
	st := &state{}

	closeLog := p.openRunLog(rep.RunID, st)

	slog.Info("pipeline: run started",
		"run_id", rep.RunID, "agent", rep.AgentID, "root", p.scanner.Root(), "channel", rep.Channel)

	p.execute(ctx, rep, st)
	rep.Disposition = Classify(st.outcome)

	// The run log must be closed before it is removed.
	closeLog()
	p.reclaim(rep, st)
	rep.FinishedAt = p.now()

	slog.Info("pipeline: run finished",
		"run_id", rep.RunID,
		"disposition", rep.Disposition,
		"files", rep.FilesFound,
		"units", len(rep.Units),
		"delivered", rep.UnitsDelivered(),
		"errors", len(rep.Errors),
		"duration", rep.Duration())

	p.runHooks(ctx, rep)
	return rep
}

// execute runs every stage up to delivery, recording into rep and st. It
// returns as soon as a stage aborts.
func (p *Pipeline) execute(ctx context.Context, rep *types.RunReport, st *state) {
	res, sr := retry.Do(ctx, p.exec, "scan", p.cfg.Retry.Scan,
		func(ctx context.Context, _ int) (*scanner.Result, error) {
			return p.scanner.Scan(ctx)
		})
	rep.ScanAttempts = sr.Used()
	if !sr.OK() {
		p.fail(rep, st, fault.KindScan, sr.Err)
		if p.cfg.Scan.Strict || ctx.Err() != nil {
			slog.Error("pipeline: scan failed, aborting run", "attempts", sr.Used(), "err", sr.Err)
			st.outcome.Aborted = true
			return
		}
		slog.Warn("pipeline: scan failed, continuing with empty result",
			"attempts", sr.Used(), "err", sr.Err)
		st.outcome.ScanDegraded = true
		rep.ScanDegraded = true
		res = &scanner.Result{Root: p.scanner.Root()}
	}
	rep.FilesFound = len(res.Files)
	rep.Bytes = res.TotalSize()
	slog.Info("pipeline: scan complete", "files", rep.FilesFound, "bytes", rep.Bytes)

	payload := delivery.Payload{RunID: rep.RunID, Root: res.Root, Files: res.Files}

	if p.cfg.Delivery.Mode == "archive" && len(res.Files) > 0 {
		st.artifactPath = filepath.Join(p.cfg.WorkDir, "docship-"+rep.RunID+".zip")
		art, err := archive.Build(ctx, res.Files, st.artifactPath)
		if err != nil {
			slog.Error("pipeline: archive failed, skipping delivery", "err", err)
			p.fail(rep, st, fault.KindArchive, err)
			return
		}
		payload.Artifact = art
		rep.ArchiveEntries = art.Entries
		rep.Replaced = art.Replaced
	}
	if p.cfg.Delivery.IncludeLog {
		payload.LogPath = st.logPath
	}

	units := p.channel.Plan(payload)
	st.outcome.Planned = len(units)
	if len(units) == 0 {
		slog.Info("pipeline: nothing to deliver")
		return
	}

	conn := p.cfg.Connectivity
	if err := p.gate.Wait(ctx, conn.PollInterval, conn.ProbeTimeout, conn.MaxWait); err != nil {
		p.fail(rep, st, fault.KindConnectivity, err)
		return
	}

	pr := p.exec.Run(ctx, "prepare "+p.channel.Kind(), p.cfg.Retry.Delivery,
		func(ctx context.Context, _ int) error {
			return p.channel.Prepare(ctx)
		})
	if !pr.OK() {
		slog.Error("pipeline: destination unavailable, aborting run", "channel", p.channel.Kind(), "err", pr.Err)
		p.fail(rep, st, fault.KindDestination, pr.Err)
		return
	}

	for i, u := range units {
		ur, err := p.deliver(ctx, u)
		rep.Units = append(rep.Units, ur)
		if err == nil {
			st.outcome.Delivered++
			continue
		}
		if p.fail(rep, st, fault.KindDelivery, err) {
			for _, rest := range units[i+1:] {
				rep.Units = append(rep.Units, types.UnitReport{Name: rest.Name, Key: rest.Key, Error: "not attempted: run aborted"})
			}
			return
		}
	}
}

// deliver sends one unit under the delivery policy. An exhausted unit is
// reported with its last error; the caller decides whether to move on.
func (p *Pipeline) deliver(ctx context.Context, u delivery.Unit) (types.UnitReport, error) {
	ur := types.UnitReport{Name: u.Name, Key: u.Key}
	if err := ctx.Err(); err != nil {
		ferr := fault.New(fault.KindDelivery, "deliver "+u.Name, err)
		ur.Error = ferr.Error()
		return ur, ferr
	}

	r := p.exec.Run(ctx, "deliver "+u.Name, p.cfg.Retry.Delivery,
		func(ctx context.Context, _ int) error {
			return p.channel.Send(ctx, u)
		})
	for _, a := range r.Attempts {
		ar := types.AttemptReport{Index: a.Index, StartedAt: a.StartedAt, FinishedAt: a.FinishedAt}
		if a.Err != nil {
			ar.Error = a.Err.Error()
		}
		ur.Attempts = append(ur.Attempts, ar)
	}
	if r.OK() {
		ur.Delivered = true
		return ur, nil
	}
	ur.Error = r.Err.Error()
	slog.Error("pipeline: unit skipped", "unit", u.Name, "attempts", r.Used(), "err", r.Err)
	return ur, r.Err
}

// reclaim removes the archive and run log. With keep_on_failure the archive
// of a run that did not complete stays on disk.
func (p *Pipeline) reclaim(rep *types.RunReport, st *state) {
	var crep cleanup.Report
	keep := p.cfg.Cleanup.KeepOnFailure && rep.Disposition != types.DispositionCompleted
	if keep {
		crep = p.cleaner.Cleanup([]string{st.logPath})
		p.cleaner.Keep(&crep, st.artifactPath)
	} else {
		crep = p.cleaner.Cleanup([]string{st.artifactPath, st.logPath})
	}

	for _, e := range crep.Entries {
		cr := types.CleanupReport{Path: e.Path, Status: string(e.Status)}
		if e.Err != nil {
			cr.Error = e.Err.Error()
			p.fail(rep, nil, fault.KindCleanup, e.Err)
		}
		rep.Cleanup = append(rep.Cleanup, cr)
	}
}

// runHooks calls every hook on a context detached from the run, so a
// cancelled run still reports. Each hook gets its own budget.
func (p *Pipeline) runHooks(ctx context.Context, rep *types.RunReport) {
	for _, h := range p.hooks {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budgetOf(h))
		if err := h.AfterRun(hctx, rep); err != nil {
			slog.Warn("pipeline: hook failed", "hook", h.Name(), "run_id", rep.RunID, "err", err)
		}
		cancel()
	}
}

// openRunLog tees the default logger into a per-run log file in work_dir so
// the log can be delivered with the data. The returned func closes the file
// and restores the previous logger; it must run before the file is removed.
func (p *Pipeline) openRunLog(runID string, st *state) func() {
	if err := os.MkdirAll(p.cfg.WorkDir, 0o700); err != nil {
		slog.Warn("pipeline: cannot create work dir, run log disabled", "dir", p.cfg.WorkDir, "err", err)
		return func() {}
	}
	path := filepath.Join(p.cfg.WorkDir, "docship-"+runID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		slog.Warn("pipeline: cannot open run log", "path", path, "err", err)
		return func() {}
	}
	st.logPath = path

	prev := slog.Default()
	handler := slog.NewJSONHandler(io.MultiWriter(p.logOut, f), &slog.HandlerOptions{Level: p.cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler).With("run_id", runID))
	return func() {
		slog.SetDefault(prev)
		if err := f.Close(); err != nil {
			slog.Warn("pipeline: close run log", "path", path, "err", err)
		}
	}
}

// fail records err under stage and applies the fault policy of its kind.
// The kind comes from the fault when there is one, otherwise from stage. It
// reports whether the run was aborted.
func (p *Pipeline) fail(rep *types.RunReport, st *state, stage fault.Kind, err error) bool {
	if err == nil {
		return false
	}
	kind := stage
	if k, ok := fault.KindOf(err); ok {
		kind = k
	}
	rep.Errors = append(rep.Errors, types.StageError{Stage: string(stage), Kind: string(kind), Message: err.Error()})

	if fault.PolicyFor(kind) != fault.ActionAbort || st == nil {
		return false
	}
	st.outcome.Aborted = true
	return true
}
