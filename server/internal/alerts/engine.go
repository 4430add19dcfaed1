package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/docship/docship/pkg/types"
	"github.com/docship/docship/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 24
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	AgentID    string     `json:"agent_id"`
	RunID      string     `json:"run_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"

	// Run summarises the report that fired the alert, or the one that
	// resolved it.
	Run RunSummary `json:"run"`
}

// RunSummary is the part of a RunReport a notification carries.
type RunSummary struct {
	RunID          string            `json:"run_id"`
	Disposition    types.Disposition `json:"disposition"`
	FilesFound     int               `json:"files_found"`
	Bytes          int64             `json:"bytes"`
	UnitsDelivered int               `json:"units_delivered"`
	UnitsFailed    int               `json:"units_failed"`
	ScanDegraded   bool              `json:"scan_degraded"`
	FinishedAt     time.Time         `json:"finished_at"`
}

func summarize(rep *types.RunReport) RunSummary {
	return RunSummary{
		RunID:          rep.RunID,
		Disposition:    rep.Disposition,
		FilesFound:     rep.FilesFound,
		Bytes:          rep.Bytes,
		UnitsDelivered: rep.UnitsDelivered(),
		UnitsFailed:    rep.UnitsFailed(),
		ScanDegraded:   rep.ScanDegraded,
		FinishedAt:     rep.FinishedAt,
	}
}

// Engine evaluates alert rules against incoming run reports and delivers
// webhook notifications when rules fire or resolve. An alert resolves on the
// first report from the same agent for which the condition no longer holds.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:agentID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates an Engine from the server alert configuration. Rules whose
// condition cannot be parsed are logged and dropped. An Engine with no rules
// is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	rules := make([]config.AlertRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if err := checkCondition(r.Condition); err != nil {
			slog.Warn("alerts: rule ignored", "rule", r.Name, "err", err)
			continue
		}
		rules = append(rules, r)
	}
	return &Engine{
		rules:    rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Evaluate tests all configured rules against rep.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(rep *types.RunReport) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range e.rules {
		key := rule.Name + ":" + rep.AgentID
		fires, value := evalCondition(rule.Condition, rep)

		e.mu.Lock()
		var notify *Alert
		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if now.Sub(e.lastFire[key]) > cooldown {
				sev := rule.Severity
				if sev == "" {
					sev = "warning"
				}
				a := &Alert{
					ID:       fmt.Sprintf("%s:%s:%d", rule.Name, rep.AgentID, now.UnixNano()),
					RuleName: rule.Name,
					AgentID:  rep.AgentID,
					RunID:    rep.RunID,
					Severity: sev,
					Value:    value,
					Message: fmt.Sprintf("[%s] %s fired on %s (run %s): %s, value %.2f",
						sev, rule.Name, rep.AgentID, rep.RunID, rule.Condition, value),
					FiredAt: now,
					State:   "firing",
					Run:     summarize(rep),
				}
				e.active[key] = a
				e.lastFire[key] = now
				cp := *a
				notify = &cp

				slog.Warn("alert fired",
					"rule", rule.Name,
					"agent", rep.AgentID,
					"run_id", rep.RunID,
					"value", value,
					"severity", sev,
				)
			}
		} else if a, ok := e.active[key]; ok && a.State == "firing" {
			resolved := now
			a.State = "resolved"
			a.ResolvedAt = &resolved
			a.Run = summarize(rep)
			delete(e.active, key)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			cp := *a
			notify = &cp

			slog.Info("alert resolved", "rule", rule.Name, "agent", rep.AgentID)
		}
		e.mu.Unlock()

		if notify != nil && len(e.webhooks) > 0 {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.deliver(notify)
			}()
		}
	}
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past day, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
