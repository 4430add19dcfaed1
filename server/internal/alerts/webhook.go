package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// deliver posts a to every configured webhook target. Failures are logged;
// they never reach Evaluate.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = httpPayload(a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "run_id", a.Run.RunID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "run_id", a.Run.RunID, "state", a.State)
	}
}

// headline is the one-line subject of a notification.
func headline(a *Alert) string {
	if a.State == "resolved" {
		return fmt.Sprintf("[RESOLVED] %s on %s", a.RuleName, a.AgentID)
	}
	return fmt.Sprintf("%s %s on %s", severityLabel(a.Severity), a.RuleName, a.AgentID)
}

// outcome describes the run behind a: disposition, units and scanned data.
func outcome(r RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s %s: %d/%d units delivered",
		r.RunID, r.Disposition, r.UnitsDelivered, r.UnitsDelivered+r.UnitsFailed)
	if r.UnitsFailed > 0 {
		fmt.Fprintf(&b, ", %d failed", r.UnitsFailed)
	}
	fmt.Fprintf(&b, ", %d files (%d bytes)", r.FilesFound, r.Bytes)
	if r.ScanDegraded {
		b.WriteString(", scan degraded")
	}
	return b.String()
}

func slackPayload(a *Alert) []byte {
	text := fmt.Sprintf("*%s*\n%s", headline(a), outcome(a.Run))
	body, _ := json.Marshal(map[string]string{"text": text})
	return body
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func teamsPayload(a *Alert) []byte {
	r := a.Run
	facts := []teamsFact{
		{"Agent", a.AgentID},
		{"Run", r.RunID},
		{"Disposition", string(r.Disposition)},
		{"Units delivered", fmt.Sprint(r.UnitsDelivered)},
		{"Units failed", fmt.Sprint(r.UnitsFailed)},
		{"Files", fmt.Sprintf("%d (%d bytes)", r.FilesFound, r.Bytes)},
	}
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity, a.State),
		"summary":    headline(a),
		"title":      "docship: " + headline(a),
		"text":       a.Message,
		"sections":   []map[string]any{{"facts": facts}},
	})
	return body
}

// httpPayload is the raw alert; its run field carries the summary.
func httpPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]any{"alert": a})
	return body
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// severityColor picks the Teams card colour; resolved alerts are green.
func severityColor(s, state string) string {
	if state == "resolved" {
		return "2EB67D"
	}
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
