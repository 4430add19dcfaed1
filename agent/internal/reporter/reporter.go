package reporter

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/docship/docship/agent/internal/config"
	"github.com/docship/docship/agent/internal/retry"
	"github.com/docship/docship/pkg/types"
)

// Reporter posts the final RunReport of every run to docship-server.
// It implements pipeline.Hook.
type Reporter struct {
	endpoint string
	client   *http.Client
	policy   retry.Policy
	exec     *retry.Executor
}

// New builds a Reporter for cfg. policy bounds the upload retries.
func New(cfg config.ReportConfig, policy retry.Policy) (*Reporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("reporter: endpoint is required")
	}
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("reporter: build http client: %w", err)
	}
	return &Reporter{
		endpoint: cfg.Endpoint,
		client:   client,
		policy:   policy,
		exec:     &retry.Executor{},
	}, nil
}

func (r *Reporter) Name() string { return "reporter" }

// Timeout is the budget of one AfterRun: every attempt may use the full
// client timeout, and every retry waits at most Backoff plus Jitter.
func (r *Reporter) Timeout() time.Duration {
	n := time.Duration(r.policy.MaxAttempts)
	if n < 1 {
		n = 1
	}
	return n*r.client.Timeout + (n-1)*(r.policy.Backoff+r.policy.Jitter)
}

// AfterRun uploads rep, retrying transient failures. Rejections by the
// server (bad request, auth) are not retried.
func (r *Reporter) AfterRun(ctx context.Context, rep *types.RunReport) error {
	body, err := encode(rep)
	if err != nil {
		return err
	}

	res := r.exec.Run(ctx, "report", r.policy, func(ctx context.Context, _ int) error {
		return r.post(ctx, body)
	})
	if !res.OK() {
		return fmt.Errorf("reporter: upload run %s: %w", rep.RunID, res.Err)
	}
	slog.Info("reporter: run report delivered",
		"endpoint", r.endpoint, "run_id", rep.RunID, "attempts", res.Used())
	return nil
}

func (r *Reporter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case isPermanentStatus(resp.StatusCode):
		return retry.Permanent(fmt.Errorf("server rejected report: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// isPermanentStatus reports 4xx responses that a retry cannot fix.
// Timeouts and rate limiting stay retryable.
func isPermanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

// encode marshals rep as gzip-compressed JSON.
func encode(rep *types.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(rep); err != nil {
		return nil, fmt.Errorf("reporter: encode report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("reporter: compress report: %w", err)
	}
	return buf.Bytes(), nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the report auth and TLS settings.
func buildHTTPClient(cfg config.ReportConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if cfg.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	transport := &authRoundTripper{
		base: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
		auth: cfg.Auth,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}
