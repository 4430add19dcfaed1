package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  id: laptop-01
  work_dir: /var/tmp/docship
  scan:
    root: /home/me/Documents
    max_size_bytes: 1048576
    extensions: [".pdf", "DOCX"]
    strict: true
  retry:
    default:
      max_attempts: 5
      backoff: 30s
    delivery:
      max_attempts: 3
      backoff: 1m
      jitter: 5s
  connectivity:
    address: "1.1.1.1:443"
    poll_interval: 10s
    max_wait: 0s
    tls: true
  delivery:
    channel: objectstore
    mode: files
    objectstore:
      endpoint: "s3.example.com"
      bucket: "docs"
      create_bucket: true
      access_key_env: S3_ACCESS
      secret_key_env: S3_SECRET
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.ID != "laptop-01" {
		t.Errorf("id: got %q", a.ID)
	}
	if a.Scan.MaxSizeBytes != 1048576 {
		t.Errorf("max_size_bytes: got %d", a.Scan.MaxSizeBytes)
	}
	if !a.Scan.Strict {
		t.Error("strict: got false, want true")
	}
	if a.Retry.Delivery.MaxAttempts != 3 || a.Retry.Delivery.Backoff != time.Minute || a.Retry.Delivery.Jitter != 5*time.Second {
		t.Errorf("retry.delivery: got %+v", a.Retry.Delivery)
	}
	// Unset stage policies inherit the default.
	if a.Retry.Scan.MaxAttempts != 5 || a.Retry.Scan.Backoff != 30*time.Second {
		t.Errorf("retry.scan: got %+v, want inherited default", a.Retry.Scan)
	}
	if a.Connectivity.MaxWait != 0 {
		t.Errorf("max_wait: got %v, want 0 (unbounded)", a.Connectivity.MaxWait)
	}
	if !a.Connectivity.TLS || a.Connectivity.Address != "1.1.1.1:443" {
		t.Errorf("connectivity: got %+v, want TLS probe of 1.1.1.1:443", a.Connectivity)
	}
	if a.Connectivity.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("probe_timeout: got %v, want default", a.Connectivity.ProbeTimeout)
	}
	if a.Delivery.Mode != "files" || !a.Delivery.ObjectStore.CreateBucket {
		t.Errorf("delivery: got %+v", a.Delivery)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
agent:
  scan:
    root: /srv/share
  delivery:
    objectstore:
      endpoint: "minio:9000"
      bucket: "docs"
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.Scan.MaxSizeBytes != DefaultMaxSizeBytes {
		t.Errorf("default max_size_bytes: got %d, want %d", a.Scan.MaxSizeBytes, DefaultMaxSizeBytes)
	}
	if strings.Join(a.Scan.Extensions, ",") != ".docx,.doc,.pdf" {
		t.Errorf("default extensions: got %v", a.Scan.Extensions)
	}
	if a.Retry.Default.MaxAttempts != DefaultMaxAttempts || a.Retry.Default.Backoff != DefaultBackoff {
		t.Errorf("default retry: got %+v", a.Retry.Default)
	}
	if a.Retry.Delivery != a.Retry.Default {
		t.Errorf("delivery retry: got %+v, want inherited %+v", a.Retry.Delivery, a.Retry.Default)
	}
	if a.Connectivity.Address != DefaultProbeAddress {
		t.Errorf("default address: got %q", a.Connectivity.Address)
	}
	if a.Connectivity.MaxWait != DefaultMaxWait {
		t.Errorf("default max_wait: got %v, want %v", a.Connectivity.MaxWait, DefaultMaxWait)
	}
	if a.Delivery.Channel != DefaultChannel || a.Delivery.Mode != DefaultMode || !a.Delivery.IncludeLog {
		t.Errorf("default delivery: got %+v", a.Delivery)
	}
	if !a.Delivery.ObjectStore.UseSSL {
		t.Error("default use_ssl: got false, want true")
	}
	if a.ID == "" {
		t.Error("id: want hostname fallback, got empty")
	}
}

func TestLoad_MissingRoot(t *testing.T) {
	yaml := `
agent:
  delivery:
    objectstore: {endpoint: "minio:9000", bucket: "docs"}
`
	_, err := loadStringErr(t, yaml)
	if err == nil {
		t.Fatal("expected error for missing scan.root, got nil")
	}
}

func TestLoad_MailRejectsFilesMode(t *testing.T) {
	yaml := `
agent:
  scan: {root: /data}
  delivery:
    channel: mail
    mode: files
    mail: {host: smtp.example.com}
`
	_, err := loadStringErr(t, yaml)
	if err == nil {
		t.Fatal("expected error for mail channel in files mode, got nil")
	}
}

func TestLoad_InvalidRetryPolicy(t *testing.T) {
	yaml := `
agent:
  scan: {root: /data}
  retry:
    scan: {max_attempts: -1}
  delivery:
    objectstore: {endpoint: "minio:9000", bucket: "docs"}
`
	_, err := loadStringErr(t, yaml)
	if err == nil || !strings.Contains(err.Error(), "retry.scan") {
		t.Fatalf("expected retry.scan validation error, got %v", err)
	}
}

func TestLoad_UnknownChannel(t *testing.T) {
	yaml := `
agent:
  scan: {root: /data}
  delivery:
    channel: carrier-pigeon
`
	_, err := loadStringErr(t, yaml)
	if err == nil {
		t.Fatal("expected error for unknown channel, got nil")
	}
}

func TestResolveCredentials_Mail(t *testing.T) {
	t.Setenv("DS_SENDER", "agent@example.com")
	t.Setenv("DS_SECRET", "app-password")
	t.Setenv("DS_RECEIVER", "archive@example.com")

	c, err := ResolveCredentials(DeliveryConfig{
		Channel: "mail",
		Mail:    MailConfig{SenderEnv: "DS_SENDER", SecretEnv: "DS_SECRET", ReceiverEnv: "DS_RECEIVER"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Sender != "agent@example.com" || c.Secret != "app-password" || c.Receiver != "archive@example.com" {
		t.Errorf("credentials: got %+v", c)
	}
}

func TestResolveCredentials_ReportsEveryMissingValue(t *testing.T) {
	t.Setenv("DS_SENDER", "agent@example.com")

	_, err := ResolveCredentials(DeliveryConfig{
		Channel: "mail",
		Mail:    MailConfig{SenderEnv: "DS_SENDER", SecretEnv: "DS_UNSET_SECRET"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"sender secret ($DS_UNSET_SECRET)", "receiver (no env var configured)"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestResolveCredentials_KeyringFallback(t *testing.T) {
	keyring.MockInit()
	if err := keyring.Set("docship", "DS_S3_SECRET", "from-keyring"); err != nil {
		t.Fatalf("keyring.Set: %v", err)
	}
	t.Setenv("DS_S3_ACCESS", "AKIA123")

	c, err := ResolveCredentials(DeliveryConfig{
		Channel: "objectstore",
		ObjectStore: ObjectStoreConfig{
			AccessKeyEnv:   "DS_S3_ACCESS",
			SecretKeyEnv:   "DS_S3_SECRET",
			KeyringService: "docship",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AccessKey != "AKIA123" {
		t.Errorf("access key: got %q", c.AccessKey)
	}
	if c.SecretKey != "from-keyring" {
		t.Errorf("secret key: got %q, want keyring value", c.SecretKey)
	}
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DS_FROM_FILE=file\nDS_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DS_PRESET", "process")
	t.Setenv("DS_FROM_FILE", "")
	os.Unsetenv("DS_FROM_FILE")

	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("DS_FROM_FILE"); got != "file" {
		t.Errorf("DS_FROM_FILE: got %q, want file", got)
	}
	if got := os.Getenv("DS_PRESET"); got != "process" {
		t.Errorf("DS_PRESET: got %q, want process (not overridden)", got)
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
	if got := a.EffectiveHeader(); got != "x-api-key" {
		t.Errorf("EffectiveHeader(): got %q, want x-api-key", got)
	}
}

func TestAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestLoad_WithRootOverride(t *testing.T) {
	yaml := `
agent:
  delivery:
    objectstore: {endpoint: "minio:9000", bucket: "docs"}
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, WithRoot("/mnt/share"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Scan.Root != "/mnt/share" {
		t.Errorf("root: got %q, want /mnt/share", cfg.Agent.Scan.Root)
	}
}

func TestAgentConfig_SlogLevel(t *testing.T) {
	if got := (AgentConfig{LogLevel: "debug"}).SlogLevel(); got.String() != "DEBUG" {
		t.Errorf("debug: got %v", got)
	}
	if got := (AgentConfig{LogLevel: "bogus"}).SlogLevel(); got.String() != "INFO" {
		t.Errorf("fallback: got %v, want INFO", got)
	}
}
