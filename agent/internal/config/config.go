package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docship/docship/agent/internal/retry"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultMaxSizeBytes  = 10 * 1024 * 1024
	DefaultMaxAttempts   = 20
	DefaultBackoff       = 5 * time.Minute
	DefaultProbeAddress  = "8.8.8.8:53"
	DefaultProbeTimeout  = 2 * time.Second
	DefaultPollInterval  = 5 * time.Minute
	DefaultMaxWait       = time.Hour
	DefaultChannel       = "objectstore"
	DefaultMode          = "archive"
	DefaultRegion        = "us-east-1"
	DefaultMailPort      = 587
	DefaultReportTimeout = 10 * time.Second
)

// DefaultExtensions is the allowed extension set when scan.extensions is empty.
var DefaultExtensions = []string{".docx", ".doc", ".pdf"}

// Config is the top-level agent configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ID identifies this agent in reports sent to docship-server.
	// Defaults to the hostname.
	ID string `yaml:"id"`

	// WorkDir holds the transient archive and run log. Both are removed at
	// the end of every run.
	WorkDir string `yaml:"work_dir"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Scan         ScanConfig         `yaml:"scan"`
	Retry        RetryConfig        `yaml:"retry"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
	Cleanup      CleanupConfig      `yaml:"cleanup"`
	Report       ReportConfig       `yaml:"report"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
}

// SlogLevel maps LogLevel to a slog level. Unknown values fall back to info.
func (a AgentConfig) SlogLevel() slog.Level {
	switch a.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ScanConfig selects which files a run collects.
type ScanConfig struct {
	// Root is the directory tree to walk.
	Root string `yaml:"root"`

	// MaxSizeBytes is the exclusive upper bound on a collected file's size.
	MaxSizeBytes int64 `yaml:"max_size_bytes"`

	// Extensions is the allowed extension set, compared case-insensitively.
	Extensions []string `yaml:"extensions"`

	// Strict aborts the run when every scan attempt failed. When false the
	// run continues with an empty result and is flagged as degraded.
	Strict bool `yaml:"strict"`
}

// RetryConfig holds one policy per retried stage. Stages left empty inherit
// Default.
type RetryConfig struct {
	Default  retry.Policy `yaml:"default"`
	Scan     retry.Policy `yaml:"scan"`
	Delivery retry.Policy `yaml:"delivery"`
	Report   retry.Policy `yaml:"report"`
}

// ConnectivityConfig configures the reachability gate in front of delivery.
type ConnectivityConfig struct {
	// Address is the host:port probed with a TCP dial.
	Address string `yaml:"address"`

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// PollInterval is the fixed delay between failed probes.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxWait caps the total wait. Zero waits forever.
	MaxWait time.Duration `yaml:"max_wait"`

	// TLS makes a probe complete a verified TLS handshake instead of a bare
	// TCP connect, so captive portals and intercepting proxies read as
	// unreachable. Address must then be a TLS endpoint such as "1.1.1.1:443".
	TLS bool `yaml:"tls"`
}

// DeliveryConfig selects and configures the delivery channel.
type DeliveryConfig struct {
	// Channel is one of: objectstore | mail.
	Channel string `yaml:"channel"`

	// Mode is one of: archive | files. files uploads every scanned file
	// individually and is only valid for the objectstore channel.
	Mode string `yaml:"mode"`

	// IncludeLog also delivers the run log.
	IncludeLog bool `yaml:"include_log"`

	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
	Mail        MailConfig        `yaml:"mail"`
}

// ObjectStoreConfig configures an S3-compatible destination.
type ObjectStoreConfig struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
	UseSSL bool   `yaml:"use_ssl"`

	// CreateBucket creates the bucket when it does not exist. When false a
	// missing bucket aborts the run without retrying.
	CreateBucket bool `yaml:"create_bucket"`

	// AccessKeyEnv and SecretKeyEnv name the environment variables holding
	// the credentials.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`

	// KeyringService is looked up in the OS keyring when an env var is empty.
	KeyringService string `yaml:"keyring_service"`
}

// MailConfig configures SMTP submission.
type MailConfig struct {
	Host string `yaml:"host"`
	// Port 465 uses implicit TLS; any other port requires STARTTLS.
	Port    int    `yaml:"port"`
	Subject string `yaml:"subject"`

	SenderEnv   string `yaml:"sender_env"`
	SecretEnv   string `yaml:"secret_env"`
	ReceiverEnv string `yaml:"receiver_env"`

	KeyringService string `yaml:"keyring_service"`
}

// CleanupConfig controls artifact reclamation.
type CleanupConfig struct {
	// KeepOnFailure leaves the archive on disk when the run did not complete.
	KeepOnFailure bool `yaml:"keep_on_failure"`
}

// ReportConfig controls where the final run report goes.
type ReportConfig struct {
	// Endpoint is the docship-server URL receiving reports, e.g.
	// http://supervisor:8080/api/v1/reports. Empty disables shipping.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one report upload.
	Timeout time.Duration `yaml:"timeout"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`

	// MetricsFile is a Prometheus textfile-collector path. Empty disables it.
	MetricsFile string `yaml:"metrics_file"`
}

// AuthConfig specifies how the agent authenticates to docship-server.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the API key (default x-api-key).
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TLSConfig controls verification of the docship-server certificate.
type TLSConfig struct {
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// ScheduleConfig turns the agent into a long-running process.
type ScheduleConfig struct {
	// Interval between the end of one run and the start of the next.
	// Zero runs once and exits.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single run, cleanup excluded. Zero is unbounded.
	Timeout time.Duration `yaml:"timeout"`
}

// Override adjusts a parsed Config before it is validated, e.g. with values
// from command-line flags.
type Override func(*Config)

// WithRoot replaces agent.scan.root when root is not empty.
func WithRoot(root string) Override {
	return func(c *Config) {
		if root != "" {
			c.Agent.Scan.Root = root
		}
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data, overrides...)
}

// Parse decodes a YAML document, applies defaults and overrides, then
// validates it.
func Parse(data []byte, overrides ...Override) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}

	inheritRetry(&cfg.Agent.Retry)
	if len(cfg.Agent.Scan.Extensions) == 0 {
		cfg.Agent.Scan.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Agent.ID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Agent.ID = host
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			WorkDir:  filepath.Join(os.TempDir(), "docship"),
			LogLevel: "info",
			Scan: ScanConfig{
				MaxSizeBytes: DefaultMaxSizeBytes,
			},
			Retry: RetryConfig{
				Default: retry.Policy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff},
			},
			Connectivity: ConnectivityConfig{
				Address:      DefaultProbeAddress,
				ProbeTimeout: DefaultProbeTimeout,
				PollInterval: DefaultPollInterval,
				MaxWait:      DefaultMaxWait,
			},
			Delivery: DeliveryConfig{
				Channel:    DefaultChannel,
				Mode:       DefaultMode,
				IncludeLog: true,
				ObjectStore: ObjectStoreConfig{
					Region: DefaultRegion,
					UseSSL: true,
				},
				Mail: MailConfig{
					Port:    DefaultMailPort,
					Subject: "docship delivery",
				},
			},
			Report: ReportConfig{
				Timeout: DefaultReportTimeout,
			},
		},
	}
}

// inheritRetry copies the default policy into stage policies left unset.
func inheritRetry(r *RetryConfig) {
	for _, p := range []*retry.Policy{&r.Scan, &r.Delivery, &r.Report} {
		if p.MaxAttempts == 0 && p.Backoff == 0 && p.Jitter == 0 {
			*p = r.Default
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.Scan.Root == "" {
		return fmt.Errorf("agent.scan.root is required")
	}
	if a.Scan.MaxSizeBytes <= 0 {
		return fmt.Errorf("agent.scan.max_size_bytes must be positive")
	}
	if a.WorkDir == "" {
		return fmt.Errorf("agent.work_dir is required")
	}
	switch a.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level %q unknown: want debug|info|warn|error", a.LogLevel)
	}

	policies := map[string]retry.Policy{
		"default":  a.Retry.Default,
		"scan":     a.Retry.Scan,
		"delivery": a.Retry.Delivery,
		"report":   a.Retry.Report,
	}
	for name, p := range policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("agent.retry.%s: %w", name, err)
		}
	}

	if a.Connectivity.Address == "" {
		return fmt.Errorf("agent.connectivity.address is required")
	}
	if a.Connectivity.ProbeTimeout <= 0 {
		return fmt.Errorf("agent.connectivity.probe_timeout must be positive")
	}
	if a.Connectivity.PollInterval <= 0 {
		return fmt.Errorf("agent.connectivity.poll_interval must be positive")
	}
	if a.Connectivity.MaxWait < 0 {
		return fmt.Errorf("agent.connectivity.max_wait must not be negative")
	}

	switch a.Delivery.Mode {
	case "archive", "files":
	default:
		return fmt.Errorf("agent.delivery.mode %q unknown: want archive|files", a.Delivery.Mode)
	}
	switch a.Delivery.Channel {
	case "objectstore":
		if a.Delivery.ObjectStore.Endpoint == "" {
			return fmt.Errorf("agent.delivery.objectstore.endpoint is required")
		}
		if a.Delivery.ObjectStore.Bucket == "" {
			return fmt.Errorf("agent.delivery.objectstore.bucket is required")
		}
	case "mail":
		if a.Delivery.Mode != "archive" {
			return fmt.Errorf("agent.delivery.mode %q is not supported by the mail channel", a.Delivery.Mode)
		}
		if a.Delivery.Mail.Host == "" {
			return fmt.Errorf("agent.delivery.mail.host is required")
		}
		if a.Delivery.Mail.Port <= 0 || a.Delivery.Mail.Port > 65535 {
			return fmt.Errorf("agent.delivery.mail.port %d is out of range [1, 65535]", a.Delivery.Mail.Port)
		}
	default:
		return fmt.Errorf("agent.delivery.channel %q unknown: want objectstore|mail", a.Delivery.Channel)
	}

	switch a.Report.Auth.Mode {
	case "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("agent.report.auth.mode %q unknown: want apikey|bearer|none", a.Report.Auth.Mode)
	}
	if a.Report.Timeout <= 0 {
		return fmt.Errorf("agent.report.timeout must be positive")
	}
	if a.Schedule.Interval < 0 || a.Schedule.Timeout < 0 {
		return fmt.Errorf("agent.schedule durations must not be negative")
	}
	return nil
}
