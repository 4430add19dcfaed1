// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: id, work_dir, log_level, scan, retry, connectivity,
//     delivery, cleanup, report, schedule
//   - RetryConfig: default policy plus per-stage overrides (scan, delivery,
//     report); unset stages inherit the default
//   - DeliveryConfig: channel (objectstore|mail), mode (archive|files),
//     include_log and the per-channel settings
//   - AuthConfig: mode (apikey|bearer|none), header, key_env, token_env for
//     report shipping
//
// Load(path, overrides...) reads the YAML file, applies defaults (10 MiB threshold,
// .docx/.doc/.pdf, 20 attempts with a fixed 5m backoff, 8.8.8.8:53 probe,
// 1h connectivity ceiling) and flag overrides such as WithRoot, then
// validates required fields and enums.
//
// Secrets never live in the YAML file. It names environment variables
// (*_env); LoadEnv fills the environment from a .env file and
// ResolveCredentials falls back to the OS keyring when a variable is empty.
// A missing credential is reported before any network activity.
//
// Watch(ctx, path, onChange) uses fsnotify to pick up edits in schedule mode.
package config
