// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort: port for the report receiver, REST API and WebSocket hub (default 8080)
//   - Auth.Mode: "apikey", "bearer" or "none"
//   - Auth.KeyEnv / Auth.TokenEnv: environment variables holding the expected secret
//   - Auth.Header: HTTP header name carrying the API key (default "x-api-key")
//   - Reports.TTL: how long an agent's latest report stays live (default 7d)
//   - Reports.MaxBodyBytes: decompressed size cap for one report (default 1 MiB)
//   - History.Path: SQLite file for the run history; empty disables it
//   - History.Retention: how long stored runs are kept (0 keeps them forever)
//   - Alerts: rules over run reports plus Slack/Teams/HTTP webhooks
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
