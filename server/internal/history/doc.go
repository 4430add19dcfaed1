// Package history persists every received run report in SQLite so the API
// can serve a per-agent run log beyond the in-memory TTL window.
//
// The schema is managed by goose migrations embedded in the binary; Open
// applies any pending ones. Reports are stored whole as JSON alongside a few
// indexed summary columns.
package history
