// Package api implements the read-only HTTP REST API for docship-server.
//
// New(store, opts) returns an http.Handler that serves:
//
//	GET /api/v1/health          : fleet state and per-disposition counts
//	GET /api/v1/agents          : latest run summary of every live agent
//	GET /api/v1/agents/{id}     : one agent's full latest report; 404 if unknown or stale
//	GET /api/v1/runs            : recent runs, newest first (?agent=<id>&limit=<n>)
//	GET /api/v1/history/agents  : per-agent run counts from the history; 404 when disabled
//	GET /api/v1/alerts          : firing and recently resolved alerts
//	GET /api/v1/snapshot        : health plus all live agents + generated_at
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//   - Read live entries from the store (stale entries excluded from lists)
//
// /api/v1/runs reads the SQLite history when one is configured and falls
// back to the latest report per agent otherwise. JSON types are defined in
// types.go. No external HTTP framework is used.
package api
