// Package receiver implements POST /api/v1/reports, the endpoint that
// accepts RunReport documents from docship-agent instances.
//
// Bodies are JSON, optionally gzip-compressed (Content-Encoding: gzip), and
// capped at MaxBodyBytes both on the wire and after inflation. A report must
// carry agent_id, run_id and a known disposition; otherwise the receiver
// answers 400 so the agent does not retry. Accepted reports go to the live
// store, the SQLite history, the alert engine and the WebSocket hub, and the
// receiver answers 202.
//
// Authentication is enforced upstream by the auth middleware.
package receiver
