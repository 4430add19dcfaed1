// Package ws implements the WebSocket hub for docship-server.
//
// Hub manages a set of connected clients and broadcasts the current fleet
// snapshot to all of them on a configurable interval (default 5s in production).
// Run reports are also pushed the moment the receiver accepts them.
//
// New(store, alerts, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// snapshot immediately on connect, then streams updates.
// Hub.Publish(report) pushes one report to every client.
//
// Message formats sent to clients:
//
//	{"event": "snapshot", "data": { /* same schema as GET /api/v1/snapshot */ }}
//	{"event": "report",   "data": { /* one run report */ }}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The WebSocket endpoint is mounted at /ws/stream by the server.
package ws
