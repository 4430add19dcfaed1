// Package auth provides authentication middleware for docship-server.
//
// Middleware(mode, header, secret) wraps an http.Handler and validates either
// an API key carried in the named header (mode "apikey") or a bearer token
// in the Authorization header (mode "bearer"). Secrets are compared in
// constant time.
//
// When the mode is neither, or the secret is empty, every request passes
// through (useful for local development with auth disabled). A missing or
// incorrect credential is answered with 401 before the wrapped handler runs.
package auth
