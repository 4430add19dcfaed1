package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware returns an http.Handler wrapper that enforces authentication on
// every request.
//
// Behaviour:
//   - mode "apikey": the value of header must equal secret.
//   - mode "bearer": the Authorization header must be "Bearer <secret>".
//   - any other mode, or an empty secret, lets every request through.
//   - A missing, empty or incorrect credential returns 401 Unauthorized.
func Middleware(mode, header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// Unconfigured auth → allow everything.
		if secret == "" || (mode != "apikey" && mode != "bearer") {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var got string
			switch mode {
			case "apikey":
				got = r.Header.Get(header)
			case "bearer":
				if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					got = tok
				}
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				slog.Warn("auth: rejected request",
					"path", r.URL.Path, "remote", r.RemoteAddr, "mode", mode)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
