package netgate

import (
	"crypto/tls"
	"log/slog"
	"math"
	"net"
	"time"
)

// certWarnDays is how close to expiry a probed certificate must be before
// the gate logs a warning.
const certWarnDays = 14

// Option customises a Gate.
type Option func(*Gate)

// WithTLS makes every probe complete a verified TLS handshake with the
// probed host. A captive portal answers the TCP connect but cannot present
// a valid certificate for the address, so it reads as unreachable.
func WithTLS(cfg *tls.Config) Option {
	return func(g *Gate) {
		if cfg == nil {
			cfg = &tls.Config{}
		}
		cfg = cfg.Clone()
		if cfg.ServerName == "" {
			if host, _, err := net.SplitHostPort(g.address); err == nil {
				cfg.ServerName = host
			}
		}
		d := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
		g.dial = d.DialContext
		g.tls = true
	}
}

// inspect logs the leaf certificate of a TLS probe when it is close to
// expiry. Non-TLS connections are ignored.
func (g *Gate) inspect(conn net.Conn, now time.Time) {
	tc, ok := conn.(*tls.Conn)
	if !ok {
		return
	}
	certs := tc.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return
	}
	leaf := certs[0]
	daysLeft := math.Floor(leaf.NotAfter.Sub(now).Hours() / 24)
	if daysLeft <= certWarnDays {
		slog.Warn("netgate: probe certificate expiring",
			"address", g.address,
			"issuer", leaf.Issuer.CommonName,
			"not_after", leaf.NotAfter.UTC().Format(time.RFC3339),
			"days_left", daysLeft,
		)
	}
}
