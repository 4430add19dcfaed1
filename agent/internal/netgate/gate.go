package netgate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/docship/docship/agent/internal/fault"
	"github.com/docship/docship/agent/internal/retry"
)

// DefaultAddress is a public DNS resolver that answers TCP on port 53.
const DefaultAddress = "8.8.8.8:53"

// Gate probes outbound reachability of one well-known address.
// It keeps no state between probes.
type Gate struct {
	address string
	tls     bool

	// dial opens a connection; injectable for tests.
	dial func(ctx context.Context, network, address string) (net.Conn, error)
	// sleep waits between polls; injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Gate probing address. An empty address uses DefaultAddress.
func New(address string, opts ...Option) *Gate {
	if address == "" {
		address = DefaultAddress
	}
	d := &net.Dialer{}
	g := &Gate{
		address: address,
		dial:    d.DialContext,
		sleep:   retry.SleepContext,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Address returns the probed address.
func (g *Gate) Address() string { return g.address }

// Probe attempts one short-lived TCP connection (or TLS handshake, see
// WithTLS) bounded by timeout. Any dial error or timeout yields false.
func (g *Gate) Probe(ctx context.Context, timeout time.Duration) bool {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := g.dial(dialCtx, "tcp", g.address)
	if err != nil {
		slog.Debug("netgate: probe failed", "address", g.address, "tls", g.tls, "err", err)
		return false
	}
	g.inspect(conn, time.Now())
	conn.Close()
	return true
}

// WaitUntilReachable polls Probe every pollInterval until it succeeds.
// There is no built-in ceiling: only ctx ends the wait, in which case a
// connectivity fault is returned. A nil error always means reachable.
func (g *Gate) WaitUntilReachable(ctx context.Context, pollInterval, probeTimeout time.Duration) error {
	start := time.Now()
	for polls := 1; ; polls++ {
		if g.Probe(ctx, probeTimeout) {
			if polls > 1 {
				slog.Info("netgate: connectivity restored",
					"address", g.address, "polls", polls, "waited", time.Since(start).Round(time.Second))
			}
			return nil
		}
		if polls == 1 {
			slog.Warn("netgate: no connectivity, waiting",
				"address", g.address, "poll_interval", pollInterval)
		}
		if err := g.sleep(ctx, pollInterval); err != nil {
			return fault.New(fault.KindConnectivity, "wait "+g.address, err)
		}
	}
}

// Wait is WaitUntilReachable bounded by maxWait. A zero maxWait keeps the
// unbounded behaviour. Exhaustion returns a connectivity fault wrapping
// ErrUnreachable.
func (g *Gate) Wait(ctx context.Context, pollInterval, probeTimeout, maxWait time.Duration) error {
	if maxWait <= 0 {
		return g.WaitUntilReachable(ctx, pollInterval, probeTimeout)
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	err := g.WaitUntilReachable(waitCtx, pollInterval, probeTimeout)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		slog.Error("netgate: gave up waiting for connectivity",
			"address", g.address, "max_wait", maxWait)
		return fault.New(fault.KindConnectivity, "wait "+g.address, ErrUnreachable)
	}
	return err
}

// ErrUnreachable reports that the bounded connectivity wait was exhausted.
var ErrUnreachable = errors.New("network unreachable within max wait")
