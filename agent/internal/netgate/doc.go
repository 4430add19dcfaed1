// Package netgate gates the delivery stage on outbound network reachability.
//
// Probe dials a fixed well-known address (default 8.8.8.8:53) with a short
// timeout. With WithTLS the probe must also complete a verified TLS
// handshake, and a certificate close to expiry is logged. WaitUntilReachable
// polls at a fixed interval until a probe succeeds; Wait does the same under
// a configurable ceiling and reports a connectivity fault when the ceiling is
// hit. Every sleep honours ctx.
package netgate
