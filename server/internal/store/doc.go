// Package store keeps the latest run report of every agent in memory.
// Entries expire when an agent has not reported within the TTL; the
// persistent run history lives in package history.
package store
