// Package cleanup reclaims the transient files a run produced (the archive
// and the run log). It is best-effort, not a rollback: each path is removed
// independently and failures are only logged, never escalated.
package cleanup
