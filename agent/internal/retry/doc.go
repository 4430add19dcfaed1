// Package retry provides the bounded retry executor used by every retried
// stage of the agent: the scan, each delivery unit and the report upload.
//
// Executor.Run(ctx, name, policy, op) calls op up to policy.MaxAttempts times,
// sleeping a fixed policy.Backoff (plus optional additive jitter) between
// attempts and never after the last one. Failures never escape as panics or
// separate error values: the caller receives a Result holding every Attempt
// and the last observed error, and decides whether exhaustion is fatal.
//
// Permanent(err) short-circuits the loop for errors that cannot be fixed by
// waiting (a destination that does not exist). Sleeps honour ctx, so a
// cancelled run stops between attempts instead of finishing its schedule.
package retry
