package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Policy bounds one retry loop.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// Backoff is the fixed delay between two attempts. It does not grow.
	Backoff time.Duration `yaml:"backoff"`

	// Jitter is the upper bound of a random delay added to Backoff.
	// Zero disables jitter.
	Jitter time.Duration `yaml:"jitter"`
}

// Validate checks that p describes a loop that terminates.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Backoff < 0 {
		return fmt.Errorf("backoff must not be negative")
	}
	if p.Jitter < 0 {
		return fmt.Errorf("jitter must not be negative")
	}
	return nil
}

// Attempt records one invocation of a retried operation.
type Attempt struct {
	Index      int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result is the terminal outcome of a retry loop.
type Result struct {
	Attempts []Attempt
	// Err is the last observed error, nil on success.
	Err error
}

// OK reports whether the last attempt succeeded.
func (r Result) OK() bool { return r.Err == nil && len(r.Attempts) > 0 }

// Used returns the number of invocations performed.
func (r Result) Used() int { return len(r.Attempts) }

// permanentError stops the loop without further attempts.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Run returns right after the
// attempt that produced it. The original error stays reachable via errors.As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Executor runs operations under a Policy. The zero value is ready to use and
// sleeps on the wall clock. An Executor holds no per-call state, so one value
// serves the scan, every delivery unit and the report upload.
type Executor struct {
	// Sleep blocks for d or until ctx is done. Injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error

	// Jitter returns a random duration in [0, max). Injectable for tests.
	Jitter func(max time.Duration) time.Duration

	// Now is the clock used to stamp attempts.
	Now func() time.Time
}

// Run invokes op until it succeeds, returns a Permanent error, ctx is done,
// or p.MaxAttempts invocations have been made. It sleeps between attempts,
// never after the last one. Run never panics on op failure and reports
// everything through the returned Result.
func (e *Executor) Run(ctx context.Context, name string, p Policy, op func(ctx context.Context, attempt int) error) Result {
	var res Result
	if err := p.Validate(); err != nil {
		res.Err = fmt.Errorf("retry %s: invalid policy: %w", name, err)
		return res
	}

	for i := 1; i <= p.MaxAttempts; i++ {
		a := Attempt{Index: i, StartedAt: e.now()}
		err := op(ctx, i)
		a.FinishedAt = e.now()
		a.Err = err
		res.Attempts = append(res.Attempts, a)
		res.Err = err

		if err == nil {
			if i > 1 {
				slog.Info("retry: succeeded after retries", "op", name, "attempt", i)
			}
			return res
		}

		if IsPermanent(err) {
			slog.Error("retry: permanent failure, not retrying",
				"op", name, "attempt", i, "err", err)
			return res
		}

		if i == p.MaxAttempts {
			slog.Error("retry: attempts exhausted",
				"op", name, "attempts", i, "err", err)
			return res
		}

		wait := p.Backoff
		if p.Jitter > 0 {
			wait += e.jitter(p.Jitter)
		}
		slog.Warn("retry: attempt failed, will retry",
			"op", name,
			"attempt", i,
			"max_attempts", p.MaxAttempts,
			"err", err,
			"retry_in", wait)

		if serr := e.sleep(ctx, wait); serr != nil {
			res.Err = fmt.Errorf("retry %s: interrupted after attempt %d: %w", name, i, serr)
			return res
		}
	}
	return res
}

// Do is the typed form of Run for operations that produce a value.
// The zero value of T is returned when every attempt failed.
func Do[T any](ctx context.Context, e *Executor, name string, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, Result) {
	var out T
	res := e.Run(ctx, name, p, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if !res.OK() {
		var zero T
		return zero, res
	}
	return out, res
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (e *Executor) jitter(max time.Duration) time.Duration {
	if e.Jitter != nil {
		return e.Jitter(max)
	}
	return time.Duration(rand.Int63n(int64(max))) //nolint:gosec // not crypto
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SleepContext blocks for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
