package pipeline

import (
	"context"
	"time"

	"github.com/docship/docship/pkg/types"
)

// hookTimeout bounds a hook that does not declare its own budget.
const hookTimeout = 30 * time.Second

// Hook is invoked once per run, after cleanup, with the final report.
// A hook error is logged and never changes the disposition.
type Hook interface {
	Name() string
	AfterRun(ctx context.Context, rep *types.RunReport) error
}

// Budgeted is implemented by hooks that need more than hookTimeout, such as
// an upload with its own retry policy. Timeout returns the full budget.
type Budgeted interface {
	Timeout() time.Duration
}

// HookFunc adapts a function to the Hook interface.
type HookFunc struct {
	HookName string
	Fn       func(ctx context.Context, rep *types.RunReport) error
}

func (h HookFunc) Name() string { return h.HookName }

func (h HookFunc) AfterRun(ctx context.Context, rep *types.RunReport) error {
	return h.Fn(ctx, rep)
}

// budgetOf returns the deadline a hook runs under.
func budgetOf(h Hook) time.Duration {
	if b, ok := h.(Budgeted); ok {
		if d := b.Timeout(); d > 0 {
			return d
		}
	}
	return hookTimeout
}
