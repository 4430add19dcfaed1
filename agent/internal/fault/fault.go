package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the pipeline stage that produced it.
type Kind string

const (
	KindScan         Kind = "scan"
	KindArchive      Kind = "archive"
	KindConnectivity Kind = "connectivity"
	KindDestination  Kind = "destination"
	KindDelivery     Kind = "delivery"
	KindCleanup      Kind = "cleanup"
)

// Action is what the pipeline does when a stage reports an error of a given Kind.
type Action string

const (
	// ActionRetry re-runs the stage through the retry executor.
	ActionRetry Action = "retry"
	// ActionSkipUnit drops the current delivery unit and moves on to the next.
	ActionSkipUnit Action = "skip-unit"
	// ActionAbort ends the run with an aborted disposition.
	ActionAbort Action = "abort"
	// ActionIgnore logs the error and leaves the disposition untouched.
	ActionIgnore Action = "ignore"
)

// policies is the single place that decides how each error kind is handled.
var policies = map[Kind]Action{
	KindScan:         ActionRetry,
	KindArchive:      ActionAbort,
	KindConnectivity: ActionAbort,
	KindDestination:  ActionAbort,
	KindDelivery:     ActionSkipUnit,
	KindCleanup:      ActionIgnore,
}

// PolicyFor returns the Action configured for k.
// Unknown kinds abort, so a new stage cannot silently swallow its errors.
func PolicyFor(k Kind) Action {
	if a, ok := policies[k]; ok {
		return a
	}
	return ActionAbort
}

// Error is a stage failure carrying its Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err as a fault of kind k. It returns nil when err is nil.
func New(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf builds a fault of kind k from a format string.
func Errorf(k Kind, op, format string, args ...any) error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err carries a fault of kind k.
func Is(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
