package pipeline

import "github.com/docship/docship/pkg/types"

// Outcome holds the facts a run's disposition is derived from.
type Outcome struct {
	// Aborted is set by any stage whose fault policy is abort: strict scan
	// failure, archive failure, connectivity exhaustion, destination failure.
	Aborted bool

	// ScanDegraded is set when the scan was exhausted in lenient mode.
	ScanDegraded bool

	// Planned and Delivered count delivery units.
	Planned   int
	Delivered int
}

// Classify maps an Outcome to the run's terminal disposition.
//
//	aborted             - a stage aborted, or every planned unit failed
//	partially_delivered - some units skipped, or the scan was degraded
//	completed           - every planned unit delivered (zero included)
func Classify(o Outcome) types.Disposition {
	switch {
	case o.Aborted:
		return types.DispositionAborted
	case o.Planned > 0 && o.Delivered == 0:
		return types.DispositionAborted
	case o.Delivered < o.Planned, o.ScanDegraded:
		return types.DispositionPartiallyDelivered
	default:
		return types.DispositionCompleted
	}
}
