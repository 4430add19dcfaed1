// Package fault defines the error taxonomy shared by every pipeline stage and
// the table that maps each error kind to a handling policy.
//
//	scan         → retry (then degrade or abort, depending on scan.strict)
//	archive      → abort
//	connectivity → abort
//	destination  → abort (never retried)
//	delivery     → skip-unit
//	cleanup      → ignore
//
// Stages return *Error values; the pipeline reads the Kind with KindOf and
// looks the action up with PolicyFor instead of deciding ad hoc.
package fault
