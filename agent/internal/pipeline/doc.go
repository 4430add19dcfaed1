// Package pipeline drives one delivery run end to end.
//
// Stages run strictly in sequence, each a hard sequence point:
//
//	scan (retried) → archive → connectivity gate → prepare destination
//	→ deliver each unit (retried, exhausted units skipped) → cleanup → hooks
//
// Every stage failure is recorded in the RunReport and handled according to
// fault.PolicyFor. Classify derives the terminal disposition from the run's
// Outcome. Cleanup runs exactly once per run, after the disposition is known,
// including aborted and cancelled runs. Hooks receive the final report on a
// context detached from the run.
package pipeline
