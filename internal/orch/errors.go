package orch

import "fmt"

// EngineInconsistencyError reports that the rules engine returned an
// unrecognized phase code or failed an engine call. Recovered once by
// forcing an advance; escalates to termination if it recurs immediately.
type EngineInconsistencyError struct {
	Phase string
	Err   error
}

func (e *EngineInconsistencyError) Error() string {
	return fmt.Sprintf("engine inconsistency at %s: %v", e.Phase, e.Err)
}

func (e *EngineInconsistencyError) Unwrap() error { return e.Err }

// DerivationError reports that the event diff could not be computed.
// Degrades to a single synthetic phase_error event, never blocks the loop.
type DerivationError struct {
	Phase string
	Err   error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("event derivation failed at %s: %v", e.Phase, e.Err)
}

func (e *DerivationError) Unwrap() error { return e.Err }
