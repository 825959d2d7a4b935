package agent

import (
	"fmt"
	"time"

	"github.com/freeeve/parley/internal/model"
)

// TimeoutError reports that an agent call exceeded its time bound.
type TimeoutError struct {
	Power model.Power
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent %s: %s timed out after %s", e.Power, e.Op, e.Limit)
}

// DecisionError reports that an agent returned malformed or rejected output,
// or failed internally (including a panic in the agent's code).
type DecisionError struct {
	Power model.Power
	Op    string
	Err   error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("agent %s: %s failed: %v", e.Power, e.Op, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }
