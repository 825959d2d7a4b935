// Package engine defines the contract the orchestrator consumes from a
// Diplomacy rules engine. The engine owns adjudication and state
// advancement; the orchestrator only reads snapshots and submits orders.
package engine

import (
	"context"

	"github.com/freeeve/parley/internal/model"
)

// PhaseInfo identifies the engine's current phase.
type PhaseInfo struct {
	Name   string
	Kind   model.PhaseKind
	Year   int
	Season model.Season
}

// Engine is the rules-engine collaborator.
type Engine interface {
	CurrentPhase(ctx context.Context) (PhaseInfo, error)
	Powers(ctx context.Context) ([]model.Power, error)
	IsEliminated(ctx context.Context, p model.Power) (bool, error)
	// Snapshot returns a fresh immutable view of the game for the current
	// phase. Implementations must not retain or mutate the returned value.
	Snapshot(ctx context.Context) (*model.PhaseSnapshot, error)
	SetOrders(ctx context.Context, p model.Power, orders []model.Order) error
	// Advance adjudicates the submitted orders and moves to the next phase.
	Advance(ctx context.Context) error
	IsDone(ctx context.Context) (bool, error)
	// MustRetreat reports whether a power has at least one dislodged unit
	// awaiting a retreat order in the current phase.
	MustRetreat(ctx context.Context, p model.Power) (bool, error)
	// BuildCount returns the power's adjustment delta for a build phase:
	// positive for builds owed, negative for disbands owed, zero for none.
	BuildCount(ctx context.Context, p model.Power) (int, error)
	// MarkComplete asks the engine to finish the game early, e.g. when the
	// orchestrator hits a phase or year bound. Best effort.
	MarkComplete(ctx context.Context) error
}

// ResultReporter is implemented by engines that expose per-power
// adjudication results for the phase just resolved. Use a type assertion
// to check.
type ResultReporter interface {
	Results(ctx context.Context, phase string) (map[model.Power][][]string, error)
}
