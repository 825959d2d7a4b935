// Package agent defines the contract between the orchestrator and the
// decision-making agents driving each power, plus the gateway, decision
// cache, and fingerprint machinery the phase strategies rely on.
package agent

import (
	"context"

	"github.com/freeeve/parley/internal/model"
)

// Agent produces decisions for a single power. Implementations may block on
// I/O (an LLM call, a subprocess query); callers bound every invocation with
// the Gateway's timeout.
type Agent interface {
	// Power returns the power this agent acts for.
	Power() model.Power
	// Decide returns the orders the agent wants to submit for the phase
	// described by the snapshot.
	Decide(ctx context.Context, snap *model.PhaseSnapshot) ([]model.Order, error)
	// Negotiate returns the messages the agent wants to send this round.
	Negotiate(ctx context.Context, snap *model.PhaseSnapshot) ([]model.Message, error)
	// UpdateState feeds the post-phase snapshot and the events relevant to
	// this agent back into its internal state.
	UpdateState(ctx context.Context, snap *model.PhaseSnapshot, events []model.GameEvent) error
}

// BlocAgent is implemented by agents that control several powers and decide
// for all of them in one call. Use a type assertion to check.
type BlocAgent interface {
	Agent
	// ControlledPowers lists every power this agent acts for.
	ControlledPowers() []model.Power
	// DecideBloc returns orders for each of the requested powers. The
	// requested set is always a subset of ControlledPowers.
	DecideBloc(ctx context.Context, snap *model.PhaseSnapshot, powers []model.Power) (map[model.Power][]model.Order, error)
}
