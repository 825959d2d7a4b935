package orch

import (
	"context"
	"time"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/engine"
	"github.com/freeeve/parley/internal/model"
)

// MovementStrategy runs negotiation rounds and then collects movement orders
// from every active power.
type MovementStrategy struct {
	decider
	negotiator *RoundRunner
}

// NewMovementStrategy creates a movement strategy.
func NewMovementStrategy(agents map[model.Power]agent.Agent, caches map[model.Power]*agent.DecisionCache, decideTimeout time.Duration, negotiator *RoundRunner) *MovementStrategy {
	return &MovementStrategy{
		decider:    decider{agents: agents, caches: caches, timeout: decideTimeout},
		negotiator: negotiator,
	}
}

func (s *MovementStrategy) Kind() model.PhaseKind { return model.PhaseMovement }

// GetOrders negotiates first, then decides with the full message history
// visible to every agent.
func (s *MovementStrategy) GetOrders(ctx context.Context, _ engine.Engine, snap *model.PhaseSnapshot, active []model.Power) map[model.Power][]model.Order {
	if len(active) == 0 {
		return map[model.Power][]model.Order{}
	}

	msgs := s.negotiator.Run(ctx, snap, s.agents, active)
	decideSnap := snap.WithMessages(msgs)

	return s.collect(ctx, decideSnap, active)
}
