package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/engine"
	"github.com/freeeve/parley/internal/model"
)

// RetreatStrategy asks only the powers with a dislodged unit for orders.
// Everyone else receives an empty order list without any agent or cache
// interaction.
type RetreatStrategy struct {
	decider
}

// NewRetreatStrategy creates a retreat strategy.
func NewRetreatStrategy(agents map[model.Power]agent.Agent, caches map[model.Power]*agent.DecisionCache, decideTimeout time.Duration) *RetreatStrategy {
	return &RetreatStrategy{decider: decider{agents: agents, caches: caches, timeout: decideTimeout}}
}

func (s *RetreatStrategy) Kind() model.PhaseKind { return model.PhaseRetreat }

func (s *RetreatStrategy) GetOrders(ctx context.Context, eng engine.Engine, snap *model.PhaseSnapshot, active []model.Power) map[model.Power][]model.Order {
	var actors []model.Power
	for _, p := range active {
		must, err := eng.MustRetreat(ctx, p)
		if err != nil {
			log.Warn().Err(err).Str("power", string(p)).Str("phase", snap.Name).
				Msg("MustRetreat check failed, skipping power")
			continue
		}
		if must {
			actors = append(actors, p)
		}
	}

	orders := make(map[model.Power][]model.Order, len(active))
	if len(actors) > 0 {
		orders = s.collect(ctx, snap, actors)
	}
	for _, p := range active {
		if _, ok := orders[p]; !ok {
			orders[p] = []model.Order{}
		}
	}
	return orders
}
