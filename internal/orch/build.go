package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/engine"
	"github.com/freeeve/parley/internal/model"
)

// BuildStrategy asks only the powers with a non-zero build or disband count
// for orders. Everyone else receives an empty order list without any agent
// or cache interaction.
type BuildStrategy struct {
	decider
}

// NewBuildStrategy creates a build strategy.
func NewBuildStrategy(agents map[model.Power]agent.Agent, caches map[model.Power]*agent.DecisionCache, decideTimeout time.Duration) *BuildStrategy {
	return &BuildStrategy{decider: decider{agents: agents, caches: caches, timeout: decideTimeout}}
}

func (s *BuildStrategy) Kind() model.PhaseKind { return model.PhaseBuild }

func (s *BuildStrategy) GetOrders(ctx context.Context, eng engine.Engine, snap *model.PhaseSnapshot, active []model.Power) map[model.Power][]model.Order {
	var actors []model.Power
	for _, p := range active {
		count, err := eng.BuildCount(ctx, p)
		if err != nil {
			log.Warn().Err(err).Str("power", string(p)).Str("phase", snap.Name).
				Msg("BuildCount check failed, skipping power")
			continue
		}
		if count != 0 {
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
