package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/engine"
	"github.com/freeeve/parley/internal/model"
)

// Strategy decides which powers must act during a phase and collects their
// orders. GetOrders never fails: every internal error becomes an empty or
// fallback order list for the affected power plus a log record.
type Strategy interface {
	Kind() model.PhaseKind
	GetOrders(ctx context.Context, eng engine.Engine, snap *model.PhaseSnapshot, active []model.Power) map[model.Power][]model.Order
}

// decider holds the order-collection machinery shared by all phase
// strategies: agent lookup, bloc memoization, and the fallback policy.
type decider struct {
	agents  map[model.Power]agent.Agent
	caches  map[model.Power]*agent.DecisionCache
	timeout time.Duration
}

// collect gathers orders for the given actors. Bloc agents are detected once
// per pass and invoked at most once per distinct fingerprint; single-power
// agents are invoked directly. Any decision failure yields the fallback
// hold-set for the affected power.
func (d *decider) collect(ctx context.Context, snap *model.PhaseSnapshot, actors []model.Power) map[model.Power][]model.Order {
	orders := make(map[model.Power][]model.Order, len(actors))
	handled := make(map[model.Power]bool, len(actors))

	for _, p := range actors {
		if handled[p] {
			continue
		}
		ag, ok := d.agents[p]
		if !ok {
			// A power with no agent submits no orders; not a failure.
			log.Warn().Str("power", string(p)).Str("phase", snap.Name).Msg("No agent for power, skipping")
			handled[p] = true
			continue
		}

		if bloc, ok := ag.(agent.BlocAgent); ok && len(bloc.ControlledPowers()) >= 2 {
			scoped := intersect(bloc.ControlledPowers(), actors)
			d.collectBloc(ctx, snap, bloc, scoped, orders)
			for _, sp := range scoped {
				handled[sp] = true
			}
			continue
		}

		res, err := agent.Decide(ctx, ag, snap, d.timeout)
		if err != nil {
			log.Warn().Err(err).Str("power", string(p)).Str("phase", snap.Name).
				Msg("Decision failed, using fallback holds")
			orders[p] = fallbackHolds(snap, p)
		} else {
			orders[p] = res
		}
		handled[p] = true
	}

	return orders
}

// collectBloc reads the bloc decision through the agent's cache, invoking
// the underlying decision at most once per distinct fingerprint. A failed
// decision is negative-cached for the attempted fingerprint so the broken
// agent is not retried within the same phase.
func (d *decider) collectBloc(ctx context.Context, snap *model.PhaseSnapshot, bloc agent.BlocAgent, scoped []model.Power, orders map[model.Power][]model.Order) {
	cache := d.caches[bloc.Power()]
	if cache == nil {
		cache = agent.NewDecisionCache()
		d.caches[bloc.Power()] = cache
	}

	fp := agent.ComputeFingerprint(snap, scoped)
	value, hit := cache.Get(fp)
	if !hit {
		var err error
		value, err = agent.DecideBloc(ctx, bloc, snap, scoped, d.timeout)
		if err != nil {
			log.Warn().Err(err).Str("bloc", string(bloc.Power())).Str("phase", snap.Name).
				Msg("Bloc decision failed, using fallback holds")
			cache.PutFailure(fp)
			value = nil
		} else {
			cache.Put(fp, value)
		}
	}

	for _, sp := range scoped {
		if v, ok := value[sp]; ok {
			orders[sp] = v
		} else {
			orders[sp] = fallbackHolds(snap, sp)
		}
	}
}

// fallbackHolds synthesizes one hold order per known unit of the power, so
// the phase can always proceed.
func fallbackHolds(snap *model.PhaseSnapshot, p model.Power) []model.Order {
	units := snap.UnitsOf(p)
	orders := make([]model.Order, 0, len(units))
	for _, u := range units {
		orders = append(orders, model.HoldOrder(u))
	}
	return orders
}

// intersect returns the members of controlled that are also in actors,
// preserving controlled's ordering.
func intersect(controlled, actors []model.Power) []model.Power {
	in := make(map[model.Power]bool, len(actors))
	for _, p := range actors {
		in[p] = true
	}
	var out []model.Power
	for _, p := range controlled {
		if in[p] {
			out = append(out, p)
		}
	}
	return out
}
