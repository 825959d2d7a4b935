package agent

import (
	"context"
	"strings"

	"github.com/freeeve/parley/internal/model"
)

// Baseline agents for smoke games and tests. They never negotiate and keep
// no state, so UpdateState is a no-op.

// HoldAgent holds every unit during movement and submits nothing for retreat
// and build phases, letting the engine apply its defaults (disband and
// waive).
type HoldAgent struct {
	power model.Power
}

// NewHoldAgent creates a HoldAgent for the given power.
func NewHoldAgent(power model.Power) *HoldAgent {
	return &HoldAgent{power: power}
}

func (a *HoldAgent) Power() model.Power { return a.power }

func (a *HoldAgent) Decide(_ context.Context, snap *model.PhaseSnapshot) ([]model.Order, error) {
	if snap.Kind != model.PhaseMovement {
		return nil, nil
	}
	var orders []model.Order
	for _, u := range snap.UnitsOf(a.power) {
		orders = append(orders, model.HoldOrder(u))
	}
	return orders, nil
}

func (a *HoldAgent) Negotiate(context.Context, *model.PhaseSnapshot) ([]model.Message, error) {
	return nil, nil
}

func (a *HoldAgent) UpdateState(context.Context, *model.PhaseSnapshot, []model.GameEvent) error {
	return nil
}

// RandomAgent picks one random legal order per unit from the snapshot's
// order menu, falling back to hold where the menu offers nothing.
type RandomAgent struct {
	power model.Power
}

// NewRandomAgent creates a RandomAgent for the given power.
func NewRandomAgent(power model.Power) *RandomAgent {
	return &RandomAgent{power: power}
}

func (a *RandomAgent) Power() model.Power { return a.power }

func (a *RandomAgent) Decide(_ context.Context, snap *model.PhaseSnapshot) ([]model.Order, error) {
	menu := snap.OrderMenu[a.power]
	if len(menu) == 0 {
		// No menu from the engine; behave like HoldAgent.
		if snap.Kind != model.PhaseMovement {
			return nil, nil
		}
		var orders []model.Order
		for _, u := range snap.UnitsOf(a.power) {
			orders = append(orders, model.HoldOrder(u))
		}
		return orders, nil
	}

	// Group legal orders by the unit they apply to. Order strings begin
	// with the unit, e.g. "A PAR - BUR" applies to "A PAR".
	byUnit := make(map[string][]model.Order)
	var units []string
	for _, o := range menu {
		u := unitOf(string(o))
		if u == "" {
			continue
		}
		if _, ok := byUnit[u]; !ok {
			units = append(units, u)
		}
		byUnit[u] = append(byUnit[u], o)
	}

	var orders []model.Order
	for _, u := range units {
		opts := byUnit[u]
		orders = append(orders, opts[rngIntn(len(opts))])
	}
	return orders, nil
}

func (a *RandomAgent) Negotiate(context.Context, *model.PhaseSnapshot) ([]model.Message, error) {
	return nil, nil
}

func (a *RandomAgent) UpdateState(context.Context, *model.PhaseSnapshot, []model.GameEvent) error {
	return nil
}

// unitOf extracts the leading "<type> <province>" unit token pair from an
// order string.
func unitOf(order string) string {
	fields := strings.Fields(order)
	if len(fields) < 2 {
		return ""
	}
	return fields[0] + " " + fields[1]
}
