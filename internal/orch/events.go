package orch

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/model"
)

// DeriveEvents diffs a pre-phase and post-phase snapshot into typed game
// events. Pure with respect to its inputs: no event is emitted for unchanged
// state. A malformed snapshot pair degrades to a single phase_error event
// rather than aborting the game loop.
func DeriveEvents(pre, post *model.PhaseSnapshot) (events []model.GameEvent) {
	phase := ""
	if pre != nil {
		phase = pre.Name
	}

	defer func() {
		if r := recover(); r != nil {
			derr := &DerivationError{Phase: phase, Err: fmt.Errorf("%v", r)}
			log.Warn().Err(derr).Msg("Event derivation failed")
			events = []model.GameEvent{phaseErrorEvent(phase, derr)}
		}
	}()

	if pre == nil || post == nil {
		derr := &DerivationError{Phase: phase, Err: fmt.Errorf("missing snapshot")}
		return []model.GameEvent{phaseErrorEvent(phase, derr)}
	}

	for _, p := range pre.Powers {
		for _, unit := range difference(pre.Units[p], post.Units[p]) {
			events = append(events, model.GameEvent{
				Kind:         model.EventUnitLost,
				Phase:        phase,
				Participants: map[string]model.Power{"country": p},
				Details:      map[string]string{"unit": unit},
			})
		}
		for _, unit := range difference(post.Units[p], pre.Units[p]) {
			events = append(events, model.GameEvent{
				Kind:         model.EventUnitBuilt,
				Phase:        phase,
				Participants: map[string]model.Power{"country": p},
				Details:      map[string]string{"unit": unit},
			})
		}

		for _, center := range difference(pre.Centers[p], post.Centers[p]) {
			ev := model.GameEvent{
				Kind:         model.EventCenterLost,
				Phase:        phase,
				Participants: map[string]model.Power{"country": p},
				Details:      map[string]string{"center": center},
			}
			if owner, ok := centerOwner(post, center); ok {
				ev.Participants["new_owner"] = owner
			} else {
				ev.Details["new_owner"] = "none"
			}
			events = append(events, ev)
		}
		for _, center := range difference(post.Centers[p], pre.Centers[p]) {
			events = append(events, model.GameEvent{
				Kind:         model.EventCenterGained,
				Phase:        phase,
				Participants: map[string]model.Power{"country": p},
				Details:      map[string]string{"center": center},
			})
		}

		if !pre.IsEliminated(p) && post.IsEliminated(p) {
			events = append(events, model.GameEvent{
				Kind:         model.EventPowerEliminated,
				Phase:        phase,
				Participants: map[string]model.Power{"country": p},
			})
		}
	}

	return events
}

func phaseErrorEvent(phase string, err error) model.GameEvent {
	return model.GameEvent{
		Kind:    model.EventPhaseError,
		Phase:   phase,
		Details: map[string]string{"error": err.Error()},
	}
}

// difference returns the elements of a not present in b.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []string
	for _, v := range a {
		if !in[v] {
			out = append(out, v)
		}
	}
	return out
}

// centerOwner finds which power owns a center in the snapshot.
func centerOwner(snap *model.PhaseSnapshot, center string) (model.Power, bool) {
	for _, p := range snap.Powers {
		for _, c := range snap.Centers[p] {
			if c == center {
				return p, true
			}
		}
	}
	return "", false
}

// EventLog is the append-only per-game event record. Single writer (the
// orchestrator), many logical readers.
type EventLog struct {
	mu     sync.RWMutex
	events []model.GameEvent
}

// NewEventLog returns an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append adds events to the log.
func (l *EventLog) Append(events ...model.GameEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
}

// All returns a copy of every event recorded so far.
func (l *EventLog) All() []model.GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.GameEvent(nil), l.events...)
}

// ForPower returns the events involving a power, optionally restricted to
// one phase (empty phase means all phases).
func (l *EventLog) ForPower(p model.Power, phase string) []model.GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.GameEvent
	for _, e := range l.events {
		if phase != "" && e.Phase != phase {
			continue
		}
		if e.Concerns(p) {
			out = append(out, e)
		}
	}
	return out
}
