package orch

import (
	"testing"

	"github.com/freeeve/parley/internal/model"
)

func TestDeriveEventsNoChanges(t *testing.T) {
	pre := movementSnap("S1901M", 1901, model.Spring)
	post := movementSnap("F1901M", 1901, model.Fall)
	// Same units and centers, only the phase identity moved.
	events := DeriveEvents(pre, post)
	if len(events) != 0 {
		t.Errorf("expected no events for unchanged state, got %v", events)
	}
}

func TestDeriveEventsCenterChangesHands(t *testing.T) {
	pre := movementSnap("F1901M", 1901, model.Fall)
	post := movementSnap("W1901B", 1901, model.Winter)
	// GERMANY takes MAR from FRANCE.
	post.Centers["FRANCE"] = []string{"PAR"}
	post.Centers["GERMANY"] = []string{"BER", "MUN", "MAR"}

	events := DeriveEvents(pre, post)

	var lost, gained *model.GameEvent
	for i := range events {
		switch events[i].Kind {
		case model.EventCenterLost:
			lost = &events[i]
		case model.EventCenterGained:
			gained = &events[i]
		}
	}
	if lost == nil || gained == nil {
		t.Fatalf("expected a lost and a gained event, got %v", events)
	}
	if lost.Participants["country"] != "FRANCE" || lost.Participants["new_owner"] != "GERMANY" {
		t.Errorf("center_lost participants: %v", lost.Participants)
	}
	if lost.Details["center"] != "MAR" {
		t.Errorf("center_lost details: %v", lost.Details)
	}
	if gained.Participants["country"] != "GERMANY" || gained.Details["center"] != "MAR" {
		t.Errorf("center_gained: %+v", gained)
	}
	if lost.Phase != "F1901M" {
		t.Errorf("events must carry the pre-phase name, got %s", lost.Phase)
	}
}

func TestDeriveEventsCenterAbandoned(t *testing.T) {
	pre := movementSnap("F1901M", 1901, model.Fall)
	post := movementSnap("W1901B", 1901, model.Winter)
	post.Centers["ITALY"] = nil

	events := DeriveEvents(pre, post)
	if len(events) != 1 || events[0].Kind != model.EventCenterLost {
		t.Fatalf("expected one center_lost, got %v", events)
	}
	if events[0].Details["new_owner"] != "none" {
		t.Errorf("unowned center should record new_owner=none: %v", events[0].Details)
	}
}

func TestDeriveEventsUnits(t *testing.T) {
	pre := movementSnap("F1901M", 1901, model.Fall)
	post := movementSnap("W1901B", 1901, model.Winter)
	// FRANCE loses A MAR, GERMANY builds F KIE.
	post.Units["FRANCE"] = []string{"A PAR"}
	post.Units["GERMANY"] = []string{"A BER", "A MUN", "F KIE"}

	events := DeriveEvents(pre, post)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
	counts := map[model.EventKind]int{}
	for _, e := range events {
		counts[e.Kind]++
	}
	if counts[model.EventUnitLost] != 1 || counts[model.EventUnitBuilt] != 1 {
		t.Errorf("event mix: %v", counts)
	}
}

func TestDeriveEventsElimination(t *testing.T) {
	pre := movementSnap("F1903M", 1903, model.Fall)
	post := movementSnap("W1903B", 1903, model.Winter)
	post.Units["ITALY"] = nil
	post.Centers["ITALY"] = nil
	post.Eliminated = map[model.Power]bool{"ITALY": true}

	events := DeriveEvents(pre, post)
	var eliminated bool
	for _, e := range events {
		if e.Kind == model.EventPowerEliminated && e.Participants["country"] == "ITALY" {
			eliminated = true
		}
	}
	if !eliminated {
		t.Errorf("missing power_eliminated event: %v", events)
	}
}

func TestDeriveEventsMissingSnapshot(t *testing.T) {
	pre := movementSnap("S1901M", 1901, model.Spring)
	events := DeriveEvents(pre, nil)
	if len(events) != 1 || events[0].Kind != model.EventPhaseError {
		t.Fatalf("expected a single phase_error, got %v", events)
	}
	if events[0].Phase != "S1901M" {
		t.Errorf("phase_error should carry the phase: %+v", events[0])
	}
}

func TestEventLogForPower(t *testing.T) {
	l := NewEventLog()
	l.Append(
		model.GameEvent{Kind: model.EventCenterGained, Phase: "F1901M", Participants: map[string]model.Power{"country": "FRANCE"}},
		model.GameEvent{Kind: model.EventCenterLost, Phase: "F1901M", Participants: map[string]model.Power{"country": "GERMANY", "new_owner": "FRANCE"}},
		model.GameEvent{Kind: model.EventUnitBuilt, Phase: "W1901B", Participants: map[string]model.Power{"country": "FRANCE"}},
	)

	all := l.ForPower("FRANCE", "")
	if len(all) != 3 {
		t.Errorf("FRANCE concerns 3 events (including as new_owner), got %d", len(all))
	}
	phase := l.ForPower("FRANCE", "F1901M")
	if len(phase) != 2 {
		t.Errorf("phase-filtered: got %d, want 2", len(phase))
	}
	if got := l.ForPower("ITALY", ""); len(got) != 0 {
		t.Errorf("ITALY should have no events, got %v", got)
	}
}

func TestEventLogAllCopies(t *testing.T) {
	l := NewEventLog()
	l.Append(model.GameEvent{Kind: model.EventUnitLost, Phase: "S1901M"})
	got := l.All()
	got[0].Phase = "mutated"
	if l.All()[0].Phase != "S1901M" {
		t.Errorf("All must return a copy")
	}
}
