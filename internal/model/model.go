package model

// Power identifies one of the great powers in a game.
type Power string

// Broadcast is the pseudo-recipient for messages addressed to every power.
const Broadcast Power = "ALL"

// PhaseKind classifies a phase by the kind of orders it accepts.
type PhaseKind string

const (
	PhaseMovement PhaseKind = "movement"
	PhaseRetreat  PhaseKind = "retreat"
	PhaseBuild    PhaseKind = "build"
	// PhaseOther covers administrative phases with no orderable powers;
	// the orchestrator advances through them without invoking a strategy.
	PhaseOther PhaseKind = "other"
)

// Season is the in-game season of a phase.
type Season string

const (
	Spring Season = "spring"
	Fall   Season = "fall"
	Winter Season = "winter"
)

// Order is an opaque action string scoped to one unit, e.g. "A PAR - BUR".
// Validation is the rules engine's concern; the orchestrator passes orders
// through unchanged.
type Order string

// HoldOrder synthesizes the fallback order for a unit, used when an agent
// fails to produce a decision.
func HoldOrder(unit string) Order { return Order(unit + " H") }

// MessageKind distinguishes private messages from broadcasts.
type MessageKind string

const (
	MessagePrivate   MessageKind = "private"
	MessageBroadcast MessageKind = "broadcast"
)

// Message is one negotiation message. Append-only once committed to history.
type Message struct {
	Sender    Power       `json:"sender"`
	Recipient Power       `json:"recipient"`
	Body      string      `json:"body"`
	Kind      MessageKind `json:"kind"`
}

// PhaseSnapshot is an immutable view of the game at the start of a phase.
// It is created fresh from the rules engine each phase and shared with
// concurrent agent calls; nothing may mutate it after construction.
type PhaseSnapshot struct {
	Name       string             `json:"name"` // e.g. "S1901M"
	Year       int                `json:"year"`
	Season     Season             `json:"season"`
	Kind       PhaseKind          `json:"kind"`
	Powers     []Power            `json:"powers"`
	Eliminated map[Power]bool     `json:"eliminated,omitempty"`
	Units      map[Power][]string `json:"units"`
	Centers    map[Power][]string `json:"centers"`
	// OrderMenu lists the legal orders per power for this phase, when the
	// engine provides them. Order strings begin with the unit they apply to.
	OrderMenu map[Power][]Order `json:"order_menu,omitempty"`
	// Messages holds the negotiation messages committed before this
	// snapshot was taken (earlier rounds of the current phase included).
	Messages []Message `json:"messages,omitempty"`
	GameOver bool      `json:"game_over"`
}

// UnitsOf returns the units of a power, nil if it has none.
func (s *PhaseSnapshot) UnitsOf(p Power) []string { return s.Units[p] }

// CentersOf returns the supply centers owned by a power.
func (s *PhaseSnapshot) CentersOf(p Power) []string { return s.Centers[p] }

// IsEliminated reports whether a power is out of the game.
func (s *PhaseSnapshot) IsEliminated(p Power) bool { return s.Eliminated[p] }

// WithMessages returns a copy of the snapshot carrying the given message
// history. The receiver is left untouched, so earlier readers never observe
// the newer rounds.
func (s *PhaseSnapshot) WithMessages(msgs []Message) *PhaseSnapshot {
	cp := *s
	cp.Messages = append([]Message(nil), msgs...)
	return &cp
}

// EventKind classifies a derived game event.
type EventKind string

const (
	EventUnitLost        EventKind = "unit_lost"
	EventUnitBuilt       EventKind = "unit_built"
	EventCenterLost      EventKind = "center_lost"
	EventCenterGained    EventKind = "center_gained"
	EventPowerEliminated EventKind = "power_eliminated"
	EventPhaseError      EventKind = "phase_error"
)

// GameEvent records one state change derived from a phase resolution.
// Events are created only by the deriver and never mutated afterwards.
type GameEvent struct {
	Kind         EventKind         `json:"kind"`
	Phase        string            `json:"phase"`
	Participants map[string]Power  `json:"participants,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Concerns reports whether the event involves the given power in any role.
func (e GameEvent) Concerns(p Power) bool {
	for _, v := range e.Participants {
		if v == p {
			return true
		}
	}
	return false
}
