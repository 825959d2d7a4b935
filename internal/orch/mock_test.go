package orch

import (
	"context"
	"fmt"
	"sync"

	"github.com/freeeve/parley/internal/engine"
	"github.com/freeeve/parley/internal/model"
)

// mockPhase scripts one engine phase: its identity, the snapshot served
// while it is current, and the per-power retreat/build obligations.
type mockPhase struct {
	info     engine.PhaseInfo
	snap     *model.PhaseSnapshot
	retreats map[model.Power]bool
	builds   map[model.Power]int
}

// mockEngine walks a scripted sequence of phases. Advance moves to the next
// phase; after the last one the engine reports done. Error injection fields
// make a method fail for its next N calls.
type mockEngine struct {
	mu     sync.Mutex
	phases []mockPhase
	idx    int

	orders         map[string]map[model.Power][]model.Order
	advances       int
	markedComplete bool

	failCurrentPhase int
	failSnapshot     int
	failAdvance      int
	failPowers       int
}

func newMockEngine(phases ...mockPhase) *mockEngine {
	return &mockEngine{
		phases: phases,
		orders: make(map[string]map[model.Power][]model.Order),
	}
}

func (e *mockEngine) current() mockPhase {
	if e.idx >= len(e.phases) {
		return e.phases[len(e.phases)-1]
	}
	return e.phases[e.idx]
}

func (e *mockEngine) CurrentPhase(ctx context.Context) (engine.PhaseInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failCurrentPhase > 0 {
		e.failCurrentPhase--
		return engine.PhaseInfo{}, fmt.Errorf("injected current-phase failure")
	}
	return e.current().info, nil
}

func (e *mockEngine) Powers(ctx context.Context) ([]model.Power, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failPowers > 0 {
		e.failPowers--
		return nil, fmt.Errorf("injected powers failure")
	}
	return append([]model.Power(nil), e.current().snap.Powers...), nil
}

func (e *mockEngine) IsEliminated(ctx context.Context, p model.Power) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current().snap.IsEliminated(p), nil
}

func (e *mockEngine) Snapshot(ctx context.Context) (*model.PhaseSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failSnapshot > 0 {
		e.failSnapshot--
		return nil, fmt.Errorf("injected snapshot failure")
	}
	return e.current().snap, nil
}

func (e *mockEngine) SetOrders(ctx context.Context, p model.Power, orders []model.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	phase := e.current().info.Name
	if e.orders[phase] == nil {
		e.orders[phase] = make(map[model.Power][]model.Order)
	}
	e.orders[phase][p] = append([]model.Order(nil), orders...)
	return nil
}

func (e *mockEngine) Advance(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAdvance > 0 {
		e.failAdvance--
		return fmt.Errorf("injected advance failure")
	}
	e.advances++
	if e.idx < len(e.phases) {
		e.idx++
	}
	return nil
}

func (e *mockEngine) IsDone(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx >= len(e.phases) || e.markedComplete, nil
}

func (e *mockEngine) MustRetreat(ctx context.Context, p model.Power) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current().retreats[p], nil
}

func (e *mockEngine) BuildCount(ctx context.Context, p model.Power) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current().builds[p], nil
}

func (e *mockEngine) MarkComplete(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markedComplete = true
	return nil
}

func (e *mockEngine) ordersFor(phase string, p model.Power) []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders[phase][p]
}

// scriptedAgent records every call and answers from fixed scripts. The
// negotiate script is consumed one entry per round.
type scriptedAgent struct {
	mu    sync.Mutex
	power model.Power

	orders        []model.Order
	decideErr     error
	decideCalls   int
	decideSnaps   []*model.PhaseSnapshot
	negotiateMsgs [][]model.Message
	negotiateErr  error
	negRound      int
	negSnaps      []*model.PhaseSnapshot
	updateEvents   [][]model.GameEvent
	updateErr      error
	blockDecide    chan struct{}
	blockNegotiate chan struct{}
}

func (a *scriptedAgent) Power() model.Power { return a.power }

func (a *scriptedAgent) Decide(ctx context.Context, snap *model.PhaseSnapshot) ([]model.Order, error) {
	if a.blockDecide != nil {
		select {
		case <-a.blockDecide:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decideCalls++
	a.decideSnaps = append(a.decideSnaps, snap)
	if a.decideErr != nil {
		return nil, a.decideErr
	}
	return a.orders, nil
}

func (a *scriptedAgent) Negotiate(ctx context.Context, snap *model.PhaseSnapshot) ([]model.Message, error) {
	if a.blockNegotiate != nil {
		select {
		case <-a.blockNegotiate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.negSnaps = append(a.negSnaps, snap)
	if a.negotiateErr != nil {
		return nil, a.negotiateErr
	}
	if a.negRound >= len(a.negotiateMsgs) {
		return nil, nil
	}
	msgs := a.negotiateMsgs[a.negRound]
	a.negRound++
	return msgs, nil
}

func (a *scriptedAgent) UpdateState(ctx context.Context, snap *model.PhaseSnapshot, events []model.GameEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateEvents = append(a.updateEvents, events)
	return a.updateErr
}

func (a *scriptedAgent) decideCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.decideCalls
}

func (a *scriptedAgent) updates() [][]model.GameEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updateEvents
}

// scriptedBloc drives several powers with one DecideBloc call.
type scriptedBloc struct {
	scriptedAgent
	controlled []model.Power
	blocOrders map[model.Power][]model.Order
	blocErr    error
	blocCalls  int
}

func (a *scriptedBloc) ControlledPowers() []model.Power { return a.controlled }

func (a *scriptedBloc) DecideBloc(ctx context.Context, snap *model.PhaseSnapshot, powers []model.Power) (map[model.Power][]model.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocCalls++
	if a.blocErr != nil {
		return nil, a.blocErr
	}
	return a.blocOrders, nil
}

func (a *scriptedBloc) blocCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blocCalls
}

// recordingSink captures everything the orchestrator persists.
type recordingSink struct {
	mu       sync.Mutex
	phases   []string
	messages []model.Message
	orders   map[string]map[model.Power][]string
	results  map[string]map[model.Power][][]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		orders:  make(map[string]map[model.Power][]string),
		results: make(map[string]map[model.Power][][]string),
	}
}

func (s *recordingSink) AddPhase(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, name)
	return nil
}

func (s *recordingSink) AddMessage(ctx context.Context, phase string, sender, recipient model.Power, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, model.Message{Sender: sender, Recipient: recipient, Body: content})
	return nil
}

func (s *recordingSink) AddOrders(ctx context.Context, phase string, power model.Power, orders []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orders[phase] == nil {
		s.orders[phase] = make(map[model.Power][]string)
	}
	s.orders[phase][power] = append([]string(nil), orders...)
	return nil
}

func (s *recordingSink) AddResults(ctx context.Context, phase string, power model.Power, results [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results[phase] == nil {
		s.results[phase] = make(map[model.Power][][]string)
	}
	s.results[phase][power] = results
	return nil
}

func (s *recordingSink) allMessages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

// snapshot helpers shared across the package tests.

func movementSnap(name string, year int, season model.Season) *model.PhaseSnapshot {
	return &model.PhaseSnapshot{
		Name:   name,
		Year:   year,
		Season: season,
		Kind:   model.PhaseMovement,
		Powers: []model.Power{"FRANCE", "GERMANY", "ITALY"},
		Units: map[model.Power][]string{
			"FRANCE":  {"A PAR", "A MAR"},
			"GERMANY": {"A BER", "A MUN"},
			"ITALY":   {"A ROM"},
		},
		Centers: map[model.Power][]string{
			"FRANCE":  {"PAR", "MAR"},
			"GERMANY": {"BER", "MUN"},
			"ITALY":   {"ROM"},
		},
		Eliminated: map[model.Power]bool{},
	}
}

func movementInfo(name string, year int, season model.Season) engine.PhaseInfo {
	return engine.PhaseInfo{Name: name, Kind: model.PhaseMovement, Year: year, Season: season}
}
