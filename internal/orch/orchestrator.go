// Package orch contains the phase orchestration engine: the state machine
// that walks a game through its phases, fans decision and negotiation calls
// out to per-power agents, and folds results back into shared history.
package orch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/engine"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/model"
)

// TerminationReason explains why a game run ended.
type TerminationReason string

const (
	ReasonNoActivePowers      TerminationReason = "no active powers"
	ReasonBoundReached        TerminationReason = "bound reached"
	ReasonEngineDone          TerminationReason = "engine done"
	ReasonEngineInconsistency TerminationReason = "engine inconsistency"
)

// Config bounds and tunes a game run.
type Config struct {
	RunID             string
	MaxPhases         int // 0 = unbounded
	MaxYear           int // 0 = unbounded
	NegotiationRounds int
	DecideTimeout     time.Duration
	NegotiateTimeout  time.Duration
	UpdateTimeout     time.Duration
}

// LiveMirror publishes the running game to an external observer store.
// Optional; implemented by the Redis live client.
type LiveMirror interface {
	PublishSnapshot(ctx context.Context, snap *model.PhaseSnapshot) error
	PublishEvents(ctx context.Context, phase string, events []model.GameEvent) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBroadcaster attaches an in-process observer for lifecycle events.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.broadcaster = b
		}
	}
}

// WithLiveMirror attaches a live state mirror.
func WithLiveMirror(m LiveMirror) Option {
	return func(o *Orchestrator) { o.live = m }
}

// Orchestrator owns active-power bookkeeping, termination conditions,
// dispatch to the per-phase strategies, order submission, and the post-phase
// fan-out of derived events to agents.
type Orchestrator struct {
	eng         engine.Engine
	agents      map[model.Power]agent.Agent
	strategies  map[model.PhaseKind]Strategy
	events      *EventLog
	sink        history.Sink
	broadcaster Broadcaster
	live        LiveMirror
	cfg         Config

	mu         sync.Mutex
	terminated bool
	reason     TerminationReason

	phaseCount  int
	faultStreak int
}

// New creates an Orchestrator with the standard phase strategies wired in.
// The agents map is owned by the orchestrator after this call.
func New(eng engine.Engine, agents map[model.Power]agent.Agent, sink history.Sink, cfg Config, opts ...Option) *Orchestrator {
	if sink == nil {
		sink = history.NoopSink{}
	}
	if cfg.DecideTimeout <= 0 {
		cfg.DecideTimeout = 45 * time.Second
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = 30 * time.Second
	}
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = 15 * time.Second
	}

	// One cache slot per bloc agent, shared by all strategies; fingerprints
	// carry the phase identity so entries never leak across phases.
	caches := make(map[model.Power]*agent.DecisionCache)
	negotiator := NewRoundRunner(cfg.NegotiationRounds, cfg.NegotiateTimeout, sink)

	o := &Orchestrator{
		eng:    eng,
		agents: agents,
		strategies: map[model.PhaseKind]Strategy{
			model.PhaseMovement: NewMovementStrategy(agents, caches, cfg.DecideTimeout, negotiator),
			model.PhaseRetreat:  NewRetreatStrategy(agents, caches, cfg.DecideTimeout),
			model.PhaseBuild:    NewBuildStrategy(agents, caches, cfg.DecideTimeout),
		},
		events:      NewEventLog(),
		sink:        sink,
		broadcaster: NoopBroadcaster{},
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events returns the run's event log.
func (o *Orchestrator) Events() *EventLog { return o.events }

// RunGameLoop runs a full game with the given engine, agents, and history
// sink, returning the termination reason.
func RunGameLoop(ctx context.Context, eng engine.Engine, agents map[model.Power]agent.Agent, sink history.Sink, cfg Config, opts ...Option) (TerminationReason, error) {
	return New(eng, agents, sink, cfg, opts...).Run(ctx)
}

// Run executes the game loop until a termination condition is reached and
// returns the reason. The terminal state is reached exactly once and is
// final; calling Run again returns the recorded reason immediately.
func (o *Orchestrator) Run(ctx context.Context) (TerminationReason, error) {
	o.mu.Lock()
	if o.terminated {
		reason := o.reason
		o.mu.Unlock()
		return reason, nil
	}
	o.mu.Unlock()

	log.Info().Str("runId", o.cfg.RunID).Int("agents", len(o.agents)).
		Int("maxPhases", o.cfg.MaxPhases).Int("maxYear", o.cfg.MaxYear).
		Msg("Starting game loop")

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		active, err := o.activePowers(ctx)
		if err != nil {
			if o.engineFault(ctx, "", err) {
				return o.terminate("", ReasonEngineInconsistency), nil
			}
			continue
		}
		if len(active) == 0 {
			return o.terminate("", ReasonNoActivePowers), nil
		}

		if o.cfg.MaxPhases > 0 && o.phaseCount >= o.cfg.MaxPhases {
			o.markComplete(ctx)
			return o.terminate("", ReasonBoundReached), nil
		}

		info, err := o.eng.CurrentPhase(ctx)
		if err != nil {
			if o.engineFault(ctx, "", err) {
				return o.terminate("", ReasonEngineInconsistency), nil
			}
			continue
		}

		if o.cfg.MaxYear > 0 && info.Year > o.cfg.MaxYear {
			o.markComplete(ctx)
			return o.terminate(info.Name, ReasonBoundReached), nil
		}

		done, err := o.eng.IsDone(ctx)
		if err != nil {
			if o.engineFault(ctx, info.Name, err) {
				return o.terminate(info.Name, ReasonEngineInconsistency), nil
			}
			continue
		}
		if done {
			return o.terminate(info.Name, ReasonEngineDone), nil
		}

		switch info.Kind {
		case model.PhaseMovement, model.PhaseRetreat, model.PhaseBuild:
			switch o.runPhase(ctx, info, active) {
			case phaseTerminate:
				return o.terminate(info.Name, ReasonEngineInconsistency), nil
			case phaseRecovered:
				continue
			}
		case model.PhaseOther:
			// Administrative phase with no orderable powers; advance through.
			log.Debug().Str("phase", info.Name).Msg("Pass-through phase")
			if err := o.eng.Advance(ctx); err != nil {
				if o.engineFault(ctx, info.Name, err) {
					return o.terminate(info.Name, ReasonEngineInconsistency), nil
				}
				continue
			}
		default:
			if o.engineFault(ctx, info.Name, &EngineInconsistencyError{Phase: info.Name, Err: errUnknownPhaseKind(info.Kind)}) {
				return o.terminate(info.Name, ReasonEngineInconsistency), nil
			}
			continue
		}

		o.phaseCount++
		o.faultStreak = 0
	}
}

type unknownPhaseKindError struct{ kind model.PhaseKind }

func (e *unknownPhaseKindError) Error() string { return "unknown phase kind " + string(e.kind) }

func errUnknownPhaseKind(kind model.PhaseKind) error { return &unknownPhaseKindError{kind: kind} }

// phaseOutcome is the result of running one orderable phase.
type phaseOutcome int

const (
	phaseOK phaseOutcome = iota
	// phaseRecovered means an engine fault occurred but the forced advance
	// succeeded; the loop continues without counting the phase.
	phaseRecovered
	phaseTerminate
)

// runPhase executes one orderable phase end to end: collect orders, submit,
// advance, derive events, fan updates out to agents.
func (o *Orchestrator) runPhase(ctx context.Context, info engine.PhaseInfo, active []model.Power) phaseOutcome {
	pre, err := o.eng.Snapshot(ctx)
	if err != nil {
		if o.engineFault(ctx, info.Name, err) {
			return phaseTerminate
		}
		return phaseRecovered
	}

	if err := o.sink.AddPhase(ctx, info.Name); err != nil {
		log.Warn().Err(err).Str("phase", info.Name).Msg("Failed to persist phase")
	}

	log.Info().Str("phase", info.Name).Int("year", info.Year).
		Str("season", string(info.Season)).Str("kind", string(info.Kind)).
		Int("activePowers", len(active)).Msg("Processing phase")

	strat := o.strategies[info.Kind]
	orders := strat.GetOrders(ctx, o.eng, pre, active)

	// Every decision (or fallback) is in hand before anything is submitted.
	for _, p := range active {
		po, ok := orders[p]
		if !ok {
			continue
		}
		if err := o.eng.SetOrders(ctx, p, po); err != nil {
			log.Warn().Err(err).Str("power", string(p)).Str("phase", info.Name).
				Msg("Order submission rejected")
			continue
		}
		if len(po) > 0 {
			strs := make([]string, len(po))
			for i, ord := range po {
				strs[i] = string(ord)
			}
			if err := o.sink.AddOrders(ctx, info.Name, p, strs); err != nil {
				log.Warn().Err(err).Str("power", string(p)).Msg("Failed to persist orders")
			}
		}
	}

	if err := o.eng.Advance(ctx); err != nil {
		if o.engineFault(ctx, info.Name, err) {
			return phaseTerminate
		}
		return phaseRecovered
	}

	post, err := o.eng.Snapshot(ctx)
	if err != nil {
		// Event derivation degrades; the loop itself continues.
		log.Warn().Err(err).Str("phase", info.Name).Msg("Post-phase snapshot unavailable")
		post = nil
	}

	o.recordResults(ctx, info.Name)

	events := DeriveEvents(pre, post)
	o.events.Append(events...)

	o.broadcaster.BroadcastGameEvent(o.cfg.RunID, "phase_resolved", map[string]any{
		"phase":  info.Name,
		"year":   info.Year,
		"season": string(info.Season),
		"kind":   string(info.Kind),
		"events": len(events),
	})

	if o.live != nil && post != nil {
		if err := o.live.PublishSnapshot(ctx, post); err != nil {
			log.Warn().Err(err).Msg("Live snapshot publish failed")
		}
		if err := o.live.PublishEvents(ctx, info.Name, events); err != nil {
			log.Warn().Err(err).Msg("Live events publish failed")
		}
	}

	o.updateAgents(ctx, post, events, active)
	return phaseOK
}

// engineFault counts an engine inconsistency and attempts the single forced
// advance the failure model allows. Returns true when the run must
// terminate.
func (o *Orchestrator) engineFault(ctx context.Context, phase string, cause error) bool {
	incErr := cause
	if _, ok := cause.(*EngineInconsistencyError); !ok {
		incErr = &EngineInconsistencyError{Phase: phase, Err: cause}
	}
	o.faultStreak++
	log.Error().Err(incErr).Int("streak", o.faultStreak).Msg("Engine inconsistency")

	if o.faultStreak >= 2 {
		return true
	}
	if err := o.eng.Advance(ctx); err != nil {
		log.Error().Err(err).Str("phase", phase).Msg("Forced advance failed")
		o.faultStreak++
		return true
	}
	log.Info().Str("phase", phase).Msg("Forced advance succeeded")
	return false
}

// recordResults persists per-power adjudication results when the engine can
// report them.
func (o *Orchestrator) recordResults(ctx context.Context, phase string) {
	rr, ok := o.eng.(engine.ResultReporter)
	if !ok {
		return
	}
	results, err := rr.Results(ctx, phase)
	if err != nil {
		log.Warn().Err(err).Str("phase", phase).Msg("Result report failed")
		return
	}
	for p, r := range results {
		if err := o.sink.AddResults(ctx, phase, p, r); err != nil {
			log.Warn().Err(err).Str("power", string(p)).Msg("Failed to persist results")
		}
	}
}

// updateAgents fans the post-phase state and the relevant event subset out
// to every active agent. A bloc agent is updated once for all its controlled
// powers. Any single agent's failure is logged and does not stop the loop.
func (o *Orchestrator) updateAgents(ctx context.Context, post *model.PhaseSnapshot, events []model.GameEvent, active []model.Power) {
	type updateTarget struct {
		ag     agent.Agent
		powers []model.Power
	}
	targets := make(map[agent.Agent]*updateTarget)
	var order []agent.Agent
	for _, p := range active {
		ag, ok := o.agents[p]
		if !ok {
			continue
		}
		t, ok := targets[ag]
		if !ok {
			t = &updateTarget{ag: ag}
			targets[ag] = t
			order = append(order, ag)
		}
		t.powers = append(t.powers, p)
	}

	var wg sync.WaitGroup
	for _, ag := range order {
		t := targets[ag]
		relevant := relevantEvents(events, t.powers)
		wg.Add(1)
		go func(t *updateTarget, relevant []model.GameEvent) {
			defer wg.Done()
			if err := agent.UpdateState(ctx, t.ag, post, relevant, o.cfg.UpdateTimeout); err != nil {
				log.Warn().Err(err).Str("power", string(t.ag.Power())).
					Msg("Agent state update failed")
			}
		}(t, relevant)
	}
	wg.Wait()
}

// relevantEvents filters the phase's events down to those involving any of
// the given powers, plus synthetic phase_error events which concern everyone.
func relevantEvents(events []model.GameEvent, powers []model.Power) []model.GameEvent {
	var out []model.GameEvent
	for _, e := range events {
		if e.Kind == model.EventPhaseError {
			out = append(out, e)
			continue
		}
		for _, p := range powers {
			if e.Concerns(p) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// activePowers recomputes the powers that have an assigned agent and are not
// eliminated.
func (o *Orchestrator) activePowers(ctx context.Context) ([]model.Power, error) {
	powers, err := o.eng.Powers(ctx)
	if err != nil {
		return nil, err
	}
	var active []model.Power
	for _, p := range powers {
		if _, ok := o.agents[p]; !ok {
			continue
		}
		eliminated, err := o.eng.IsEliminated(ctx, p)
		if err != nil {
			return nil, err
		}
		if !eliminated {
			active = append(active, p)
		}
	}
	return active, nil
}

// markComplete asks the engine to finish the game when a bound is hit.
func (o *Orchestrator) markComplete(ctx context.Context) {
	if err := o.eng.MarkComplete(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to mark game complete")
	}
}

// terminate records the final state exactly once.
func (o *Orchestrator) terminate(phase string, reason TerminationReason) TerminationReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.terminated {
		return o.reason
	}
	o.terminated = true
	o.reason = reason

	log.Info().Str("runId", o.cfg.RunID).Str("phase", phase).
		Str("reason", string(reason)).Int("phases", o.phaseCount).
		Int("events", len(o.events.All())).Msg("Game loop terminated")

	o.broadcaster.BroadcastGameEvent(o.cfg.RunID, "game_ended", map[string]any{
		"reason": string(reason),
		"phases": o.phaseCount,
	})
	return reason
}
