package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/model"
)

// RoundRunner executes the configured number of negotiation rounds during a
// movement phase. Rounds are strictly sequential: no power sees another
// power's round-N messages until round N is fully collected and committed.
type RoundRunner struct {
	rounds  int
	timeout time.Duration
	sink    history.Sink
}

// NewRoundRunner creates a runner. The round count is clamped to at least 1.
func NewRoundRunner(rounds int, timeout time.Duration, sink history.Sink) *RoundRunner {
	if rounds < 1 {
		rounds = 1
	}
	if sink == nil {
		sink = history.NoopSink{}
	}
	return &RoundRunner{rounds: rounds, timeout: timeout, sink: sink}
}

type negotiationResult struct {
	power model.Power
	msgs  []model.Message
	err   error
}

// Run executes all rounds and returns every committed message in commit
// order. If the phase budget expires mid-round, remaining agents in that
// round are treated as failed (zero messages) and whatever succeeded is
// still committed.
func (r *RoundRunner) Run(ctx context.Context, snap *model.PhaseSnapshot, agents map[model.Power]agent.Agent, active []model.Power) []model.Message {
	activeSet := make(map[model.Power]bool, len(active))
	for _, p := range active {
		activeSet[p] = true
	}

	var committed []model.Message
	for round := 1; round <= r.rounds; round++ {
		// Each round sees exactly the messages committed by earlier rounds.
		roundSnap := snap.WithMessages(committed)

		ch := make(chan negotiationResult, len(active))
		for _, p := range active {
			ag, ok := agents[p]
			if !ok {
				ch <- negotiationResult{power: p}
				continue
			}
			go func(p model.Power, ag agent.Agent) {
				msgs, err := agent.Negotiate(ctx, ag, roundSnap, r.timeout)
				ch <- negotiationResult{power: p, msgs: msgs, err: err}
			}(p, ag)
		}

		// Round barrier: collect every power before committing anything.
		var collected []model.Message
		for range active {
			res := <-ch
			if res.err != nil {
				log.Warn().Err(res.err).Str("power", string(res.power)).Int("round", round).
					Msg("Negotiation failed, sending no messages")
				continue
			}
			for _, m := range res.msgs {
				m.Sender = res.power
				if m.Kind == "" {
					if m.Recipient == model.Broadcast {
						m.Kind = model.MessageBroadcast
					} else {
						m.Kind = model.MessagePrivate
					}
				}
				if m.Recipient != model.Broadcast && !activeSet[m.Recipient] {
					log.Warn().Str("power", string(res.power)).Str("recipient", string(m.Recipient)).
						Int("round", round).Msg("Dropping message to invalid recipient")
					continue
				}
				collected = append(collected, m)
			}
		}

		// Commit the round before the next one starts.
		for _, m := range collected {
			if err := r.sink.AddMessage(ctx, snap.Name, m.Sender, m.Recipient, m.Body); err != nil {
				log.Warn().Err(err).Str("phase", snap.Name).Msg("Failed to persist message")
			}
		}
		committed = append(committed, collected...)

		log.Debug().Str("phase", snap.Name).Int("round", round).
			Int("messages", len(collected)).Msg("Negotiation round committed")
	}

	return committed
}
