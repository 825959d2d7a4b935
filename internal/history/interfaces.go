// Package history defines the append-only sink the orchestrator writes the
// game record to: phases, negotiation messages, submitted orders, and
// adjudication results.
package history

import (
	"context"
	"errors"

	"github.com/freeeve/parley/internal/model"
)

// Sink receives the game record as it is produced. Implementations must
// treat every call as append-only; the orchestrator never rewrites history.
type Sink interface {
	AddPhase(ctx context.Context, name string) error
	AddMessage(ctx context.Context, phase string, sender, recipient model.Power, content string) error
	AddOrders(ctx context.Context, phase string, power model.Power, orders []string) error
	AddResults(ctx context.Context, phase string, power model.Power, results [][]string) error
}

// NoopSink discards everything. Used in tests and when no persistence is
// configured.
type NoopSink struct{}

func (NoopSink) AddPhase(context.Context, string) error { return nil }
func (NoopSink) AddMessage(context.Context, string, model.Power, model.Power, string) error {
	return nil
}
func (NoopSink) AddOrders(context.Context, string, model.Power, []string) error { return nil }
func (NoopSink) AddResults(context.Context, string, model.Power, [][]string) error {
	return nil
}

// MultiSink fans every record out to several sinks.
type MultiSink []Sink

func (m MultiSink) AddPhase(ctx context.Context, name string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddPhase(ctx, name))
	}
	return errors.Join(errs...)
}

func (m MultiSink) AddMessage(ctx context.Context, phase string, sender, recipient model.Power, content string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddMessage(ctx, phase, sender, recipient, content))
	}
	return errors.Join(errs...)
}

func (m MultiSink) AddOrders(ctx context.Context, phase string, power model.Power, orders []string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddOrders(ctx, phase, power, orders))
	}
	return errors.Join(errs...)
}

func (m MultiSink) AddResults(ctx context.Context, phase string, power model.Power, results [][]string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddResults(ctx, phase, power, results))
	}
	return errors.Join(errs...)
}
