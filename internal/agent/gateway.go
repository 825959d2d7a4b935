package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/freeeve/parley/internal/model"
)

// The gateway wraps every agent call with a timeout and an exception
// boundary. It is a pure adapter: all bookkeeping (cache writes, fallback
// order synthesis) is the caller's responsibility.

type outcome[T any] struct {
	val T
	err error
}

// callBounded runs fn in its own goroutine and waits at most timeout. A
// panic inside the agent is captured and surfaced as an error; the caller
// is never blocked past the bound even if the agent ignores cancellation.
func callBounded[T any](ctx context.Context, power model.Power, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(cctx)
		ch <- outcome[T]{val: v, err: err}
	}()

	select {
	case <-cctx.Done():
		return zero, &TimeoutError{Power: power, Op: op, Limit: timeout}
	case out := <-ch:
		if out.err != nil {
			return zero, &DecisionError{Power: power, Op: op, Err: out.err}
		}
		return out.val, nil
	}
}

// Decide invokes the agent's order decision under a timeout.
func Decide(ctx context.Context, ag Agent, snap *model.PhaseSnapshot, timeout time.Duration) ([]model.Order, error) {
	return callBounded(ctx, ag.Power(), "decide", timeout, func(cctx context.Context) ([]model.Order, error) {
		return ag.Decide(cctx, snap)
	})
}

// DecideBloc invokes a bloc agent's decision for the given powers under a
// timeout.
func DecideBloc(ctx context.Context, ag BlocAgent, snap *model.PhaseSnapshot, powers []model.Power, timeout time.Duration) (map[model.Power][]model.Order, error) {
	return callBounded(ctx, ag.Power(), "decide_bloc", timeout, func(cctx context.Context) (map[model.Power][]model.Order, error) {
		return ag.DecideBloc(cctx, snap, powers)
	})
}

// Negotiate invokes the agent's message generation under a timeout.
func Negotiate(ctx context.Context, ag Agent, snap *model.PhaseSnapshot, timeout time.Duration) ([]model.Message, error) {
	return callBounded(ctx, ag.Power(), "negotiate", timeout, func(cctx context.Context) ([]model.Message, error) {
		return ag.Negotiate(cctx, snap)
	})
}

// UpdateState invokes the agent's state-update hook under a timeout.
func UpdateState(ctx context.Context, ag Agent, snap *model.PhaseSnapshot, events []model.GameEvent, timeout time.Duration) error {
	_, err := callBounded(ctx, ag.Power(), "update_state", timeout, func(cctx context.Context) (struct{}, error) {
		return struct{}{}, ag.UpdateState(cctx, snap, events)
	})
	return err
}
