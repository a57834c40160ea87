package circuitbreaker

import (
	"context"
	"fmt"
)

// Action is the single-argument operation a Breaker protects.
type Action[I, O any] func(ctx context.Context, in I) (O, error)

// Breaker binds an Action to a CircuitBreaker.
type Breaker[I, O any] struct {
	*CircuitBreaker
	action Action[I, O]
}

// New creates a breaker with its own state machine.
func New[I, O any](action Action[I, O], settings Settings, observers ...Observer) *Breaker[I, O] {
	return Wrap(NewCircuitBreaker(settings, observers...), action)
}

// Wrap binds action to an existing state machine, e.g. one taken from a Registry.
func Wrap[I, O any](cb *CircuitBreaker, action Action[I, O]) *Breaker[I, O] {
	return &Breaker[I, O]{
		CircuitBreaker: cb,
		action:         action,
	}
}

type result[O any] struct {
	out O
	err error
}

// Fire invokes the action if the breaker admits the call.
//
// The action gets a context carrying the CallTimeout deadline. When the
// deadline passes first, Fire returns ErrTimeout and whatever the action
// returns later is dropped.
func (b *Breaker[I, O]) Fire(ctx context.Context, in I) (O, error) {
	var zero O

	generation, err := b.acquire()
	if err != nil {
		return zero, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.settings.CallTimeout)
	defer cancel()

	// buffered so a late action never blocks
	done := make(chan result[O], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[O]{err: fmt.Errorf("circuit breaker action panicked: %v", r)}
			}
		}()
		out, err := b.action(callCtx, in)
		done <- result[O]{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			b.record(generation, outcomeFailure, res.err)
			return zero, res.err
		}
		b.record(generation, outcomeSuccess, nil)
		return res.out, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			b.release(generation)
			return zero, ctx.Err()
		}
		b.record(generation, outcomeTimeout, ErrTimeout)
		return zero, ErrTimeout
	}
}
