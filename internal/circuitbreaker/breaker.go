package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking calls
	StateHalfOpen              // Testing with one trial call
)

var (
	// ErrOpen is returned without invoking the action while the circuit is open
	// or while a half-open trial is outstanding.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTimeout is returned when the action does not finish within CallTimeout.
	ErrTimeout = errors.New("circuit breaker call timed out")
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeTimeout
)

type sample struct {
	at   time.Time
	kind outcome
}

// CircuitBreaker is the state machine shared by every call made through it.
// All state mutation happens under mutex; the protected action never runs
// while the lock is held.
type CircuitBreaker struct {
	mutex         sync.Mutex
	settings      Settings
	state         State
	generation    uint64
	window        []sample
	openedAt      time.Time
	trialInFlight bool
	fires         uint64
	rejects       uint64
	observers     []Observer
	now           func() time.Time
}

func NewCircuitBreaker(settings Settings, observers ...Observer) *CircuitBreaker {
	return &CircuitBreaker{
		state:     StateClosed,
		settings:  settings.normalize(),
		observers: observers,
		now:       time.Now,
	}
}

// Name returns the name the breaker reports in events and stats.
func (cb *CircuitBreaker) Name() string {
	return cb.settings.Name
}

// Settings returns the effective settings after defaults were applied.
func (cb *CircuitBreaker) Settings() Settings {
	return cb.settings
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// acquire admits or rejects a call. The returned generation must be handed
// back to record so outcomes of calls admitted before a state change are
// ignored.
func (cb *CircuitBreaker) acquire() (uint64, error) {
	cb.mutex.Lock()

	var events []Event
	now := cb.now()
	cb.fires++

	switch cb.state {
	case StateOpen:
		if now.Sub(cb.openedAt) < cb.settings.ResetTimeout {
			events = cb.reject(now, events)
			cb.mutex.Unlock()
			cb.notify(events)
			return 0, ErrOpen
		}
		events = cb.setState(StateHalfOpen, now, nil, events)
		cb.trialInFlight = true
	case StateHalfOpen:
		if cb.trialInFlight {
			events = cb.reject(now, events)
			cb.mutex.Unlock()
			cb.notify(events)
			return 0, ErrOpen
		}
		cb.trialInFlight = true
	}

	generation := cb.generation
	cb.mutex.Unlock()
	cb.notify(events)
	return generation, nil
}

// record applies the outcome of a call admitted in the given generation.
func (cb *CircuitBreaker) record(generation uint64, kind outcome, err error) {
	cb.mutex.Lock()

	if generation != cb.generation {
		cb.mutex.Unlock()
		return
	}

	now := cb.now()
	events := []Event{cb.event(outcomeEvent(kind), now, err)}

	switch cb.state {
	case StateHalfOpen:
		cb.trialInFlight = false
		if kind == outcomeSuccess {
			events = cb.setState(StateClosed, now, nil, events)
		} else {
			events = cb.setState(StateOpen, now, err, events)
		}
	case StateClosed:
		cb.window = append(cb.window, sample{at: now, kind: kind})
		if len(cb.window) > cb.settings.WindowSize {
			cb.window = cb.window[len(cb.window)-cb.settings.WindowSize:]
		}
		if kind != outcomeSuccess && cb.shouldTrip(now) {
			events = cb.setState(StateOpen, now, err, events)
		}
	}

	cb.mutex.Unlock()
	cb.notify(events)
}

// release gives back an admission whose outcome should not count, e.g. when
// the caller's own context was cancelled. A released half-open trial lets the
// next call become the trial.
func (cb *CircuitBreaker) release(generation uint64) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if generation == cb.generation && cb.state == StateHalfOpen {
		cb.trialInFlight = false
	}
}

func (cb *CircuitBreaker) shouldTrip(now time.Time) bool {
	cb.prune(now)

	if len(cb.window) < cb.settings.VolumeThreshold {
		return false
	}

	return failurePercentage(cb.window) >= float64(cb.settings.ErrorThresholdPercentage)
}

// prune drops outcomes that fell out of the rolling time window.
func (cb *CircuitBreaker) prune(now time.Time) {
	if cb.settings.RollingWindow <= 0 {
		return
	}

	cutoff := now.Add(-cb.settings.RollingWindow)
	i := 0
	for i < len(cb.window) && cb.window[i].at.Before(cutoff) {
		i++
	}
	cb.window = cb.window[i:]
}

// setState records a transition; cause is the error of the call that
// triggered it, if any.
func (cb *CircuitBreaker) setState(to State, now time.Time, cause error, events []Event) []Event {
	from := cb.state
	cb.state = to
	cb.generation++

	switch to {
	case StateClosed:
		cb.window = nil
		cb.trialInFlight = false
	case StateOpen:
		cb.openedAt = now
		cb.trialInFlight = false
	}

	ev := cb.event(stateEvent(to), now, cause)
	ev.From = from
	return append(events, ev)
}

func (cb *CircuitBreaker) reject(now time.Time, events []Event) []Event {
	cb.rejects++
	return append(events, cb.event(EventFallback, now, ErrOpen))
}

func (cb *CircuitBreaker) event(t EventType, now time.Time, err error) Event {
	return Event{
		Type:      t,
		Breaker:   cb.settings.Name,
		From:      cb.state,
		To:        cb.state,
		Err:       err,
		Timestamp: now,
	}
}

func (cb *CircuitBreaker) notify(events []Event) {
	for _, ev := range events {
		for _, o := range cb.observers {
			o.Notify(ev)
		}
	}
}

// Stats returns a snapshot of the rolling statistics.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.prune(cb.now())

	stats := Stats{
		State:    cb.state,
		OpenedAt: cb.openedAt,
		Fires:    cb.fires,
		Rejects:  cb.rejects,
	}
	for _, s := range cb.window {
		switch s.kind {
		case outcomeSuccess:
			stats.Successes++
		case outcomeFailure:
			stats.Failures++
		case outcomeTimeout:
			stats.Timeouts++
		}
	}
	stats.FailurePercentage = failurePercentage(cb.window)
	return stats
}

func failurePercentage(window []sample) float64 {
	if len(window) == 0 {
		return 0
	}

	failed := 0
	for _, s := range window {
		if s.kind != outcomeSuccess {
			failed++
		}
	}
	return float64(failed) * 100 / float64(len(window))
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
