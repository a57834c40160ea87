package circuitbreaker

import "time"

type EventType string

const (
	EventOpen     EventType = "open"
	EventHalfOpen EventType = "halfOpen"
	EventClose    EventType = "close"
	EventFallback EventType = "fallback"
	EventSuccess  EventType = "success"
	EventFailure  EventType = "failure"
	EventTimeout  EventType = "timeout"
)

// Event describes something that happened inside a breaker. For transitions
// From and To differ; for call outcomes and fallbacks both hold the current state.
type Event struct {
	Type      EventType
	Breaker   string
	From      State
	To        State
	Err       error
	Timestamp time.Time
}

// IsTransition reports whether the event is a state change.
func (e Event) IsTransition() bool {
	return e.Type == EventOpen || e.Type == EventHalfOpen || e.Type == EventClose
}

// Observer receives breaker events synchronously, after the breaker lock has
// been released. Observers must not block for long.
type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) {
	f(e)
}

func stateEvent(s State) EventType {
	switch s {
	case StateOpen:
		return EventOpen
	case StateHalfOpen:
		return EventHalfOpen
	default:
		return EventClose
	}
}

func outcomeEvent(o outcome) EventType {
	switch o {
	case outcomeSuccess:
		return EventSuccess
	case outcomeTimeout:
		return EventTimeout
	default:
		return EventFailure
	}
}
