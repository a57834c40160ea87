package circuitbreaker

import (
	"sync"
)

// Registry hands out one state machine per protected action, all built from
// the same settings and reporting to the same observers.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	settings  Settings
	observers []Observer
}

func NewRegistry(settings Settings, observers ...Observer) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		settings:  settings,
		observers: observers,
	}
}

func (r *Registry) GetBreaker(name string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	settings := r.settings
	settings.Name = name
	cb = NewCircuitBreaker(settings, r.observers...)
	r.breakers[name] = cb
	return cb
}

func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

func (r *Registry) Stats() map[string]Stats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}
