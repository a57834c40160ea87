// Package circuitbreaker implements the circuit breaker that guards calls to
// the origin.
//
// A breaker tracks the outcomes of recent calls in a rolling window and has
// three states:
//
//   - CLOSED: Normal operation, calls pass through and are recorded
//   - OPEN: Failure rate crossed the threshold, calls fail fast with ErrOpen
//   - HALF-OPEN: Reset timeout elapsed, a single trial call is let through
//
// Timeouts count as failures. A successful trial closes the circuit and clears
// the window; a failed one reopens it and restarts the reset timeout.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.DefaultSettings(), observer)
//	fetch := circuitbreaker.Wrap(registry.GetBreaker("origin"), client.Fetch)
//	body, err := fetch.Fire(ctx, "/posts/1")
//	if errors.Is(err, circuitbreaker.ErrOpen) {
//	    // Fast-failed without touching the origin
//	}
package circuitbreaker
