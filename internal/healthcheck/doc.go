// Package healthcheck periodically probes the origin and records whether it
// answers. The result feeds logs and metrics only; the circuit breaker decides
// on its own statistics.
package healthcheck
