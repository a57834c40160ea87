// Package metrics collects proxy metrics off the request path.
//
// Handlers emit events into a buffered channel; a single goroutine folds them
// into counters:
//   - Requests, cache hits, misses and cache errors (with hit ratio)
//   - Origin response times with percentiles (P50, P95, P99) and status codes
//   - Circuit breaker states, transitions and rejected calls
//   - Origin health as reported by the prober
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventOriginResponse,
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
//
// Emit never blocks; when the buffer is full the event is dropped. Pending
// events are drained when the collector's context is cancelled.
package metrics
