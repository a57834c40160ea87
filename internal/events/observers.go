package events

import (
	"log/slog"

	"github.com/angeloszaimis/wp-fastproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/wp-fastproxy/internal/metrics"
)

// LoggingObserver logs state transitions and rejected calls.
func LoggingObserver(logger *slog.Logger) circuitbreaker.Observer {
	return circuitbreaker.ObserverFunc(func(e circuitbreaker.Event) {
		attrs := []any{
			slog.String("breaker", e.Breaker),
			slog.String("from", e.From.String()),
			slog.String("to", e.To.String()),
		}

		switch e.Type {
		case circuitbreaker.EventOpen:
			if e.Err != nil {
				attrs = append(attrs, slog.Any("err", e.Err))
			}
			logger.Warn("Circuit breaker opened", attrs...)
		case circuitbreaker.EventHalfOpen:
			logger.Info("Circuit breaker half-open, sending trial request", attrs...)
		case circuitbreaker.EventClose:
			logger.Info("Circuit breaker closed", attrs...)
		case circuitbreaker.EventFallback:
			logger.Warn("Fallback triggered", slog.String("breaker", e.Breaker))
		}
	})
}

// MetricsObserver forwards transitions and rejections to the collector.
func MetricsObserver(collector *metrics.Collector) circuitbreaker.Observer {
	return circuitbreaker.ObserverFunc(func(e circuitbreaker.Event) {
		switch {
		case e.IsTransition():
			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventBreakerStateChanged,
				Timestamp: e.Timestamp,
				Breaker:   e.Breaker,
				State:     e.To.String(),
			})
		case e.Type == circuitbreaker.EventFallback:
			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventBreakerRejected,
				Timestamp: e.Timestamp,
				Breaker:   e.Breaker,
			})
		}
	})
}
