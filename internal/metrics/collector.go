package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived     EventType = "request_received"
	EventCacheHit            EventType = "cache_hit"
	EventCacheMiss           EventType = "cache_miss"
	EventCacheError          EventType = "cache_error"
	EventOriginResponse      EventType = "origin_response"
	EventProxyError          EventType = "proxy_error"
	EventBreakerStateChanged EventType = "breaker_state_changed"
	EventBreakerRejected     EventType = "breaker_rejected"
	EventHealthChanged       EventType = "health_changed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	// Breaker names the circuit breaker for breaker events.
	Breaker string
	// State is the new breaker state for EventBreakerStateChanged.
	State string
	// Duration and StatusCode describe an origin response; StatusCode is 0
	// when no response arrived.
	Duration   time.Duration
	StatusCode int
	// EWMA is the origin's moving average response time after this response.
	EWMA    time.Duration
	Healthy bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking; the event is dropped when the buffer
// is full. A nil collector ignores it.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests()

	case EventCacheHit:
		c.metrics.RecordCacheLookup(true)

	case EventCacheMiss:
		c.metrics.RecordCacheLookup(false)

	case EventCacheError:
		c.metrics.IncrementCacheErrors()

	case EventOriginResponse:
		c.metrics.RecordOriginResponse(event.Duration, event.StatusCode)
		if event.EWMA > 0 {
			c.metrics.UpdateOriginEWMA(event.EWMA)
		}

	case EventProxyError:
		c.metrics.IncrementProxyErrors()

	case EventBreakerStateChanged:
		c.metrics.UpdateBreakerState(event.Breaker, event.State)

	case EventBreakerRejected:
		c.metrics.IncrementBreakerRejects(event.Breaker)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
