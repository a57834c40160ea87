package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/angeloszaimis/wp-fastproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/wp-fastproxy/internal/metrics"
	"github.com/angeloszaimis/wp-fastproxy/internal/origin"
)

// OriginAction is the breaker action for client: it fetches path and reports
// the response time, status and the client's moving average to collector.
func OriginAction(client *origin.Client, collector *metrics.Collector) circuitbreaker.Action[string, []byte] {
	return func(ctx context.Context, path string) ([]byte, error) {
		start := time.Now()
		body, err := client.Fetch(ctx, path)

		status := http.StatusOK
		if err != nil {
			status = 0
			var statusErr *origin.StatusError
			if errors.As(err, &statusErr) {
				status = statusErr.Code
			}
		}

		collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventOriginResponse,
			Duration:   time.Since(start),
			StatusCode: status,
			EWMA:       client.EWMATime(),
		})
		return body, err
	}
}
