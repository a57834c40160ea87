package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/wp-fastproxy/internal/metrics"
	"github.com/angeloszaimis/wp-fastproxy/internal/origin"
)

const probeTimeout = 5 * time.Second

// HealthCheck probes path on the origin every interval until ctx is done.
// Status changes are logged and sent to collector, which may be nil.
// A non-positive interval disables probing.
func HealthCheck(
	ctx context.Context,
	client *origin.Client,
	path string,
	interval time.Duration,
	collector *metrics.Collector,
	logger *slog.Logger,
) {
	if interval <= 0 {
		logger.Warn("Health check disabled, interval must be positive",
			slog.String("origin", client.URL().String()),
			slog.Duration("interval", interval))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("origin", client.URL().String()))
			return

		case <-ticker.C:
			probe(ctx, client, path, collector, logger)
		}
	}
}

func probe(ctx context.Context, client *origin.Client, path string, collector *metrics.Collector, logger *slog.Logger) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := client.Probe(probeCtx, path)
	if ctx.Err() != nil {
		return
	}

	healthy := err == nil
	if !client.SetHealthy(healthy) {
		return
	}

	collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventHealthChanged,
		Healthy: healthy,
	})

	if healthy {
		logger.Info("Origin is back up",
			slog.String("origin", client.URL().String()))
	} else {
		logger.Warn("Origin is down",
			slog.String("origin", client.URL().String()),
			slog.Any("err", err))
	}
}
