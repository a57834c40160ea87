package main

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/wp-fastproxy/config"
	"github.com/angeloszaimis/wp-fastproxy/internal/cache"
	"github.com/angeloszaimis/wp-fastproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/wp-fastproxy/internal/events"
	"github.com/angeloszaimis/wp-fastproxy/internal/handler"
	"github.com/angeloszaimis/wp-fastproxy/internal/healthcheck"
	"github.com/angeloszaimis/wp-fastproxy/internal/httpserver"
	"github.com/angeloszaimis/wp-fastproxy/internal/metrics"
	"github.com/angeloszaimis/wp-fastproxy/internal/origin"
	"github.com/angeloszaimis/wp-fastproxy/pkg/logger"
)

const (
	originBreakerName = "origin"
	metricsBufferSize = 1000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log, logFile, err := newLogger(cfg)
	if err != nil {
		slog.Error("failed to create logger", slog.Any("err", err))
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("wp-fastproxy stopped with error", slog.Any("err", err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := cache.Open(ctx, cfg.Cache.URL, log)
	if err != nil {
		return err
	}
	defer store.Close()

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	client, err := newOriginClient(cfg)
	if err != nil {
		return err
	}

	observers := []circuitbreaker.Observer{
		events.LoggingObserver(log),
		events.MetricsObserver(collector),
	}
	if cfg.Events.AMQPURL != "" {
		conn, publisher, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			log.Warn("Failed to connect to RabbitMQ, breaker events will not be published", slog.Any("err", err))
		} else {
			defer conn.Close()
			breakerPublisher := events.NewBreakerPublisher(publisher, cfg.Events.Exchange, cfg.Events.BufferSize, log)
			breakerPublisher.Start(ctx)
			observers = append(observers, breakerPublisher)
			log.Info("Publishing breaker events", slog.String("exchange", cfg.Events.Exchange))
		}
	}

	registry := circuitbreaker.NewRegistry(breakerSettings(cfg), observers...)
	breaker := circuitbreaker.Wrap(registry.GetBreaker(originBreakerName), handler.OriginAction(client, collector))

	proxyHandler := handler.NewProxyHandler(log, store, breaker, collector, proxyConfig(cfg))

	go healthcheck.HealthCheck(ctx, client, cfg.HealthCheck.Path, cfg.HealthCheck.IntervalDuration(), collector, log)

	router := setupRouter(log, cfg.Proxy.RoutePrefix, proxyHandler, collector, registry)

	srv, err := httpserver.New(cfg.Server.Address(), router, httpserver.Options{})
	if err != nil {
		return err
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("wp-fastproxy listening",
		slog.String("addr", srv.Addr()),
		slog.String("origin", client.URL().String()),
		slog.String("route_prefix", cfg.Proxy.RoutePrefix))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		return nil
	case err := <-srvErrCh:
		return err
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	if cfg.Logging.File == "" {
		return logger.New(cfg.Logging.Level, true, cfg.Server.Environment), nil, nil
	}
	return logger.NewWithFile(cfg.Logging.Level, true, cfg.Server.Environment, cfg.Logging.File)
}

func newOriginClient(cfg *config.Config) (*origin.Client, error) {
	u, err := url.Parse(cfg.Origin.BaseURL)
	if err != nil {
		return nil, err
	}
	return origin.New(u, origin.Options{Timeout: cfg.Origin.TimeoutDuration()}), nil
}

func breakerSettings(cfg *config.Config) circuitbreaker.Settings {
	return circuitbreaker.Settings{
		CallTimeout:              cfg.Breaker.CallTimeoutDuration(),
		ErrorThresholdPercentage: cfg.Breaker.ErrorThresholdPercentage,
		ResetTimeout:             cfg.Breaker.ResetTimeoutDuration(),
		WindowSize:               cfg.Breaker.WindowSize,
		VolumeThreshold:          cfg.Breaker.VolumeThreshold,
		RollingWindow:            cfg.Breaker.RollingWindowDuration(),
	}
}

func proxyConfig(cfg *config.Config) handler.Config {
	return handler.Config{
		RoutePrefix:    cfg.Proxy.RoutePrefix,
		Namespace:      cfg.Proxy.Namespace,
		CacheTTL:       cfg.Proxy.CacheTTLDuration(),
		WriteTimeout:   cfg.Cache.WriteTimeoutDuration(),
		CoalesceMisses: cfg.Proxy.CoalesceMisses,
	}
}
