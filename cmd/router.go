package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/angeloszaimis/wp-fastproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/wp-fastproxy/internal/metrics"
)

func setupRouter(
	log *slog.Logger,
	routePrefix string,
	proxyHandler http.Handler,
	metricsCollector *metrics.Collector,
	registry *circuitbreaker.Registry,
) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("OK"))
	})
	router.Get("/metrics", metricsCollector.Handler())
	router.Get("/breakers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.Stats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	if routePrefix == "/" {
		router.Get("/*", proxyHandler.ServeHTTP)
	} else {
		router.Get(routePrefix, proxyHandler.ServeHTTP)
		router.Get(routePrefix+"/*", proxyHandler.ServeHTTP)
	}

	return router
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				log.Info("Request completed",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("from", r.RemoteAddr),
					slog.String("method", r.Method),
					slog.String("uri", r.RequestURI),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
