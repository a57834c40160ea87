package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/angeloszaimis/wp-fastproxy/internal/cache"
	"github.com/angeloszaimis/wp-fastproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/wp-fastproxy/internal/metrics"
)

// ErrUpstream is returned when a miss could not be filled from the origin,
// whether the breaker rejected the call, it timed out or the origin failed.
var ErrUpstream = errors.New("upstream fetch failed")

type Result string

const (
	ResultHit  Result = "hit"
	ResultMiss Result = "miss"
)

type Config struct {
	// RoutePrefix is stripped from the request URI to get the origin path.
	RoutePrefix string
	// Namespace prefixes every cache key.
	Namespace string
	CacheTTL  time.Duration
	// WriteTimeout bounds the cache write after a miss. Zero means no bound.
	WriteTimeout time.Duration
	// CoalesceMisses lets concurrent misses for one key share a single
	// origin call.
	CoalesceMisses bool
}

type ProxyHandler struct {
	logger           *slog.Logger
	store            cache.Store
	breaker          *circuitbreaker.Breaker[string, []byte]
	config           Config
	group            singleflight.Group
	metricsCollector *metrics.Collector
}

func NewProxyHandler(
	logger *slog.Logger,
	store cache.Store,
	breaker *circuitbreaker.Breaker[string, []byte],
	collector *metrics.Collector,
	config Config,
) *ProxyHandler {
	return &ProxyHandler{
		logger:           logger,
		store:            store,
		breaker:          breaker,
		config:           config,
		metricsCollector: collector,
	}
}

// Key returns the cache key for a relative path.
func (h *ProxyHandler) Key(path string) string {
	return h.config.Namespace + ":" + path
}

// Handle serves path from the cache or, on a miss, from the origin. Cache
// failures never fail the request: a read error is a miss and a write error
// is logged.
func (h *ProxyHandler) Handle(ctx context.Context, path string) ([]byte, Result, error) {
	value, result, _, err := h.handle(ctx, path)
	return value, result, err
}

// handle also reports whether a miss was written back to the store.
func (h *ProxyHandler) handle(ctx context.Context, path string) ([]byte, Result, bool, error) {
	key := h.Key(path)

	if value, found := h.lookup(ctx, key, path); found {
		return value, ResultHit, false, nil
	}

	f, err := h.fill(ctx, key, path)
	if err != nil {
		return nil, ResultMiss, false, err
	}
	return f.value, ResultMiss, f.stored, nil
}

func (h *ProxyHandler) lookup(ctx context.Context, key, path string) ([]byte, bool) {
	value, found, err := h.store.Get(ctx, key)
	if err != nil {
		h.logger.Warn("Cache read failed, treating as miss",
			slog.String("key", key),
			slog.Any("err", err))
		h.emitEvent(metrics.MetricEvent{Type: metrics.EventCacheError})
		found = false
	}

	if found {
		h.logger.Info("Cache HIT", slog.String("path", path), slog.String("key", key))
		h.emitEvent(metrics.MetricEvent{Type: metrics.EventCacheHit})
		return value, true
	}

	h.logger.Info("Cache MISS", slog.String("path", path), slog.String("key", key))
	h.emitEvent(metrics.MetricEvent{Type: metrics.EventCacheMiss})
	return nil, false
}

type filled struct {
	value  []byte
	stored bool
}

// fill runs detached from the caller: once a miss is accepted the origin
// call and the cache write finish even if the client goes away.
func (h *ProxyHandler) fill(ctx context.Context, key, path string) (filled, error) {
	ctx = context.WithoutCancel(ctx)

	if !h.config.CoalesceMisses {
		return h.fetchAndStore(ctx, key, path)
	}

	v, err, shared := h.group.Do(key, func() (any, error) {
		return h.fetchAndStore(ctx, key, path)
	})
	if shared {
		h.logger.Debug("Joined in-flight origin fetch", slog.String("key", key))
	}
	if err != nil {
		return filled{}, err
	}
	return v.(filled), nil
}

func (h *ProxyHandler) fetchAndStore(ctx context.Context, key, path string) (filled, error) {
	value, err := h.breaker.Fire(ctx, path)
	if err != nil {
		return filled{}, fmt.Errorf("%w: %s: %w", ErrUpstream, path, err)
	}

	writeCtx := ctx
	if h.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, h.config.WriteTimeout)
		defer cancel()
	}

	if err := h.store.Set(writeCtx, key, value, h.config.CacheTTL); err != nil {
		h.logger.Warn("Cache write failed",
			slog.String("key", key),
			slog.Any("err", err))
		h.emitEvent(metrics.MetricEvent{Type: metrics.EventCacheError})
		return filled{value: value}, nil
	}

	return filled{value: value, stored: true}, nil
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.emitEvent(metrics.MetricEvent{Type: metrics.EventRequestReceived})

	path := h.relativePath(r)
	value, result, stored, err := h.handle(r.Context(), path)
	if err != nil {
		h.logger.Error("Proxy error",
			slog.String("path", path),
			slog.String("cause", classify(err)),
			slog.Any("err", err))
		h.emitEvent(metrics.MetricEvent{Type: metrics.EventProxyError})
		respondError(w, http.StatusInternalServerError, "Proxy failed")
		return
	}

	w.Header().Set("Cache-Status", cacheStatus(result, stored))
	respondJSON(w, http.StatusOK, value)
}

// relativePath strips the route prefix from the request URI, keeping the
// query string and a leading slash.
func (h *ProxyHandler) relativePath(r *http.Request) string {
	rest := strings.TrimPrefix(r.URL.RequestURI(), h.config.RoutePrefix)

	if rest == "" || rest[0] != '/' {
		rest = "/" + rest
	}
	return rest
}

func cacheStatus(result Result, stored bool) string {
	switch {
	case result == ResultHit:
		return "wp-fastproxy; hit"
	case stored:
		return "wp-fastproxy; fwd=uri-miss; stored"
	default:
		return "wp-fastproxy; fwd=uri-miss"
	}
}

func (h *ProxyHandler) emitEvent(event metrics.MetricEvent) {
	if h.metricsCollector == nil {
		return
	}
	h.metricsCollector.Emit(event)
}
