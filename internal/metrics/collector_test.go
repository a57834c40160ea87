package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/wp-fastproxy/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Start and event processing", func() {
		BeforeEach(func() {
			collector.Start(ctx)
		})

		It("should process EventRequestReceived", func() {
			collector.EventChannel() <- metrics.MetricEvent{
				Type:      metrics.EventRequestReceived,
				Timestamp: time.Now(),
			}

			Eventually(func() int64 {
				return collector.Snapshot().TotalRequests
			}).Should(Equal(int64(1)))
		})

		It("should process cache lookups", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventCacheHit})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventCacheMiss})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventCacheError})

			Eventually(func() metrics.CacheMetrics {
				return collector.Snapshot().Cache
			}).Should(Equal(metrics.CacheMetrics{Hits: 1, Misses: 1, Errors: 1, HitRatio: 0.5}))
		})

		It("should process EventOriginResponse", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventOriginResponse,
				Duration:   100 * time.Millisecond,
				StatusCode: 200,
			})

			Eventually(func() int64 {
				return collector.Snapshot().Origin.StatusCodes[200]
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot().Origin.AvgResponse).To(Equal(100 * time.Millisecond))
		})

		It("should keep the origin moving average from EventOriginResponse", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventOriginResponse,
				Duration:   100 * time.Millisecond,
				StatusCode: 200,
				EWMA:       80 * time.Millisecond,
			})

			Eventually(func() time.Duration {
				return collector.Snapshot().Origin.EWMAResponse
			}).Should(Equal(80 * time.Millisecond))
		})

		It("should process breaker events", func() {
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventBreakerStateChanged,
				Breaker: "origin",
				State:   "OPEN",
			})
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventBreakerRejected,
				Breaker: "origin",
			})

			Eventually(func() metrics.BreakerMetrics {
				return collector.Snapshot().Breakers["origin"]
			}).Should(Equal(metrics.BreakerMetrics{State: "OPEN", Transitions: 1, Rejects: 1}))
		})

		It("should process EventHealthChanged", func() {
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Healthy: false,
			})

			Eventually(func() bool {
				return collector.Snapshot().Origin.Healthy
			}).Should(BeFalse())
		})

		It("should count proxy errors", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventProxyError})

			Eventually(func() int64 {
				return collector.Snapshot().ProxyErrors
			}).Should(Equal(int64(1)))
		})
	})

	Describe("Emit", func() {
		It("should not block when the buffer is full", func() {
			small := metrics.NewCollector(1, log)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
				}
			}()

			Eventually(done).Should(BeClosed())
		})

		It("should ignore a nil collector", func() {
			var none *metrics.Collector

			Expect(func() {
				none.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			}).NotTo(Panic())
		})
	})

	Describe("drain", func() {
		It("should process queued events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			}

			cancel()
			collector.Start(ctx)

			Eventually(func() int64 {
				return collector.Snapshot().TotalRequests
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			Eventually(func() int64 {
				return collector.Snapshot().TotalRequests
			}).Should(Equal(int64(1)))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			w := httptest.NewRecorder()
			collector.Handler().ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(w.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.TotalRequests).To(Equal(int64(1)))
			Expect(snap.Origin.Healthy).To(BeTrue())
		})
	})
})
