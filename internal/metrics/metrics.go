package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      int64
	hits          int64
	misses        int64
	cacheErrors   int64
	proxyErrors   int64
	responseTimes []time.Duration
	statusCodes   map[int]int64
	originEWMA    time.Duration
	originHealthy bool
	breakers      map[string]*BreakerMetrics
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	ProxyErrors   int64                     `json:"proxy_errors"`
	Uptime        time.Duration             `json:"uptime"`
	Cache         CacheMetrics              `json:"cache"`
	Origin        OriginMetrics             `json:"origin"`
	Breakers      map[string]BreakerMetrics `json:"breakers"`
}

type CacheMetrics struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Errors   int64   `json:"errors"`
	HitRatio float64 `json:"hit_ratio"`
}

// OriginMetrics describes origin responses. EWMAResponse is the client's
// moving average, weighted towards recent calls.
type OriginMetrics struct {
	Healthy      bool          `json:"healthy"`
	Responses    int64         `json:"responses"`
	AvgResponse  time.Duration `json:"avg_response"`
	P50Response  time.Duration `json:"p50_response"`
	P95Response  time.Duration `json:"p95_response"`
	P99Response  time.Duration `json:"p99_response"`
	EWMAResponse time.Duration `json:"ewma_response"`
	StatusCodes  map[int]int64 `json:"status_codes"`
}

type BreakerMetrics struct {
	State       string `json:"state"`
	Transitions int64  `json:"transitions"`
	Rejects     int64  `json:"rejects"`
}

func (m *Metrics) IncrementRequests() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests++
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *Metrics) IncrementCacheErrors() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cacheErrors++
}

func (m *Metrics) IncrementProxyErrors() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.proxyErrors++
}

func (m *Metrics) RecordOriginResponse(duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > maxSamples {
		m.responseTimes = m.responseTimes[1:]
	}
	m.statusCodes[statusCode]++
}

func (m *Metrics) UpdateOriginEWMA(ewma time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.originEWMA = ewma
}

func (m *Metrics) UpdateHealthStatus(healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.originHealthy = healthy
}

func (m *Metrics) UpdateBreakerState(name, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	b := m.breaker(name)
	b.State = state
	b.Transitions++
}

func (m *Metrics) IncrementBreakerRejects(name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breaker(name).Rejects++
}

// breaker must be called with the write lock held.
func (m *Metrics) breaker(name string) *BreakerMetrics {
	b, ok := m.breakers[name]
	if !ok {
		b = &BreakerMetrics{State: "CLOSED"}
		m.breakers[name] = b
	}
	return b
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: m.requests,
		ProxyErrors:   m.proxyErrors,
		Uptime:        time.Since(m.startTime),
		Cache: CacheMetrics{
			Hits:   m.hits,
			Misses: m.misses,
			Errors: m.cacheErrors,
		},
		Origin: OriginMetrics{
			Healthy:      m.originHealthy,
			EWMAResponse: m.originEWMA,
			StatusCodes:  make(map[int]int64, len(m.statusCodes)),
		},
		Breakers: make(map[string]BreakerMetrics, len(m.breakers)),
	}

	if lookups := m.hits + m.misses; lookups > 0 {
		snap.Cache.HitRatio = float64(m.hits) / float64(lookups)
	}

	for code, count := range m.statusCodes {
		snap.Origin.StatusCodes[code] = count
		snap.Origin.Responses += count
	}

	if len(m.responseTimes) > 0 {
		sorted := make([]time.Duration, len(m.responseTimes))
		copy(sorted, m.responseTimes)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		snap.Origin.AvgResponse = average(sorted)
		snap.Origin.P50Response = percentile(sorted, 0.50)
		snap.Origin.P95Response = percentile(sorted, 0.95)
		snap.Origin.P99Response = percentile(sorted, 0.99)
	}

	for name, b := range m.breakers {
		snap.Breakers[name] = *b
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		statusCodes:   make(map[int]int64),
		originHealthy: true,
		breakers:      make(map[string]*BreakerMetrics),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
