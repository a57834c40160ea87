// cbtest walks the proxy through a full circuit breaker cycle against the
// fake origin in scripts/origin: warm cache, origin outage, fast failures,
// cached reads during the outage and recovery after the reset timeout.
//
// Usage:
//
//	go run ./scripts/origin -port 8081 &
//	WP_API_BASE=http://localhost:8081/wp-json REDIS_URL=memory:// go run ./cmd &
//	go run ./scripts/cbtest -proxy http://localhost:5000 -origin http://localhost:8081
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

type result struct {
	status      int
	cacheStatus string
	duration    time.Duration
}

func main() {
	var (
		proxyURL     = flag.String("proxy", "http://localhost:5000", "Proxy URL")
		originURL    = flag.String("origin", "http://localhost:8081", "Fake origin URL (control endpoint)")
		requests     = flag.Int("requests", 20, "Requests during the outage phase")
		resetTimeout = flag.Duration("reset-timeout", 10*time.Second, "Breaker reset timeout configured on the proxy")
	)
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║         CACHE & CIRCUIT BREAKER WALKTHROUGH                    ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()

	control(client, *originURL, "fail=false&delay=0s")

	// PHASE 1: a miss followed by a hit
	fmt.Println(colorBlue + "━━━ PHASE 1: Warm the cache ━━━" + colorReset)
	first := get(client, *proxyURL+"/wp-json/wp/v2/posts")
	second := get(client, *proxyURL+"/wp-json/wp/v2/posts")
	report("first request", first)
	report("second request", second)
	if first.status != http.StatusOK || second.cacheStatus != "wp-fastproxy; hit" {
		fmt.Println(colorRed + "  ✗ Expected a miss then a hit. Is the proxy running?" + colorReset)
		os.Exit(1)
	}
	fmt.Println(colorGreen + "  ✓ Cache is working" + colorReset)
	fmt.Println()

	// PHASE 2: origin outage, uncached paths fail until the breaker opens
	fmt.Println(colorBlue + "━━━ PHASE 2: Origin outage ━━━" + colorReset)
	control(client, *originURL, "fail=true")

	var fastFailures int
	for i := 0; i < *requests; i++ {
		r := get(client, fmt.Sprintf("%s/wp-json/wp/v2/posts/%d?attempt=%d", *proxyURL, i%10+1, i))
		if r.status == http.StatusInternalServerError && r.duration < 50*time.Millisecond {
			fastFailures++
		}
		fmt.Printf("  Request %2d: status=%d took=%s\n", i+1, r.status, r.duration.Round(time.Millisecond))
	}
	state := breakerState(client, *proxyURL)
	fmt.Printf("\n  Breaker state: %s\n", state)
	if state != "OPEN" {
		fmt.Println(colorRed + "  ✗ Breaker did not open" + colorReset)
	} else {
		fmt.Printf(colorGreen+"  ✓ Breaker open, %d fast failures\n"+colorReset, fastFailures)
	}
	fmt.Println()

	// PHASE 3: cached paths still served
	fmt.Println(colorBlue + "━━━ PHASE 3: Cached reads during the outage ━━━" + colorReset)
	cached := get(client, *proxyURL+"/wp-json/wp/v2/posts")
	report("cached request", cached)
	if cached.status == http.StatusOK {
		fmt.Println(colorGreen + "  ✓ Cache kept serving" + colorReset)
	} else {
		fmt.Println(colorRed + "  ✗ Cached path failed (entry expired?)" + colorReset)
	}
	fmt.Println()

	// PHASE 4: recovery
	fmt.Println(colorBlue + "━━━ PHASE 4: Recovery ━━━" + colorReset)
	control(client, *originURL, "fail=false")
	fmt.Printf(colorYellow+"  Waiting %s for the reset timeout...\n"+colorReset, *resetTimeout)
	time.Sleep(*resetTimeout + 500*time.Millisecond)

	trial := get(client, *proxyURL+"/wp-json/wp/v2/posts/1?attempt=recovery")
	report("trial request", trial)
	state = breakerState(client, *proxyURL)
	fmt.Printf("  Breaker state: %s\n", state)
	if trial.status == http.StatusOK && state == "CLOSED" {
		fmt.Println(colorGreen + "  ✓ Breaker closed after a successful trial" + colorReset)
	} else {
		fmt.Println(colorRed + "  ✗ Breaker did not recover" + colorReset)
		os.Exit(1)
	}
}

func get(client *http.Client, url string) result {
	start := time.Now()
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf(colorRed+"  request failed: %v\n"+colorReset, err)
		return result{duration: time.Since(start)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return result{
		status:      resp.StatusCode,
		cacheStatus: resp.Header.Get("Cache-Status"),
		duration:    time.Since(start),
	}
}

func control(client *http.Client, originURL, query string) {
	resp, err := client.Get(originURL + "/__control?" + query)
	if err != nil {
		fmt.Printf(colorRed+"  ✗ Cannot reach the fake origin: %v\n"+colorReset, err)
		os.Exit(1)
	}
	resp.Body.Close()
}

func breakerState(client *http.Client, proxyURL string) string {
	resp, err := client.Get(proxyURL + "/breakers")
	if err != nil {
		return "UNKNOWN"
	}
	defer resp.Body.Close()

	var stats map[string]struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return "UNKNOWN"
	}
	return stats["origin"].State
}

func report(label string, r result) {
	fmt.Printf("  %-16s status=%d cache=%q took=%s\n", label, r.status, r.cacheStatus, r.duration.Round(time.Millisecond))
}
