package config

import "time"

// The getters below assume Validate has passed; an empty or invalid value
// reads as zero.

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (o OriginConfig) TimeoutDuration() time.Duration {
	return parseDuration(o.Timeout)
}

func (p ProxyConfig) CacheTTLDuration() time.Duration {
	return parseDuration(p.CacheTTL)
}

func (c CacheConfig) WriteTimeoutDuration() time.Duration {
	return parseDuration(c.WriteTimeout)
}

func (b BreakerConfig) CallTimeoutDuration() time.Duration {
	return parseDuration(b.CallTimeout)
}

func (b BreakerConfig) ResetTimeoutDuration() time.Duration {
	return parseDuration(b.ResetTimeout)
}

// RollingWindowDuration returns -1 for "0s" so the breaker disables the time
// window instead of applying its default.
func (b BreakerConfig) RollingWindowDuration() time.Duration {
	d := parseDuration(b.RollingWindow)
	if b.RollingWindow != "" && d == 0 {
		return -1
	}
	return d
}

func (h HealthCheckConfig) IntervalDuration() time.Duration {
	return parseDuration(h.Interval)
}
