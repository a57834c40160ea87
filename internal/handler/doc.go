// Package handler implements the read-through proxy handler. It answers from
// the cache when it can and otherwise fetches from the origin through the
// circuit breaker, storing successful responses for the configured TTL.
package handler
