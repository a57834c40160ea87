// Package cache provides the TTL key-value stores the proxy caches origin
// responses in. Redis is the production backend; SQLite and an in-process map
// are available for single-node setups and tests.
package cache
