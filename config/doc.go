// Package config loads the proxy configuration from an optional .env file,
// an optional config.yaml and environment variables, then validates it.
//
// Every key can be set through the environment with dots replaced by
// underscores (PROXY_CACHE_TTL=60s). WP_API_BASE, REDIS_URL and PORT are
// accepted as aliases for origin.base_url, cache.url and server.port.
package config
