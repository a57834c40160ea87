// Package httpserver wraps net/http.Server with a validated listen address,
// sane timeouts and graceful shutdown.
package httpserver
