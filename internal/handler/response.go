package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/angeloszaimis/wp-fastproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/wp-fastproxy/internal/origin"
)

// respondJSON writes body unchanged; it is already JSON.
func respondJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	body, _ := json.Marshal(map[string]string{"error": message})
	respondJSON(w, status, body)
}

// classify names the cause of a failed fetch for logs.
func classify(err error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "breaker_open"
	case errors.Is(err, circuitbreaker.ErrTimeout):
		return "timeout"
	case errors.Is(err, origin.ErrMalformedBody):
		return "malformed_body"
	case errors.Is(err, origin.ErrTransport):
		return "origin"
	default:
		return "unknown"
	}
}
