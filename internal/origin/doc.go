// Package origin talks to the upstream JSON API the proxy sits in front of.
// It issues plain GET requests, validates that the body is JSON, and keeps a
// moving average of response times plus a health flag fed by the prober.
package origin
