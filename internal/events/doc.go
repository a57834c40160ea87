// Package events turns circuit breaker notifications into side effects: log
// lines, metric events and messages on a RabbitMQ topic exchange.
package events
