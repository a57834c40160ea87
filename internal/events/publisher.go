package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angeloszaimis/wp-fastproxy/internal/circuitbreaker"
)

const (
	DefaultExchange = "fastproxy_events"

	publishTimeout = 2 * time.Second
)

// Publisher sends one JSON message to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
}

type RabbitMQPublisher struct {
	channel *amqp.Channel
}

func NewRabbitMQPublisher(ch *amqp.Channel) *RabbitMQPublisher {
	return &RabbitMQPublisher{channel: ch}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	bytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        bytes,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Dial connects to RabbitMQ and declares exchange as a durable topic
// exchange. The caller owns the returned connection.
func Dial(url, exchange string) (*amqp.Connection, *RabbitMQPublisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Properties: amqp.Table{
			"connection_name": "wp-fastproxy",
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return conn, NewRabbitMQPublisher(ch), nil
}

// BreakerMessage is the body published for a breaker event.
type BreakerMessage struct {
	Breaker   string    `json:"breaker"`
	Event     string    `json:"event"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BreakerPublisher is an observer that forwards transitions and rejections to
// a Publisher from a background goroutine. Events that do not fit in the
// buffer are dropped.
type BreakerPublisher struct {
	publisher Publisher
	exchange  string
	eventCh   chan circuitbreaker.Event
	logger    *slog.Logger
}

func NewBreakerPublisher(publisher Publisher, exchange string, bufferSize int, logger *slog.Logger) *BreakerPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &BreakerPublisher{
		publisher: publisher,
		exchange:  exchange,
		eventCh:   make(chan circuitbreaker.Event, bufferSize),
		logger:    logger,
	}
}

func (p *BreakerPublisher) Notify(e circuitbreaker.Event) {
	if !e.IsTransition() && e.Type != circuitbreaker.EventFallback {
		return
	}

	select {
	case p.eventCh <- e:
	default:
		p.logger.Debug("Breaker event dropped", slog.String("event", string(e.Type)))
	}
}

func (p *BreakerPublisher) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *BreakerPublisher) run(ctx context.Context) {
	for {
		select {
		case e := <-p.eventCh:
			p.publish(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (p *BreakerPublisher) publish(ctx context.Context, e circuitbreaker.Event) {
	msg := BreakerMessage{
		Breaker:   e.Breaker,
		Event:     string(e.Type),
		From:      e.From.String(),
		To:        e.To.String(),
		Timestamp: e.Timestamp,
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	routingKey := "breaker." + string(e.Type)
	if err := p.publisher.Publish(pubCtx, p.exchange, routingKey, msg); err != nil {
		p.logger.Warn("Failed to publish breaker event",
			slog.String("routing_key", routingKey),
			slog.Any("err", err))
		return
	}
	p.logger.Debug("Breaker event published", slog.String("routing_key", routingKey))
}
