package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the bridge publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPBridge forwards bus events to a RabbitMQ topic exchange, using the event type
// as routing key under an optional prefix.
type AMQPBridge struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	prefix   string
	timeout  time.Duration
}

// DialAMQP connects and declares a durable topic exchange.
func DialAMQP(url, exchange, routingPrefix string) (*AMQPBridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	bridge := NewAMQPBridge(ch, exchange, routingPrefix)
	bridge.conn = conn
	return bridge, nil
}

func NewAMQPBridge(ch Channel, exchange, routingPrefix string) *AMQPBridge {
	return &AMQPBridge{ch: ch, exchange: exchange, prefix: routingPrefix, timeout: 5 * time.Second}
}

func (a *AMQPBridge) routingKey(eventType string) string {
	if a.prefix == "" {
		return eventType
	}
	return a.prefix + "." + eventType
}

// Handle is an EventHandler; subscribe it with AllEvents.
func (a *AMQPBridge) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	err := a.ch.PublishWithContext(ctx, a.exchange, a.routingKey(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type,
		Timestamp:    event.CreatedAt,
		Body:         event.Payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (a *AMQPBridge) Close() error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
