/*
Package notify delivers booking events to the outside world.

PURPOSE:
  booking.Service raises two events after commit: BookingCreated and
  PaymentAcknowledged. This package turns them into JSON messages on a
  RabbitMQ topic exchange. Rendering emails or SMS is left to consumers.

ROUTING KEYS:
  booking.created        - one per successful Create
  payment.acknowledged   - first non-zero confirmed payment of a booking

COMPONENTS:
  AMQPPublisher - owns the AMQP connection and channel
  Dispatcher    - booking.Notifier over a Publisher, with a per-message
                  timeout and a circuit breaker
  LogNotifier   - booking.Notifier that only logs (no broker configured)

SEE ALSO:
  - booking/events.go: Event payloads
  - cmd/server/main.go: Picks Dispatcher or LogNotifier from config
*/
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends a JSON payload under a routing key.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// AMQPPublisher publishes persistent JSON messages to a durable topic
// exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

var _ Publisher = (*AMQPPublisher)(nil)

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
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
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
