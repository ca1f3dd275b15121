package rabbit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

// Exchange is the topic exchange booking events are published on, keyed by event type.
const Exchange = "turf.events"

type Publisher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	return p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg)
}

// PublishEvent sends ev as JSON with its type as routing key and its id as message id.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ev.Type, amqp.Publishing{
		MessageId:   ev.ID.String(),
		ContentType: "application/json",
		Timestamp:   ev.OccurredAt,
		Body:        body,
	})
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
