package rabbit

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
)

// BookingKeys binds a queue to every booking event.
var BookingKeys = []string{"booking.*"}

type Consumer struct {
	ch     *amqp.Channel
	queue  string
	logger observability.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, keys []string, logger observability.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare queue")
	}
	for _, key := range keys {
		if err := ch.QueueBind(q.Name, key, Exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, errors.Wrapf(err, "bind %s", key)
		}
	}
	if err := ch.Qos(8, 0, false); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "set qos")
	}
	return &Consumer{ch: ch, queue: q.Name, logger: logger}, nil
}

// Run delivers booking events to handle until ctx ends. Messages that cannot be decoded are
// dropped; handler failures are requeued.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, domain.BookingEvent) error) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			log := c.logger.WithField("routing_key", d.RoutingKey).WithField("message_id", d.MessageId)

			var ev domain.BookingEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				log.WithError(err).Warn("drop undecodable message")
				_ = d.Nack(false, false)
				continue
			}
			if err := handle(ctx, ev); err != nil {
				log.WithError(err).Error("handle booking event")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
