// Package outbox relays booking events recorded in the database to the message broker.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/crdb"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
)

const (
	defaultInterval = 5 * time.Second
	defaultBatch    = 50
)

type Source interface {
	DrainOutbox(ctx context.Context, limit int, publish func(crdb.OutboxRecord) error) (int, error)
	OldestPending(ctx context.Context) (time.Time, bool, error)
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	repo      Source
	rabbitPub Sink
	logger    observability.Logger
	interval  time.Duration
	batch     int
	now       func() time.Time
}

func NewPublisher(repo Source, rabbitPub Sink, logger observability.Logger) *Publisher {
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger,
		interval:  defaultInterval,
		batch:     defaultBatch,
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("outbox publisher started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush publishes pending records until a batch comes back short or publishing fails.
func (p *Publisher) Flush(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := p.repo.DrainOutbox(ctx, p.batch, func(rec crdb.OutboxRecord) error {
			return p.rabbitPub.Publish(ctx, rec.EventType, amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Timestamp:   rec.CreatedAt,
				Body:        rec.Payload,
			})
		})
		total += n
		if err != nil {
			observability.RabbitPublishRetries.Inc()
			p.logger.WithError(err).WithField("published", n).Warn("outbox flush interrupted")
			break
		}
		if n < p.batch {
			break
		}
	}
	p.updateLag(ctx)
	return total
}

func (p *Publisher) updateLag(ctx context.Context) {
	oldest, pending, err := p.repo.OldestPending(ctx)
	if err != nil {
		p.logger.WithError(err).Debug("outbox lag")
		return
	}
	if !pending {
		observability.OutboxLag.Set(0)
		return
	}
	observability.OutboxLag.Set(p.now().Sub(oldest).Seconds())
}
