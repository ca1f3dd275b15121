package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
)

const maxRetries = 3

type EventSink interface {
	LogBookingEvent(ctx context.Context, ev domain.BookingEvent) error
}

type Projector interface {
	Apply(ctx context.Context, ev domain.BookingEvent) error
}

// AuditWorker records every booking event in the audit log and the booking projection.
type AuditWorker struct {
	audit      EventSink
	projection Projector
	logger     observability.Logger
	backoff    func(attempt int) time.Duration
}

func NewAuditWorker(audit EventSink, projection Projector, logger observability.Logger) *AuditWorker {
	return &AuditWorker{
		audit:      audit,
		projection: projection,
		logger:     logger,
		backoff:    func(i int) time.Duration { return time.Duration(1<<i) * time.Second },
	}
}

// Handle is safe to repeat: both writes ignore events they have already seen.
func (w *AuditWorker) Handle(ctx context.Context, ev domain.BookingEvent) error {
	log := w.logger.WithField("event_id", ev.ID.String()).WithField("type", ev.Type)
	if err := w.withRetry(ctx, func() error { return w.audit.LogBookingEvent(ctx, ev) }); err != nil {
		log.WithError(err).Error("failed to write audit log after retries")
		return err
	}
	if err := w.withRetry(ctx, func() error { return w.projection.Apply(ctx, ev) }); err != nil {
		log.WithError(err).Error("failed to update booking projection after retries")
		return err
	}
	log.Debug("event recorded")
	return nil
}

func (w *AuditWorker) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff(i)):
		}
	}
	return errors.Wrapf(err, "failed after %d retries", maxRetries)
}
