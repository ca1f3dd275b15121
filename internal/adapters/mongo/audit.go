package mongo

import (
	"context"
	"time"

	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return client.Database(database), nil
}

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

// AuditLog is keyed by the event id, so a redelivered event is stored once.
type AuditLog struct {
	ID         string    `bson:"_id"`
	Action     string    `bson:"action"`
	BookingID  string    `bson:"booking_id"`
	TurfID     string    `bson:"turf_id"`
	OccurredAt time.Time `bson:"occurred_at"`
	RecordedAt time.Time `bson:"recorded_at"`
	Data       bson.M    `bson:"data"`
}

func (a *AuditLogger) LogBookingEvent(ctx context.Context, ev domain.BookingEvent) error {
	b := ev.Booking
	log := AuditLog{
		ID:         ev.ID.String(),
		Action:     ev.Type,
		BookingID:  b.ID,
		TurfID:     b.VenueID,
		OccurredAt: ev.OccurredAt,
		RecordedAt: time.Now(),
		Data: bson.M{
			"customer_name": b.CustomerName,
			"date":          b.Date,
			"time_slot":     b.TimeSlot,
			"duration":      b.Duration,
			"status":        string(b.Status),
			"total_amount":  b.TotalAmount,
		},
	}
	_, err := a.coll.InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		a.logger.WithField("event_id", log.ID).Debug("audit entry already recorded")
		return nil
	}
	if err != nil {
		a.logger.WithError(err).WithField("event_id", log.ID).Error("failed to insert audit log")
		return err
	}
	return nil
}

// History returns the audit trail of one booking, oldest first.
func (a *AuditLogger) History(ctx context.Context, bookingID string) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"booking_id": bookingID},
		options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
