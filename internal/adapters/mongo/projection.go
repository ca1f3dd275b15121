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

// BookingProjection mirrors the latest known state of every booking for reporting.
type BookingProjection struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewBookingProjection(db *mongo.Database, logger observability.Logger) *BookingProjection {
	return &BookingProjection{
		coll:   db.Collection("bookings"),
		logger: logger,
	}
}

type BookingDoc struct {
	ID           string     `bson:"_id,omitempty"`
	TurfID       string     `bson:"turf_id"`
	CustomerName string     `bson:"customer_name"`
	Date         string     `bson:"date"`
	TimeSlot     string     `bson:"time_slot"`
	Duration     int        `bson:"duration"`
	Status       string     `bson:"status"`
	TotalAmount  float64    `bson:"total_amount"`
	CreatedAt    time.Time  `bson:"created_at"`
	CancelledAt  *time.Time `bson:"cancelled_at,omitempty"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

// Apply upserts the booking carried by ev. A cancelled document is never reverted to confirmed,
// so out of order redelivery cannot resurrect a booking.
func (p *BookingProjection) Apply(ctx context.Context, ev domain.BookingEvent) error {
	b := ev.Booking
	filter := bson.M{"_id": b.ID}
	if b.Status == domain.StatusConfirmed {
		filter["status"] = bson.M{"$ne": string(domain.StatusCancelled)}
	}
	// _id comes from the filter on insert and is left out of $set.
	update := bson.M{"$set": BookingDoc{
		TurfID:       b.VenueID,
		CustomerName: b.CustomerName,
		Date:         b.Date,
		TimeSlot:     b.TimeSlot,
		Duration:     b.Duration,
		Status:       string(b.Status),
		TotalAmount:  b.TotalAmount,
		CreatedAt:    b.CreatedAt,
		CancelledAt:  b.CancelledAt,
		UpdatedAt:    time.Now(),
	}}
	_, err := p.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// The filter missed a cancelled document; nothing to change.
		return nil
	}
	if err != nil {
		p.logger.WithError(err).WithField("booking_id", b.ID).Error("failed to project booking")
		return err
	}
	return nil
}

func (p *BookingProjection) Get(ctx context.Context, bookingID string) (*BookingDoc, error) {
	var doc BookingDoc
	err := p.coll.FindOne(ctx, bson.M{"_id": bookingID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
