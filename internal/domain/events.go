package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
)

type BookingEvent struct {
	ID         uuid.UUID `json:"event_id"`
	Type       string    `json:"type"`
	Booking    Booking   `json:"booking"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b Booking, at time.Time) BookingEvent {
	return BookingEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Booking:    b,
		OccurredAt: at,
	}
}
