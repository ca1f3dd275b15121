package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	BookingIDPrefix = "BK"
	DateLayout      = "2006-01-02"
)

// BookingID formats the n-th booking identifier, e.g. BK0007.
func BookingID(seq int64) string {
	return fmt.Sprintf("%s%04d", BookingIDPrefix, seq)
}

// BookingSeq extracts the counter from an identifier produced by BookingID.
func BookingSeq(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, BookingIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// NewBooking builds a confirmed booking for a validated request. The total is fixed here.
func NewBooking(seq int64, venue Venue, req BookingRequest, now time.Time) Booking {
	return Booking{
		ID:            BookingID(seq),
		VenueID:       venue.ID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Date:          req.Date,
		TimeSlot:      req.TimeSlot,
		Duration:      req.Duration,
		Status:        StatusConfirmed,
		CreatedAt:     now,
		TotalAmount:   venue.Quote(req.Duration),
	}
}

// Cancel moves a confirmed booking to cancelled. Cancelled is terminal.
func (b *Booking) Cancel(at time.Time) error {
	if b.Status == StatusCancelled {
		return errors.Wrapf(ErrAlreadyCancelled, "booking %s", b.ID)
	}
	b.Status = StatusCancelled
	b.CancelledAt = &at
	return nil
}

// legacyTimeLayout is how older store files wrote created_at.
const legacyTimeLayout = "2006-01-02 15:04:05"

func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	aux := struct {
		*plain
		CreatedAt string `json:"created_at"`
	}{plain: (*plain)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	b.CreatedAt = time.Time{}
	if aux.CreatedAt == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, aux.CreatedAt); err == nil {
		b.CreatedAt = t
		return nil
	}
	t, err := time.ParseInLocation(legacyTimeLayout, aux.CreatedAt, time.Local)
	if err != nil {
		return errors.Wrapf(err, "booking %s: created_at", b.ID)
	}
	b.CreatedAt = t
	return nil
}
