package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/robertarktes/turf-booking-assistant/internal/adapters/mongo"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

type BookingReader interface {
	Get(ctx context.Context, bookingID string) (*mongoadapter.BookingDoc, error)
}

type HistoryReader interface {
	History(ctx context.Context, bookingID string) ([]mongoadapter.AuditLog, error)
}

// showBooking prints the projected state of a booking followed by its audit trail.
func showBooking(ctx context.Context, out io.Writer, bookings BookingReader, audit HistoryReader, bookingID string) error {
	doc, err := bookings.Get(ctx, bookingID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return errors.Wrap(err, "read projection")
	}
	history, err := audit.History(ctx, bookingID)
	if err != nil {
		return errors.Wrap(err, "read audit log")
	}
	if doc == nil && len(history) == 0 {
		return errors.Wrapf(domain.ErrNotFound, "booking %s", bookingID)
	}

	if doc != nil {
		fmt.Fprintf(out, "%s %s %s %s %dh %s total=%.2f\n",
			doc.ID, doc.TurfID, doc.Date, doc.TimeSlot, doc.Duration, doc.Status, doc.TotalAmount)
	} else {
		fmt.Fprintf(out, "%s not projected yet\n", bookingID)
	}
	for _, entry := range history {
		fmt.Fprintf(out, "  %s %s\n", entry.OccurredAt.UTC().Format(time.RFC3339), entry.Action)
	}
	return nil
}
