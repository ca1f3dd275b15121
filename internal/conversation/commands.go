package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

type command string

const (
	cmdNone         command = ""
	cmdAvailability command = "availability"
	cmdBookings     command = "bookings"
	cmdCancel       command = "cancel"
)

const (
	maxListedSlots    = 10
	maxListedBookings = 10
)

var (
	cancelPattern = regexp.MustCompile(`(?i)\bcancel\b(?:\s+(?:my\s+)?booking)?(?:\s+id)?[\s:#]+(` + domain.BookingIDPrefix + `\d+)\b`)
	datePattern   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// matchCommand recognises the messages answered without the completion service.
func matchCommand(text string) (command, string) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "check availability"), strings.Contains(lower, "available slots"):
		return cmdAvailability, datePattern.FindString(text)
	case strings.Contains(lower, "show bookings"), strings.Contains(lower, "view bookings"), strings.Contains(lower, "my bookings"):
		return cmdBookings, ""
	}
	if m := cancelPattern.FindStringSubmatch(text); m != nil {
		return cmdCancel, strings.ToUpper(m[1])
	}
	return cmdNone, ""
}

func (o *Orchestrator) runCommand(ctx context.Context, cmd command, arg string) string {
	switch cmd {
	case cmdAvailability:
		return o.availabilityReply(ctx, arg)
	case cmdBookings:
		return o.bookingsReply(ctx)
	case cmdCancel:
		return o.cancelReply(ctx, arg)
	}
	return ""
}

// availabilityReply lists free slots for an explicit date, or for today and tomorrow.
func (o *Orchestrator) availabilityReply(ctx context.Context, date string) string {
	venues, err := o.store.ListVenues(ctx)
	if err != nil {
		o.logger.WithError(err).Error("list turfs for availability")
		return storeTrouble
	}
	if len(venues) == 0 {
		return "No turfs available at the moment."
	}

	type day struct{ date, label string }
	var days []day
	if date != "" {
		days = []day{{date, "Date"}}
	} else {
		today := o.now()
		days = []day{
			{today.Format(domain.DateLayout), "Today"},
			{today.AddDate(0, 0, 1).Format(domain.DateLayout), "Tomorrow"},
		}
	}

	var sb strings.Builder
	for _, v := range venues {
		fmt.Fprintf(&sb, "**%s** - Availability Status\n\n", v.Name)
		fmt.Fprintf(&sb, "Price: ₹%s/hour\n\n", formatAmount(v.PricePerHour))
		for _, d := range days {
			fmt.Fprintf(&sb, "**%s (%s):**\n", d.label, d.date)
			av, err := o.store.Availability(ctx, v.ID, d.date)
			if err != nil {
				o.logger.WithError(err).WithField("turf_id", v.ID).Error("availability")
				return storeTrouble
			}
			if len(av.AvailableSlots) == 0 {
				sb.WriteString("No slots available\n\n")
				continue
			}
			sb.WriteString("Available slots: " + listSlots(av.AvailableSlots) + "\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (o *Orchestrator) bookingsReply(ctx context.Context) string {
	all, err := o.store.ListBookings(ctx, domain.BookingFilter{})
	if err != nil {
		o.logger.WithError(err).Error("list bookings")
		return storeTrouble
	}
	if len(all) == 0 {
		return "No bookings found."
	}

	var confirmed []domain.Booking
	for _, b := range all {
		if b.Status == domain.StatusConfirmed {
			confirmed = append(confirmed, b)
		}
	}
	if len(confirmed) == 0 {
		return "No confirmed bookings at the moment."
	}
	if len(confirmed) > maxListedBookings {
		confirmed = confirmed[len(confirmed)-maxListedBookings:]
	}

	var sb strings.Builder
	sb.WriteString("**Current Bookings:**\n\n")
	for _, b := range confirmed {
		fmt.Fprintf(&sb, "🎫 **Booking ID:** %s\n", b.ID)
		fmt.Fprintf(&sb, "   Customer: %s\n", b.CustomerName)
		fmt.Fprintf(&sb, "   Date: %s at %s\n", b.Date, b.TimeSlot)
		fmt.Fprintf(&sb, "   Amount: ₹%s\n\n", formatAmount(b.TotalAmount))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (o *Orchestrator) cancelReply(ctx context.Context, id string) string {
	b, err := o.store.CancelBooking(ctx, id)
	switch {
	case err == nil:
		return fmt.Sprintf("Booking %s has been cancelled. The %s slot on %s is available again.", b.ID, b.TimeSlot, b.Date)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Sprintf("I couldn't find a booking with ID %s. Please check the ID and try again.", id)
	case errors.Is(err, domain.ErrAlreadyCancelled):
		return fmt.Sprintf("Booking %s was already cancelled.", id)
	default:
		o.logger.WithError(err).WithField("booking_id", id).Error("cancel booking from chat")
		return fmt.Sprintf("Sorry, I couldn't cancel booking %s right now. Please try again in a moment.", id)
	}
}

// listSlots prints the first slots and counts the rest.
func listSlots(slots []string) string {
	if len(slots) <= maxListedSlots {
		return strings.Join(slots, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(slots[:maxListedSlots], ", "), len(slots)-maxListedSlots)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatHours(n int) string {
	if n == 1 {
		return "1 hour"
	}
	return strconv.Itoa(n) + " hours"
}

func dayOf(t time.Time) string {
	return t.Format(domain.DateLayout)
}
