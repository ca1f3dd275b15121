package domain

import (
	"slices"
	"time"
)

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Venue is a bookable turf. AvailableHours is the slot grid: every label is a valid start time.
type Venue struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	Description    string   `json:"description"`
	Amenities      []string `json:"amenities"`
	Size           string   `json:"size"`
	SurfaceType    string   `json:"surface_type"`
	PricePerHour   float64  `json:"price_per_hour"`
	AvailableHours []string `json:"available_hours"`
	Images         []string `json:"images,omitempty"`
	Rating         float64  `json:"rating"`
	TotalReviews   int      `json:"total_reviews"`
}

func (v Venue) HasSlot(slot string) bool {
	return slices.Contains(v.AvailableHours, slot)
}

// Quote is the amount charged for a booking of the given length at the current price.
func (v Venue) Quote(hours int) float64 {
	return float64(hours) * v.PricePerHour
}

func (v Venue) Clone() Venue {
	v.Amenities = slices.Clone(v.Amenities)
	v.AvailableHours = slices.Clone(v.AvailableHours)
	v.Images = slices.Clone(v.Images)
	return v
}

type Booking struct {
	ID            string        `json:"booking_id"`
	VenueID       string        `json:"turf_id"`
	CustomerName  string        `json:"customer_name"`
	CustomerPhone string        `json:"customer_phone"`
	CustomerEmail string        `json:"customer_email"`
	Date          string        `json:"date"`
	TimeSlot      string        `json:"time_slot"`
	Duration      int           `json:"duration"`
	Status        BookingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
	TotalAmount   float64       `json:"total_amount"`
}

// Holds reports whether b keeps the given slot out of circulation.
// Slots are compared as opaque labels: a two hour booking at 10:00 does not hold 11:00.
func (b Booking) Holds(venueID, date, slot string) bool {
	return b.Status == StatusConfirmed && b.VenueID == venueID && b.Date == date && b.TimeSlot == slot
}

type BookingFilter struct {
	Status  BookingStatus
	VenueID string
	Date    string
}

func (f BookingFilter) Match(b Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.VenueID != "" && b.VenueID != f.VenueID {
		return false
	}
	if f.Date != "" && b.Date != f.Date {
		return false
	}
	return true
}

type Availability struct {
	VenueID        string          `json:"turf_id"`
	Date           string          `json:"date"`
	Slots          map[string]bool `json:"slots"`
	AvailableSlots []string        `json:"available_slots"`
	BookedSlots    []string        `json:"booked_slots"`
	PricePerHour   float64         `json:"price_per_hour"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
