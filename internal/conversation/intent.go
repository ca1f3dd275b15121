package conversation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

// ReadyMarker starts the line with which the model hands over a confirmed booking.
const ReadyMarker = "BOOKING_READY"

type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentAwaitingField
	IntentReadyToBook
)

func (k IntentKind) String() string {
	switch k {
	case IntentAwaitingField:
		return "awaiting_field"
	case IntentReadyToBook:
		return "ready_to_book"
	default:
		return "none"
	}
}

// Intent is what a completion reply asks the orchestrator to do. Field is set for
// IntentAwaitingField, Request for IntentReadyToBook.
type Intent struct {
	Kind    IntentKind
	Field   string
	Request domain.BookingRequest
}

// requiredFields are asked for in this order.
var requiredFields = []string{"customer_name", "customer_phone", "date", "time_slot"}

var fieldAliases = map[string][]string{
	"turf_id":        {"turf_id", "turf", "venue_id"},
	"customer_name":  {"customer_name", "name"},
	"customer_phone": {"customer_phone", "phone", "phone_number"},
	"customer_email": {"customer_email", "email"},
	"date":           {"date"},
	"time_slot":      {"time_slot", "time", "slot"},
	"duration":       {"duration", "hours"},
}

// ParseIntent looks for the ready marker in reply. It returns the intent and the reply with the
// marker and its payload removed. defaultVenue fills in a missing turf id.
// Anything it cannot make sense of is IntentNone.
func ParseIntent(reply, defaultVenue string) (Intent, string) {
	idx := strings.Index(reply, ReadyMarker)
	if idx < 0 {
		return Intent{Kind: IntentNone}, strings.TrimSpace(reply)
	}

	before := reply[:idx]
	rest := reply[idx+len(ReadyMarker):]
	brace := strings.IndexByte(rest, '{')
	if brace < 0 {
		return Intent{Kind: IntentNone}, cleanup(before, rest)
	}

	dec := json.NewDecoder(strings.NewReader(rest[brace:]))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Intent{Kind: IntentNone}, cleanup(before, dropLine(rest))
	}
	after := rest[brace+int(dec.InputOffset()):]
	cleaned := cleanup(before, after)

	values := make(map[string]string, len(fieldAliases))
	for field, aliases := range fieldAliases {
		for _, alias := range aliases {
			if s, ok := stringValue(fields[alias]); ok && s != "" {
				values[field] = s
				break
			}
		}
	}
	if values["turf_id"] == "" {
		values["turf_id"] = defaultVenue
	}

	for _, field := range requiredFields {
		if values[field] == "" {
			return Intent{Kind: IntentAwaitingField, Field: field}, cleaned
		}
	}
	if values["turf_id"] == "" {
		return Intent{Kind: IntentAwaitingField, Field: "turf_id"}, cleaned
	}

	duration, ok := parseDuration(values["duration"])
	if !ok {
		return Intent{Kind: IntentAwaitingField, Field: "duration"}, cleaned
	}

	req := domain.BookingRequest{
		VenueID:       values["turf_id"],
		CustomerName:  values["customer_name"],
		CustomerPhone: values["customer_phone"],
		CustomerEmail: values["customer_email"],
		Date:          values["date"],
		TimeSlot:      normalizeSlot(values["time_slot"]),
		Duration:      duration,
	}
	return Intent{Kind: IntentReadyToBook, Request: req}, cleaned
}

// parseDuration accepts whole hours written as 2, 2.0 or "2". An absent value is 0 and
// takes the store default.
func parseDuration(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// normalizeSlot pads single digit hours: "7:00" becomes "07:00".
func normalizeSlot(s string) string {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok && len(h) == 1 {
		return "0" + h + ":" + m
	}
	return s
}

// dropLine discards the remainder of the marker line.
func dropLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

func cleanup(before, after string) string {
	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)
	switch {
	case before == "":
		return after
	case after == "":
		return before
	}
	return before + "\n\n" + after
}
