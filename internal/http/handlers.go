package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"golang.org/x/sync/errgroup"
)

type BookingStore interface {
	ListVenues(ctx context.Context) ([]domain.Venue, error)
	GetVenue(ctx context.Context, id string) (domain.Venue, error)
	Availability(ctx context.Context, venueID, date string) (domain.Availability, error)
	ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	CreateBooking(ctx context.Context, req domain.BookingRequest) (domain.Booking, error)
	CancelBooking(ctx context.Context, id string) (domain.Booking, error)
}

type ChatService interface {
	ProcessMessage(ctx context.Context, sessionID, text string) string
	EndSession(ctx context.Context, sessionID string) error
}

// Check reports whether a dependency is usable. Used by /readyz.
type Check func(ctx context.Context) error

type Handlers struct {
	store  BookingStore
	chat   ChatService
	logger observability.Logger
	checks map[string]Check
	now    func() time.Time
}

func NewHandlers(store BookingStore, chat ChatService, logger observability.Logger, checks map[string]Check) *Handlers {
	return &Handlers{
		store:  store,
		chat:   chat,
		logger: logger,
		checks: checks,
		now:    time.Now,
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
}

// Chat always answers 200 once the message is accepted; failures are described in the text.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply := h.chat.ProcessMessage(r.Context(), req.SessionID, req.Message)
	writeJSON(w, http.StatusOK, chatResponse{
		Response:  reply,
		Timestamp: h.now().Format("15:04"),
		SessionID: req.SessionID,
	})
}

func (h *Handlers) EndChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListTurfs(w http.ResponseWriter, r *http.Request) {
	venues, err := h.store.ListVenues(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

func (h *Handlers) GetTurf(w http.ResponseWriter, r *http.Request) {
	venue, err := h.store.GetVenue(r.Context(), chi.URLParam(r, "turfID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.BookingFilter{
		Status:  domain.BookingStatus(q.Get("status")),
		VenueID: q.Get("turf_id"),
		Date:    q.Get("date"),
	}
	switch filter.Status {
	case "", domain.StatusConfirmed, domain.StatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "status must be confirmed or cancelled")
		return
	}

	bookings, err := h.store.ListBookings(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetBooking(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) Book(w http.ResponseWriter, r *http.Request) {
	var req domain.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := h.store.CreateBooking(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"booking": b,
		"message": "Booking confirmed! Your booking ID is " + b.ID,
	})
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.CancelBooking(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Booking " + b.ID + " cancelled successfully",
		"booking": b,
	})
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must use the YYYY-MM-DD format")
		return
	}
	av, err := h.store.Availability(r.Context(), chi.URLParam(r, "turfID"), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, av)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz runs every dependency check concurrently and reports each result.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
		g       errgroup.Group
	)
	for name, check := range h.checks {
		name, check := name, check
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = err.Error()
				return errors.Wrap(err, name)
			}
			results[name] = "ok"
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "checks": results})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready", "checks": results})
}

// statusFor maps store failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsAny(err, domain.ErrSlotTaken, domain.ErrSlotBusy, domain.ErrAlreadyCancelled, domain.ErrSerializationFailure):
		return http.StatusConflict
	case errors.IsAny(err, domain.ErrNotFound, domain.ErrUnknownVenue):
		return http.StatusNotFound
	case errors.IsAny(err, domain.ErrInvalidInput, domain.ErrInvalidSlot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
