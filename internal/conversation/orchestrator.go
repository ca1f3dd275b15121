package conversation

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	apology      = "I apologize, but I encountered an error while processing your request. Please try again."
	storeTrouble = "Sorry, I can't reach the booking system right now. Please try again in a moment."

	lockStripes = 64
)

// Completer produces the assistant's next turn. The last entry of history is the user's
// new message.
type Completer interface {
	Complete(ctx context.Context, system string, history []domain.ChatMessage) (string, error)
}

// BookingService is the part of the booking store the orchestrator drives.
type BookingService interface {
	ListVenues(ctx context.Context) ([]domain.Venue, error)
	Availability(ctx context.Context, venueID, date string) (domain.Availability, error)
	ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
	CreateBooking(ctx context.Context, req domain.BookingRequest) (domain.Booking, error)
	CancelBooking(ctx context.Context, id string) (domain.Booking, error)
}

// UnavailableCompleter stands in when no completion service is configured.
type UnavailableCompleter struct{}

func (UnavailableCompleter) Complete(context.Context, string, []domain.ChatMessage) (string, error) {
	return "", errors.Wrap(domain.ErrExternalService, "no completion service configured")
}

type Orchestrator struct {
	store     BookingService
	completer Completer
	sessions  SessionStore
	logger    observability.Logger
	timeout   time.Duration
	now       func() time.Time

	// Turns of one session run one at a time.
	locks [lockStripes]sync.Mutex
}

type Option func(*Orchestrator)

func WithCompletionTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(store BookingService, completer Completer, sessions SessionStore, logger observability.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		completer: completer,
		sessions:  sessions,
		logger:    logger,
		timeout:   30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessMessage answers one user turn of the given session. It always returns a reply;
// failures are logged and described in the text.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID, text string) string {
	mu := o.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	log := o.logger.WithField("session_id", sessionID)
	history, _, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		log.WithError(err).Warn("load session, starting fresh")
	}
	conv := NewConversation(sessionID, history)
	conv.Append(domain.RoleUser, text)

	var reply string
	if cmd, arg := matchCommand(text); cmd != cmdNone {
		observability.ChatCommands.WithLabelValues(string(cmd)).Inc()
		reply = o.runCommand(ctx, cmd, arg)
	} else {
		reply = o.converse(ctx, conv)
	}

	conv.Append(domain.RoleAssistant, reply)
	if err := o.sessions.Save(ctx, sessionID, conv.Messages()); err != nil {
		log.WithError(err).Warn("save session")
	}
	return reply
}

// EndSession forgets the session's history.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	mu := o.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()
	return o.sessions.Delete(ctx, sessionID)
}

func (o *Orchestrator) converse(ctx context.Context, conv *Conversation) string {
	venues, err := o.store.ListVenues(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("list turfs for prompt")
	}

	reply, err := o.complete(ctx, conv, systemPrompt(venues, o.now()))
	if err != nil {
		observability.CompletionFailures.Inc()
		o.logger.WithError(err).WithField("session_id", conv.ID).Error("completion failed")
		return apology
	}

	defaultVenue := ""
	if len(venues) == 1 {
		defaultVenue = venues[0].ID
	}
	intent, text := ParseIntent(reply, defaultVenue)
	switch intent.Kind {
	case IntentReadyToBook:
		return joinReply(text, o.book(ctx, intent.Request, venues))
	case IntentAwaitingField:
		return joinReply(text, questionFor(intent.Field))
	}
	if text == "" {
		return apology
	}
	return text
}

func (o *Orchestrator) complete(ctx context.Context, conv *Conversation, system string) (string, error) {
	ctx, span := otel.Tracer("conversation").Start(ctx, "completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", conv.ID),
		attribute.Int("history.len", conv.Len()),
	)

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := o.completer.Complete(ctx, system, conv.Messages())
	observability.CompletionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		if !errors.Is(err, domain.ErrExternalService) {
			err = errors.Mark(err, domain.ErrExternalService)
		}
		return "", err
	}
	return reply, nil
}

// book creates the booking the model handed over and phrases the outcome.
func (o *Orchestrator) book(ctx context.Context, req domain.BookingRequest, venues []domain.Venue) string {
	b, err := o.store.CreateBooking(ctx, req)
	if err == nil {
		name := b.VenueID
		for _, v := range venues {
			if v.ID == b.VenueID {
				name = v.Name
			}
		}
		return fmt.Sprintf("✅ Booking confirmed! Your booking ID is %s: %s on %s at %s for %s. Total amount: ₹%s.",
			b.ID, name, b.Date, b.TimeSlot, formatHours(b.Duration), formatAmount(b.TotalAmount))
	}

	log := o.logger.WithError(err).WithField("turf_id", req.VenueID)
	switch {
	case errors.Is(err, domain.ErrSlotTaken):
		msg := fmt.Sprintf("Sorry, the %s slot on %s is already booked.", req.TimeSlot, req.Date)
		return msg + " " + o.alternatives(ctx, req.VenueID, req.Date)
	case errors.IsAny(err, domain.ErrSlotBusy, domain.ErrSerializationFailure):
		return fmt.Sprintf("Someone else is booking the %s slot on %s right now. Please try again in a moment.", req.TimeSlot, req.Date)
	case errors.Is(err, domain.ErrInvalidSlot):
		msg := fmt.Sprintf("Sorry, %s is not a bookable time slot.", req.TimeSlot)
		return msg + " " + o.alternatives(ctx, req.VenueID, req.Date)
	case errors.Is(err, domain.ErrUnknownVenue):
		names := make([]string, len(venues))
		for i, v := range venues {
			names[i] = v.Name
		}
		return "Sorry, I couldn't find that turf. We have: " + strings.Join(names, ", ") + "."
	case errors.Is(err, domain.ErrInvalidInput):
		return "Some booking details look incomplete or invalid. Could you double-check your name, phone number, date (YYYY-MM-DD) and time slot (HH:00)?"
	default:
		log.Error("create booking from chat")
		return "Sorry, I couldn't save your booking right now. Please try again in a moment."
	}
}

func (o *Orchestrator) alternatives(ctx context.Context, venueID, date string) string {
	av, err := o.store.Availability(ctx, venueID, date)
	if err != nil {
		return "Please pick another time."
	}
	if len(av.AvailableSlots) == 0 {
		return "There are no free slots left that day. Would you like to try another date?"
	}
	return "Free slots that day: " + listSlots(av.AvailableSlots) + "."
}

func (o *Orchestrator) lock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &o.locks[h.Sum32()%lockStripes]
}

func joinReply(text, outcome string) string {
	if text == "" {
		return outcome
	}
	return text + "\n\n" + outcome
}
