// Package booking owns the turf catalogue and the booking record set: availability,
// conflict prevention and the confirmed → cancelled lifecycle.
package booking

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
)

// Repository persists venues and bookings. Implementations return bookings in creation order.
type Repository interface {
	Venues(ctx context.Context) ([]domain.Venue, error)
	UpsertVenue(ctx context.Context, v domain.Venue) error
	Bookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
	Booking(ctx context.Context, id string) (domain.Booking, error)
	// InsertBooking allocates the next sequence number, builds the booking from it and stores
	// it atomically. It returns ErrSlotTaken if a confirmed booking already holds the slot.
	InsertBooking(ctx context.Context, build func(seq int64) domain.Booking) (domain.Booking, error)
	CancelBooking(ctx context.Context, id string, at time.Time) (domain.Booking, error)
}

// SlotLocker guards a slot across processes while it is checked and written.
type SlotLocker interface {
	AcquireSlotLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseSlotLock(ctx context.Context, key, token string) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.BookingEvent) error
}

const lockAttempts = 4

type Store struct {
	repo      Repository
	logger    observability.Logger
	locker    SlotLocker
	lockTTL   time.Duration
	lockWait  time.Duration
	publisher EventPublisher
	now       func() time.Time

	// mu serialises check-and-insert within the process.
	mu sync.Mutex
}

type Option func(*Store)

func WithSlotLocker(l SlotLocker, ttl time.Duration) Option {
	return func(s *Store) {
		s.locker = l
		s.lockTTL = ttl
	}
}

// WithLockWait sets the first pause before retrying a slot lock held elsewhere. Each retry
// doubles it.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) { s.lockWait = d }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo Repository, logger observability.Logger, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		logger:   logger,
		lockTTL:  10 * time.Second,
		lockWait: 50 * time.Millisecond,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts the venues whose identifiers are not stored yet.
func (s *Store) Seed(ctx context.Context, venues []domain.Venue) error {
	existing, err := s.repo.Venues(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, v := range existing {
		known[v.ID] = true
	}
	for _, v := range venues {
		if known[v.ID] {
			continue
		}
		if err := s.repo.UpsertVenue(ctx, v); err != nil {
			return err
		}
		s.logger.WithField("turf_id", v.ID).Info("seeded turf")
	}
	return nil
}

func (s *Store) ListVenues(ctx context.Context) ([]domain.Venue, error) {
	return s.repo.Venues(ctx)
}

func (s *Store) GetVenue(ctx context.Context, id string) (domain.Venue, error) {
	venues, err := s.repo.Venues(ctx)
	if err != nil {
		return domain.Venue{}, err
	}
	for _, v := range venues {
		if v.ID == id {
			return v, nil
		}
	}
	return domain.Venue{}, errors.Wrapf(domain.ErrUnknownVenue, "turf %q", id)
}

// UpdateVenue replaces the details of an existing venue. Bookings keep the amount they were
// created with.
func (s *Store) UpdateVenue(ctx context.Context, v domain.Venue) error {
	if _, err := s.GetVenue(ctx, v.ID); err != nil {
		return err
	}
	if v.PricePerHour <= 0 {
		return errors.Wrap(domain.ErrInvalidInput, "price_per_hour must be positive")
	}
	if len(v.AvailableHours) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "available_hours must not be empty")
	}
	return s.repo.UpsertVenue(ctx, v)
}

// IsAvailable is true unless a confirmed booking holds exactly this venue, date and slot label.
func (s *Store) IsAvailable(ctx context.Context, venueID, date, slot string) (bool, error) {
	bookings, err := s.repo.Bookings(ctx, domain.BookingFilter{
		Status:  domain.StatusConfirmed,
		VenueID: venueID,
		Date:    date,
	})
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if b.Holds(venueID, date, slot) {
			return false, nil
		}
	}
	return true, nil
}

// Availability evaluates IsAvailable for every slot on the venue's grid.
func (s *Store) Availability(ctx context.Context, venueID, date string) (domain.Availability, error) {
	venue, err := s.GetVenue(ctx, venueID)
	if err != nil {
		return domain.Availability{}, err
	}
	confirmed, err := s.repo.Bookings(ctx, domain.BookingFilter{
		Status:  domain.StatusConfirmed,
		VenueID: venueID,
		Date:    date,
	})
	if err != nil {
		return domain.Availability{}, err
	}
	booked := make(map[string]bool, len(confirmed))
	for _, b := range confirmed {
		booked[b.TimeSlot] = true
	}

	av := domain.Availability{
		VenueID:        venue.ID,
		Date:           date,
		Slots:          make(map[string]bool, len(venue.AvailableHours)),
		AvailableSlots: []string{},
		BookedSlots:    []string{},
		PricePerHour:   venue.PricePerHour,
	}
	for _, slot := range venue.AvailableHours {
		free := !booked[slot]
		av.Slots[slot] = free
		if free {
			av.AvailableSlots = append(av.AvailableSlots, slot)
		} else {
			av.BookedSlots = append(av.BookedSlots, slot)
		}
	}
	return av, nil
}

func (s *Store) CreateBooking(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.Booking{}, err
	}
	venue, err := s.GetVenue(ctx, req.VenueID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !venue.HasSlot(req.TimeSlot) {
		return domain.Booking{}, errors.Wrapf(domain.ErrInvalidSlot, "%s at turf %s", req.TimeSlot, venue.ID)
	}

	b, err := s.insert(ctx, venue, req)
	if errors.Is(err, domain.ErrSlotTaken) {
		observability.SlotConflicts.Inc()
		return domain.Booking{}, err
	}
	if err != nil {
		return domain.Booking{}, err
	}

	observability.BookingsTotal.WithLabelValues("created").Inc()
	s.logger.WithField("booking_id", b.ID).WithField("turf_id", b.VenueID).Info("booking created")
	s.publish(ctx, domain.EventBookingCreated, b)
	return b, nil
}

func (s *Store) insert(ctx context.Context, venue domain.Venue, req domain.BookingRequest) (domain.Booking, error) {
	if s.locker != nil {
		key := slotKey(venue.ID, req.Date, req.TimeSlot)
		token, err := s.acquireSlot(ctx, key)
		if err != nil {
			return domain.Booking{}, errors.Wrapf(err, "%s on %s", req.TimeSlot, req.Date)
		}
		defer func() {
			if err := s.locker.ReleaseSlotLock(context.WithoutCancel(ctx), key, token); err != nil {
				s.logger.WithError(err).WithField("key", key).Warn("release slot lock")
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	free, err := s.IsAvailable(ctx, venue.ID, req.Date, req.TimeSlot)
	if err != nil {
		return domain.Booking{}, err
	}
	if !free {
		return domain.Booking{}, errors.Wrapf(domain.ErrSlotTaken, "%s on %s", req.TimeSlot, req.Date)
	}

	return s.repo.InsertBooking(ctx, func(seq int64) domain.Booking {
		return domain.NewBooking(seq, venue, req, s.now())
	})
}

// acquireSlot waits briefly for a slot lock held by another request, since that request may
// still fail and leave the slot free. It returns ErrSlotBusy if the lock stays held.
func (s *Store) acquireSlot(ctx context.Context, key string) (string, error) {
	wait := s.lockWait
	for attempt := 0; ; attempt++ {
		token, ok, err := s.locker.AcquireSlotLock(ctx, key, s.lockTTL)
		if err != nil {
			return "", errors.Wrap(err, "acquire slot lock")
		}
		if ok {
			return token, nil
		}
		if attempt == lockAttempts-1 {
			return "", errors.Wrap(domain.ErrSlotBusy, "slot lock held elsewhere")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (s *Store) CancelBooking(ctx context.Context, id string) (domain.Booking, error) {
	s.mu.Lock()
	b, err := s.repo.CancelBooking(ctx, id, s.now())
	s.mu.Unlock()
	if err != nil {
		return domain.Booking{}, err
	}

	observability.BookingsTotal.WithLabelValues("cancelled").Inc()
	s.logger.WithField("booking_id", b.ID).Info("booking cancelled")
	s.publish(ctx, domain.EventBookingCancelled, b)
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return s.repo.Booking(ctx, id)
}

func (s *Store) ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	return s.repo.Bookings(ctx, filter)
}

func (s *Store) publish(ctx context.Context, eventType string, b domain.Booking) {
	if s.publisher == nil {
		return
	}
	ev := domain.NewBookingEvent(eventType, b, s.now())
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("event", eventType).Warn("publish booking event")
	}
}

func slotKey(venueID, date, slot string) string {
	return venueID + ":" + date + ":" + slot
}
