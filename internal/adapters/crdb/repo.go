package crdb

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"

	confirmedSlotIndex = "bookings_confirmed_slot"
	maxTxAttempts      = 3
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool and checks that the cluster answers.
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, domain.Persistence(err, "open crdb pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.Persistence(err, "ping crdb")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS turfs (
		id STRING PRIMARY KEY,
		name STRING NOT NULL,
		location STRING NOT NULL DEFAULT '',
		description STRING NOT NULL DEFAULT '',
		amenities STRING[] NOT NULL DEFAULT ARRAY[],
		size STRING NOT NULL DEFAULT '',
		surface_type STRING NOT NULL DEFAULT '',
		price_per_hour FLOAT8 NOT NULL,
		available_hours STRING[] NOT NULL,
		images STRING[] NOT NULL DEFAULT ARRAY[],
		rating FLOAT8 NOT NULL DEFAULT 0,
		total_reviews INT8 NOT NULL DEFAULT 0,
		seq INT8 NOT NULL DEFAULT unique_rowid()
	)`,
	`ALTER TABLE turfs ADD COLUMN IF NOT EXISTS seq INT8 NOT NULL DEFAULT unique_rowid()`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id STRING PRIMARY KEY,
		seq INT8 NOT NULL UNIQUE,
		turf_id STRING NOT NULL REFERENCES turfs (id),
		customer_name STRING NOT NULL,
		customer_phone STRING NOT NULL,
		customer_email STRING NOT NULL DEFAULT '',
		booking_date STRING NOT NULL,
		time_slot STRING NOT NULL,
		duration INT8 NOT NULL,
		status STRING NOT NULL CHECK (status IN ('confirmed', 'cancelled')),
		created_at TIMESTAMPTZ NOT NULL,
		cancelled_at TIMESTAMPTZ NULL,
		total_amount FLOAT8 NOT NULL,
		UNIQUE INDEX ` + confirmedSlotIndex + ` (turf_id, booking_date, time_slot) WHERE status = 'confirmed'
	)`,
	`CREATE TABLE IF NOT EXISTS booking_counter (
		id INT8 PRIMARY KEY,
		next_seq INT8 NOT NULL
	)`,
	`INSERT INTO booking_counter (id, next_seq) VALUES (1, 1) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type STRING NOT NULL,
		aggregate_id STRING NOT NULL,
		event_type STRING NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ NULL,
		status STRING NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key STRING NOT NULL DEFAULT '',
		INDEX outbox_pending (status, created_at)
	)`,
}

// Migrate creates the tables if they are missing. It is safe to run on every start.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return domain.Persistence(err, "migrate")
		}
	}
	return nil
}

// WithTx runs fn in a SERIALIZABLE transaction. Serialization failures surface as
// ErrSerializationFailure, a second confirmed booking for a slot as ErrSlotTaken.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.Persistence(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// retryTx repeats WithTx while the cluster asks the client to retry.
func (r *Repository) retryTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = r.WithTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
	}
	return err
}

func classify(err error) error {
	if errors.IsAny(err, domain.ErrNotFound, domain.ErrSlotTaken, domain.ErrAlreadyCancelled, domain.ErrSerializationFailure) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == SerializationFailureCode:
			return errors.Wrap(domain.ErrSerializationFailure, pgErr.Message)
		case pgErr.Code == UniqueViolationCode && (pgErr.ConstraintName == confirmedSlotIndex ||
			strings.Contains(pgErr.Message, confirmedSlotIndex)):
			return errors.Wrap(domain.ErrSlotTaken, pgErr.Detail)
		}
	}
	return domain.Persistence(err, "crdb")
}

const venueColumns = `id, name, location, description, amenities, size, surface_type,
	price_per_hour, available_hours, images, rating, total_reviews`

// Venues returns the catalogue in insertion order. Updates keep a venue's position.
func (r *Repository) Venues(ctx context.Context) ([]domain.Venue, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+venueColumns+` FROM turfs ORDER BY seq, id`)
	if err != nil {
		return nil, domain.Persistence(err, "query turfs")
	}
	defer rows.Close()

	venues := []domain.Venue{}
	for rows.Next() {
		var v domain.Venue
		var reviews int64
		err := rows.Scan(&v.ID, &v.Name, &v.Location, &v.Description, &v.Amenities, &v.Size, &v.SurfaceType,
			&v.PricePerHour, &v.AvailableHours, &v.Images, &v.Rating, &reviews)
		if err != nil {
			return nil, domain.Persistence(err, "scan turf")
		}
		v.TotalReviews = int(reviews)
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence(err, "query turfs")
	}
	return venues, nil
}

func (r *Repository) UpsertVenue(ctx context.Context, v domain.Venue) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO turfs (`+venueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, location = excluded.location, description = excluded.description,
			amenities = excluded.amenities, size = excluded.size, surface_type = excluded.surface_type,
			price_per_hour = excluded.price_per_hour, available_hours = excluded.available_hours,
			images = excluded.images, rating = excluded.rating, total_reviews = excluded.total_reviews`,
		v.ID, v.Name, v.Location, v.Description, orEmpty(v.Amenities), v.Size, v.SurfaceType,
		v.PricePerHour, orEmpty(v.AvailableHours), orEmpty(v.Images), v.Rating, v.TotalReviews)
	if err != nil {
		return domain.Persistence(err, "upsert turf "+v.ID)
	}
	return nil
}

const bookingColumns = `id, turf_id, customer_name, customer_phone, customer_email, booking_date,
	time_slot, duration, status, created_at, cancelled_at, total_amount`

func (r *Repository) Bookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
	}
	add("status", string(filter.Status))
	add("turf_id", filter.VenueID)
	add("booking_date", filter.Date)

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.Persistence(err, "query bookings")
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.Persistence(err, "scan booking")
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence(err, "query bookings")
	}
	return bookings, nil
}

func (r *Repository) Booking(ctx context.Context, id string) (domain.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	if err != nil {
		return domain.Booking{}, domain.Persistence(err, "get booking")
	}
	return b, nil
}

// InsertBooking takes the next value of the counter row and stores the booking together with
// its booking.created outbox record.
func (r *Repository) InsertBooking(ctx context.Context, build func(seq int64) domain.Booking) (domain.Booking, error) {
	var b domain.Booking
	err := r.retryTx(ctx, func(tx pgx.Tx) error {
		var seq int64
		err := tx.QueryRow(ctx,
			`UPDATE booking_counter SET next_seq = next_seq + 1 WHERE id = 1 RETURNING next_seq - 1`,
		).Scan(&seq)
		if err != nil {
			return err
		}

		b = build(seq)
		_, err = tx.Exec(ctx, `INSERT INTO bookings (seq, `+bookingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			seq, b.ID, b.VenueID, b.CustomerName, b.CustomerPhone, b.CustomerEmail, b.Date,
			b.TimeSlot, b.Duration, string(b.Status), b.CreatedAt, b.CancelledAt, b.TotalAmount)
		if err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, domain.NewBookingEvent(domain.EventBookingCreated, b, b.CreatedAt))
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *Repository) CancelBooking(ctx context.Context, id string, at time.Time) (domain.Booking, error) {
	var b domain.Booking
	err := r.retryTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
		var err error
		b, err = scanBooking(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(domain.ErrNotFound, "booking %s", id)
		}
		if err != nil {
			return err
		}
		if err := b.Cancel(at); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE bookings SET status = $2, cancelled_at = $3 WHERE id = $1`,
			id, string(b.Status), b.CancelledAt)
		if err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, domain.NewBookingEvent(domain.EventBookingCancelled, b, at))
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *Repository) appendEvent(ctx context.Context, tx pgx.Tx, ev domain.BookingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.InsertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   ev.Booking.ID,
		EventType:     ev.Type,
		Payload:       payload,
		DedupeKey:     ev.ID.String(),
	})
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var (
		b        domain.Booking
		status   string
		duration int64
	)
	err := row.Scan(&b.ID, &b.VenueID, &b.CustomerName, &b.CustomerPhone, &b.CustomerEmail, &b.Date,
		&b.TimeSlot, &duration, &status, &b.CreatedAt, &b.CancelledAt, &b.TotalAmount)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)
	b.Duration = int(duration)
	return b, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
