package crdb_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/crdb"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRepository(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `CREATE DATABASE IF NOT EXISTS turf`); err != nil {
		t.Fatal(err)
	}
	pool.Close()

	repo, err := crdb.Connect(ctx, dsn+"/turf?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(repo.Close)

	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, v := range domain.DefaultVenues() {
		if err := repo.UpsertVenue(ctx, v); err != nil {
			t.Fatal(err)
		}
	}
	return repo
}

func builder(venue domain.Venue, date, slot string) func(int64) domain.Booking {
	return func(seq int64) domain.Booking {
		return domain.NewBooking(seq, venue, domain.BookingRequest{
			VenueID:       venue.ID,
			CustomerName:  "Ravi",
			CustomerPhone: "9000000001",
			Date:          date,
			TimeSlot:      slot,
			Duration:      2,
		}, time.Now().UTC().Truncate(time.Microsecond))
	}
}

func TestRepository_Bookings(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	venue := domain.DefaultVenues()[0]

	venues, err := repo.Venues(ctx)
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, venue.AvailableHours, venues[0].AvailableHours)
	assert.Equal(t, venue.Amenities, venues[0].Amenities)

	first, err := repo.InsertBooking(ctx, builder(venue, "2025-06-01", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, "BK0001", first.ID)
	assert.Equal(t, 3000.0, first.TotalAmount)

	_, err = repo.InsertBooking(ctx, builder(venue, "2025-06-01", "10:00"))
	if !errors.Is(err, domain.ErrSlotTaken) {
		t.Fatalf("expected slot taken, got %v", err)
	}

	second, err := repo.InsertBooking(ctx, builder(venue, "2025-06-01", "11:00"))
	require.NoError(t, err)
	// The rolled back attempt consumed no number.
	assert.Equal(t, "BK0002", second.ID)

	cancelled, err := repo.CancelBooking(ctx, first.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = repo.CancelBooking(ctx, first.ID, time.Now())
	assert.True(t, errors.Is(err, domain.ErrAlreadyCancelled), "got %v", err)
	_, err = repo.CancelBooking(ctx, "BK9999", time.Now())
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)

	rebooked, err := repo.InsertBooking(ctx, builder(venue, "2025-06-01", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, "BK0003", rebooked.ID)

	confirmed, err := repo.Bookings(ctx, domain.BookingFilter{Status: domain.StatusConfirmed, Date: "2025-06-01"})
	require.NoError(t, err)
	require.Len(t, confirmed, 2)
	assert.Equal(t, "BK0002", confirmed[0].ID)
	assert.Equal(t, "BK0003", confirmed[1].ID)

	got, err := repo.Booking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestRepository_ConcurrentInsert(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	venue := domain.DefaultVenues()[0]

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		taken   int
		unknown []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.InsertBooking(ctx, builder(venue, "2025-07-01", "18:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.IsAny(err, domain.ErrSlotTaken, domain.ErrSerializationFailure):
				taken++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, taken)
}

func TestRepository_Outbox(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	venue := domain.DefaultVenues()[0]

	b, err := repo.InsertBooking(ctx, builder(venue, "2025-06-02", "09:00"))
	require.NoError(t, err)
	_, err = repo.CancelBooking(ctx, b.ID, time.Now())
	require.NoError(t, err)

	_, pending, err := repo.OldestPending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	n, err := repo.DrainOutbox(ctx, 10, func(crdb.OutboxRecord) error {
		return errors.New("broker down")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	var types []string
	n, err = repo.DrainOutbox(ctx, 10, func(rec crdb.OutboxRecord) error {
		var ev domain.BookingEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return err
		}
		assert.Equal(t, b.ID, ev.Booking.ID)
		assert.Equal(t, ev.ID.String(), rec.DedupeKey)
		types = append(types, rec.EventType)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{domain.EventBookingCreated, domain.EventBookingCancelled}, types)

	_, pending, err = repo.OldestPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestRepository_VenuesKeepInsertionOrder(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()

	for _, id := range []string{"turf_b", "turf_a"} {
		require.NoError(t, repo.UpsertVenue(ctx, domain.Venue{ID: id, Name: id, PricePerHour: 1000, AvailableHours: []string{"06:00"}}))
	}
	require.NoError(t, repo.UpsertVenue(ctx, domain.Venue{ID: "turf_001", Name: "renamed", PricePerHour: 1800, AvailableHours: []string{"06:00"}}))

	venues, err := repo.Venues(ctx)
	require.NoError(t, err)
	require.Len(t, venues, 3)
	assert.Equal(t, []string{"turf_001", "turf_b", "turf_a"}, []string{venues[0].ID, venues[1].ID, venues[2].ID})
	assert.Equal(t, "renamed", venues[0].Name)
	assert.Equal(t, 1800.0, venues[0].PricePerHour)
}
