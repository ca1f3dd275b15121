package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/robertarktes/turf-booking-assistant/internal/adapters/mongo"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
)

func startDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mongoContainer.Terminate(ctx) })

	uri, err := mongoContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	db, err := mongoadapter.Connect(ctx, uri, "turf_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Client().Disconnect(ctx) })
	return db
}

func TestAuditAndProjection(t *testing.T) {
	db := startDatabase(t)
	ctx := context.Background()
	logger := observability.NewNopLogger()
	audit := mongoadapter.NewAuditLogger(db, logger)
	projection := mongoadapter.NewBookingProjection(db, logger)

	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	b := domain.Booking{
		ID: "BK0001", VenueID: "turf_001", CustomerName: "Meera", Date: "2025-06-01",
		TimeSlot: "07:00", Duration: 1, Status: domain.StatusConfirmed, CreatedAt: created, TotalAmount: 1500,
	}
	createdEv := domain.NewBookingEvent(domain.EventBookingCreated, b, created)

	require.NoError(t, audit.LogBookingEvent(ctx, createdEv))
	require.NoError(t, audit.LogBookingEvent(ctx, createdEv))
	require.NoError(t, projection.Apply(ctx, createdEv))

	cancelledAt := created.Add(time.Hour)
	require.NoError(t, b.Cancel(cancelledAt))
	cancelledEv := domain.NewBookingEvent(domain.EventBookingCancelled, b, cancelledAt)
	require.NoError(t, audit.LogBookingEvent(ctx, cancelledEv))
	require.NoError(t, projection.Apply(ctx, cancelledEv))

	// A late redelivery of the creation must not undo the cancellation.
	require.NoError(t, projection.Apply(ctx, createdEv))

	history, err := audit.History(ctx, "BK0001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.EventBookingCreated, history[0].Action)
	assert.Equal(t, domain.EventBookingCancelled, history[1].Action)

	doc, err := projection.Get(ctx, "BK0001")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusCancelled), doc.Status)
	require.NotNil(t, doc.CancelledAt)

	_, err = projection.Get(ctx, "BK0404")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
