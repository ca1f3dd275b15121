package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robertarktes/turf-booking-assistant/internal/app"
	"github.com/robertarktes/turf-booking-assistant/internal/config"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

// scriptedCompleter hands over a booking for slot once the user says "confirm".
type scriptedCompleter struct {
	slot string
}

func (c scriptedCompleter) Complete(_ context.Context, _ string, history []domain.ChatMessage) (string, error) {
	if !strings.Contains(history[len(history)-1].Content, "confirm") {
		return "Sure! What's your name?", nil
	}
	return "Great, booking it now.\nBOOKING_READY {\"turf_id\": \"turf_001\", \"customer_name\": \"Meera\", " +
		"\"customer_phone\": \"9811111111\", \"date\": \"2025-06-02\", \"time_slot\": \"" + c.slot + "\", \"duration\": \"2\"}", nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		StoreBackend:      config.BackendFile,
		DataFile:          filepath.Join(t.TempDir(), "bookings.json"),
		CompletionTimeout: 5 * time.Second,
		SessionTTL:        time.Hour,
		ChatRateLimit:     100,
		IdempotencyTTL:    time.Hour,
		SlotLockTTL:       5 * time.Second,
	}
}

func newApp(t *testing.T, cfg *config.Config, slot string) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, observability.NewNopLogger(),
		app.WithCompleter(scriptedCompleter{slot: slot}),
		app.WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	a.Start()
	t.Cleanup(a.Close)
	return a
}

func call(t *testing.T, h http.Handler, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func chat(t *testing.T, h http.Handler, session, message string) string {
	t.Helper()
	code, out := call(t, h, http.MethodPost, "/chat", map[string]string{"session_id": session, "message": message})
	require.Equal(t, http.StatusOK, code)
	return out["response"].(string)
}

func TestApp_ChatBookingFlow(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg, "18:00")

	assert.Equal(t, "No bookings found.", chat(t, a.Handler, "s1", "show bookings"))
	assert.Equal(t, "Sure! What's your name?", chat(t, a.Handler, "s1", "I want to book a turf"))

	reply := chat(t, a.Handler, "s1", "Meera, 9811111111, tomorrow at 6pm for 2 hours, confirm")
	assert.Contains(t, reply, "Great, booking it now.")
	assert.Contains(t, reply, "Your booking ID is BK0001")
	assert.Contains(t, reply, "₹3000")
	assert.NotContains(t, reply, "BOOKING_READY")

	code, out := call(t, a.Handler, http.MethodGet, "/api/availability/turf_001/2025-06-02", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, out["booked_slots"], "18:00")
	assert.NotContains(t, out["available_slots"], "18:00")

	// A second customer asking for the same slot is told it is gone.
	chat(t, a.Handler, "s2", "hi")
	reply = chat(t, a.Handler, "s2", "book it, confirm")
	assert.Contains(t, reply, "already booked")
	assert.Contains(t, reply, "Free slots that day")

	assert.Contains(t, chat(t, a.Handler, "s1", "show bookings"), "BK0001")
	assert.Contains(t, chat(t, a.Handler, "s1", "cancel BK0001"), "BK0001")
	assert.Equal(t, "No confirmed bookings at the moment.", chat(t, a.Handler, "s1", "my bookings"))

	code, _ = call(t, a.Handler, http.MethodDelete, "/chat/s1", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestApp_RestartKeepsBookings(t *testing.T) {
	cfg := testConfig(t)
	first := newApp(t, cfg, "07:00")

	code, out := call(t, first.Handler, http.MethodPost, "/api/book", map[string]interface{}{
		"turf_id":        "turf_001",
		"customer_name":  "Kiran",
		"customer_phone": "9833333333",
		"date":           "2025-06-03",
		"time_slot":      "07:00",
	})
	require.Equal(t, http.StatusCreated, code, out)
	first.Close()

	second := newApp(t, cfg, "08:00")
	code, out = call(t, second.Handler, http.MethodGet, "/api/bookings/BK0001", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Kiran", out["customer_name"])

	code, out = call(t, second.Handler, http.MethodPost, "/api/book", map[string]interface{}{
		"turf_id":        "turf_001",
		"customer_name":  "Kiran",
		"customer_phone": "9833333333",
		"date":           "2025-06-03",
		"time_slot":      "07:00",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, out["success"])

	venues, err := second.Store.ListVenues(context.Background())
	require.NoError(t, err)
	assert.Len(t, venues, 1)

	code, out = call(t, second.Handler, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", out["status"])
}

func TestApp_WithRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = redisContainer.Terminate(ctx) })

	addr, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cfg.RedisAddr = addr
	a := newApp(t, cfg, "19:00")

	assert.Equal(t, "Sure! What's your name?", chat(t, a.Handler, "r1", "hello"))
	assert.Contains(t, chat(t, a.Handler, "r1", "Meera, confirm"), "BK0001")

	code, out := call(t, a.Handler, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, code)
	checks := out["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["redis"])
	assert.Equal(t, "ok", checks["store"])
}
