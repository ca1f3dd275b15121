package config_test

import (
	"testing"
	"time"

	"github.com/robertarktes/turf-booking-assistant/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("COMPLETION_TIMEOUT", "")
	t.Setenv("CHAT_RATE_LIMIT", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.BackendFile, cfg.StoreBackend)
	assert.Equal(t, "bookings.json", cfg.DataFile)
	assert.Equal(t, 30*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, 30, cfg.ChatRateLimit)
	assert.Equal(t, 10*time.Second, cfg.SlotLockTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "crdb")
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/turf?sslmode=disable")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("CHAT_RATE_LIMIT", "5")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.BackendCRDB, cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.ChatRateLimit)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "sqlite"}},
		{name: "crdb without dsn", env: map[string]string{"STORE_BACKEND": "crdb", "CRDB_DSN": ""}},
		{name: "bad timeout", env: map[string]string{"COMPLETION_TIMEOUT": "soon"}},
		{name: "negative ttl", env: map[string]string{"SESSION_TTL": "-1m"}},
		{name: "zero rate limit", env: map[string]string{"CHAT_RATE_LIMIT": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
