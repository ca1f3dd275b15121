package rateLimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "1.2.3.4"), "hit %d", i)
	}
	assert.False(t, l.Allow(ctx, "1.2.3.4"))
	assert.True(t, l.Allow(ctx, "5.6.7.8"))
}

func TestLocalLimiter_SweepDropsIdleKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow(ctx, "idle"))
	assert.True(t, l.Allow(ctx, "busy"))
	assert.True(t, l.Allow(ctx, "busy"))
	assert.False(t, l.Allow(ctx, "busy"))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 0, l.Sweep())
	assert.True(t, l.Allow(ctx, "busy"))

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	// The active key kept its partly drained bucket; a fresh one would allow two hits.
	assert.True(t, l.Allow(ctx, "busy"))
	assert.False(t, l.Allow(ctx, "busy"))
	assert.True(t, l.Allow(ctx, "idle"))
	assert.True(t, l.Allow(ctx, "idle"))
}
