package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/crdb"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pending []crdb.OutboxRecord
}

func (f *fakeSource) DrainOutbox(_ context.Context, limit int, publish func(crdb.OutboxRecord) error) (int, error) {
	n := 0
	for len(f.pending) > 0 && n < limit {
		if err := publish(f.pending[0]); err != nil {
			return n, err
		}
		f.pending = f.pending[1:]
		n++
	}
	return n, nil
}

func (f *fakeSource) OldestPending(context.Context) (time.Time, bool, error) {
	if len(f.pending) == 0 {
		return time.Time{}, false, nil
	}
	return f.pending[0].CreatedAt, true, nil
}

type fakeSink struct {
	failAfter int
	sent      []amqp.Publishing
	keys      []string
}

func (f *fakeSink) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	if f.failAfter >= 0 && len(f.sent) >= f.failAfter {
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, msg)
	f.keys = append(f.keys, key)
	return nil
}

func records(n int) []crdb.OutboxRecord {
	out := make([]crdb.OutboxRecord, n)
	for i := range out {
		out[i] = crdb.OutboxRecord{
			EventType: "booking.created",
			Payload:   []byte(`{}`),
			DedupeKey: string(rune('a' + i)),
			CreatedAt: time.Date(2025, 6, 1, 10, 0, i, 0, time.UTC),
		}
	}
	return out
}

func TestPublisher_Flush(t *testing.T) {
	src := &fakeSource{pending: records(5)}
	sink := &fakeSink{failAfter: -1}
	p := NewPublisher(src, sink, observability.NewNopLogger())
	p.batch = 2

	n := p.Flush(context.Background())

	assert.Equal(t, 5, n)
	assert.Empty(t, src.pending)
	require.Len(t, sink.sent, 5)
	assert.Equal(t, "a", sink.sent[0].MessageId)
	assert.Equal(t, "application/json", sink.sent[0].ContentType)
	assert.Equal(t, "booking.created", sink.keys[4])
}

func TestPublisher_FlushStopsOnFailure(t *testing.T) {
	src := &fakeSource{pending: records(4)}
	sink := &fakeSink{failAfter: 1}
	p := NewPublisher(src, sink, observability.NewNopLogger())

	n := p.Flush(context.Background())

	assert.Equal(t, 1, n)
	assert.Len(t, src.pending, 3)
	assert.Equal(t, "b", src.pending[0].DedupeKey)
}
