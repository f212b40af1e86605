package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/cache"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue hands out payloads pushed onto its channel, or redis.Nil after the block timeout.
type fakeQueue struct {
	items chan string
}

func (q *fakeQueue) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	select {
	case item := <-q.items:
		return redis.NewStringSliceResult([]string{keys[0], item}, nil)
	case <-time.After(timeout):
		return redis.NewStringSliceResult(nil, redis.Nil)
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	}
}

type fakeSink struct {
	mu        sync.Mutex
	batches   [][]cache.MatchActionRecord
	abandoned []uuid.UUID
	insertErr error
}

func (f *fakeSink) InsertActions(_ context.Context, batch []cache.MatchActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSink) MarkAbandoned(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, id)
	return true, nil
}

func (f *fakeSink) inserted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func payload(t *testing.T, rec cache.MatchActionRecord) string {
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(data)
}

func newTestService(sink Sink, clock clockwork.Clock, batch int) (*Service, *fakeQueue) {
	logger, _ := test.NewNullLogger()
	q := &fakeQueue{items: make(chan string, 16)}
	return newService(q, sink, Options{
		BatchSize:     batch,
		FlushInterval: time.Hour,
		Inactivity:    10 * time.Minute,
		SweepInterval: time.Hour,
		BlockTimeout:  5 * time.Millisecond,
		Clock:         clock,
		Logger:        logger,
	}), q
}

func TestFlushesWhenBatchIsFull(t *testing.T) {
	sink := &fakeSink{}
	s, _ := newTestService(sink, clockwork.NewFakeClock(), 2)
	ctx := context.Background()
	id := uuid.New()

	s.handle(ctx, payload(t, cache.MatchActionRecord{SessionID: id, ActionIndex: 0, ActionType: "session_created"}))
	assert.Equal(t, 0, sink.inserted())

	s.handle(ctx, payload(t, cache.MatchActionRecord{SessionID: id, ActionIndex: 1, ActionType: "pick_subject"}))
	require.Len(t, sink.batches, 1)
	assert.Equal(t, 1, sink.batches[0][1].ActionIndex)
}

func TestDropsInvalidPayload(t *testing.T) {
	sink := &fakeSink{}
	s, _ := newTestService(sink, clockwork.NewFakeClock(), 1)
	s.handle(context.Background(), "{not json")
	assert.Equal(t, 0, sink.inserted())
	assert.Equal(t, 0, s.Tracked())
}

func TestFailedFlushDropsBatch(t *testing.T) {
	sink := &fakeSink{insertErr: errors.New("db down")}
	s, _ := newTestService(sink, clockwork.NewFakeClock(), 1)
	s.handle(context.Background(), payload(t, cache.MatchActionRecord{SessionID: uuid.New(), ActionType: "answer"}))

	sink.insertErr = nil
	s.flush(context.Background())
	assert.Equal(t, 0, sink.inserted())
}

func TestSweepMarksIdleMatchesAbandoned(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	s, _ := newTestService(sink, clock, 10)
	ctx := context.Background()

	idle, active, done := uuid.New(), uuid.New(), uuid.New()
	s.handle(ctx, payload(t, cache.MatchActionRecord{SessionID: idle, ActionType: "answer"}))
	s.handle(ctx, payload(t, cache.MatchActionRecord{SessionID: done, ActionType: "answer"}))
	s.handle(ctx, payload(t, cache.MatchActionRecord{SessionID: done, ActionIndex: 1, ActionType: "game_over"}))
	assert.Equal(t, 1, s.Tracked())

	clock.Advance(8 * time.Minute)
	s.handle(ctx, payload(t, cache.MatchActionRecord{SessionID: active, ActionType: "answer"}))
	clock.Advance(3 * time.Minute)

	s.sweep(ctx)
	assert.Equal(t, []uuid.UUID{idle}, sink.abandoned)
	assert.Equal(t, 1, s.Tracked())
}

func TestRunDrainsQueueAndFlushesOnStop(t *testing.T) {
	sink := &fakeSink{}
	s, q := newTestService(sink, clockwork.NewFakeClock(), 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	id := uuid.New()
	for i := 0; i < 3; i++ {
		q.items <- payload(t, cache.MatchActionRecord{SessionID: id, ActionIndex: i, ActionType: "answer"})
	}
	require.Eventually(t, func() bool { return len(q.items) == 0 && s.Tracked() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("historian did not stop")
	}
	assert.Equal(t, 3, sink.inserted())
}
