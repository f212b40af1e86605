package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/events"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/jason-s-yu/quizduel/internal/timer"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFactory struct {
	mu     sync.Mutex
	active map[uuid.UUID]uuid.UUID
	pairs  [][2]uuid.UUID
	err    error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{active: make(map[uuid.UUID]uuid.UUID)}
}

func (f *fakeFactory) ActiveSession(playerID uuid.UUID) (uuid.UUID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.active[playerID]
	return id, ok
}

func (f *fakeFactory) CreateSession(a, b models.Player) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, f.err
	}
	id := uuid.New()
	f.active[a.ID] = id
	f.active[b.ID] = id
	f.pairs = append(f.pairs, [2]uuid.UUID{a.ID, b.ID})
	return id, nil
}

type collector struct {
	mu  sync.Mutex
	evs []events.Event
}

func (c *collector) Publish(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.evs)
}

func player(name string) models.Player {
	return models.Player{ID: uuid.New(), DisplayName: name}
}

func setupQueue(t *testing.T) (*Queue, *fakeFactory, *clockwork.FakeClock, *collector) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	clock := clockwork.NewFakeClock()
	sched := timer.NewScheduler(clock, logger)
	factory := newFakeFactory()
	notes := &collector{}
	q := NewQueue(factory, sched, time.Minute, notes, logger)
	t.Cleanup(func() {
		q.Close()
		sched.Close()
	})
	return q, factory, clock, notes
}

func TestEnqueuePairsInArrivalOrder(t *testing.T) {
	q, factory, _, _ := setupQueue(t)
	ctx := context.Background()
	p1, p2, p3 := player("p1"), player("p2"), player("p3")

	t1, err := q.Enqueue(ctx, p1)
	require.NoError(t, err)
	assert.True(t, t1.Queued)
	assert.Equal(t, 1, t1.Position)
	assert.Nil(t, t1.SessionID)

	t2, err := q.Enqueue(ctx, p2)
	require.NoError(t, err)
	require.NotNil(t, t2.SessionID)
	assert.False(t, t2.Queued)

	require.Len(t, factory.pairs, 1)
	assert.Equal(t, [2]uuid.UUID{p1.ID, p2.ID}, factory.pairs[0], "first joiner is seat 0")

	t3, err := q.Enqueue(ctx, p3)
	require.NoError(t, err)
	assert.True(t, t3.Queued)
	assert.Equal(t, 1, t3.Position)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q, factory, _, _ := setupQueue(t)
	ctx := context.Background()
	p1, p2 := player("p1"), player("p2")

	_, err := q.Enqueue(ctx, p1)
	require.NoError(t, err)
	again, err := q.Enqueue(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Position)
	assert.Equal(t, 1, q.Len(), "no duplicate entry")

	paired, err := q.Enqueue(ctx, p2)
	require.NoError(t, err)
	require.NotNil(t, paired.SessionID)

	// p1 is now in a session: joining returns it without queueing
	back, err := q.Enqueue(ctx, p1)
	require.NoError(t, err)
	require.NotNil(t, back.SessionID)
	assert.Equal(t, *paired.SessionID, *back.SessionID)
	assert.Equal(t, 0, q.Len())
	assert.Len(t, factory.pairs, 1)
}

func TestConcurrentEnqueuePairsEveryoneOnce(t *testing.T) {
	q, factory, _, _ := setupQueue(t)
	const n = 200

	players := make([]models.Player, n)
	for i := range players {
		players[i] = player(fmt.Sprintf("p%d", i))
	}

	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p models.Player) {
			defer wg.Done()
			_, err := q.Enqueue(context.Background(), p)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	require.Len(t, factory.pairs, n/2)
	seen := make(map[uuid.UUID]int)
	for _, pair := range factory.pairs {
		assert.NotEqual(t, pair[0], pair[1])
		seen[pair[0]]++
		seen[pair[1]]++
	}
	assert.Len(t, seen, n)
	for id, c := range seen {
		assert.Equal(t, 1, c, "player %s paired %d times", id, c)
	}
	assert.Equal(t, 0, q.Len())
}

func TestExpiredEntryNotifiesOwner(t *testing.T) {
	q, _, clock, notes := setupQueue(t)
	p1 := player("p1")

	_, err := q.Enqueue(context.Background(), p1)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, queued := q.Position(p1.ID)
	assert.True(t, queued)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return notes.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Len())

	notes.mu.Lock()
	ev := notes.evs[0]
	notes.mu.Unlock()
	assert.Equal(t, events.TypeQueueExpired, ev.Type)
	assert.Equal(t, []uuid.UUID{p1.ID}, ev.Recipients)
}

func TestPairedEntriesDoNotExpire(t *testing.T) {
	q, _, clock, notes := setupQueue(t)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, player("p1"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, player("p2"))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Never(t, func() bool { return notes.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestRemoveCancelsExpiry(t *testing.T) {
	q, _, clock, notes := setupQueue(t)
	p1 := player("p1")
	_, err := q.Enqueue(context.Background(), p1)
	require.NoError(t, err)

	assert.True(t, q.Remove(p1.ID))
	assert.False(t, q.Remove(p1.ID))
	_, queued := q.Position(p1.ID)
	assert.False(t, queued)

	clock.Advance(2 * time.Minute)
	assert.Never(t, func() bool { return notes.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestFactoryFailureKeepsOrder(t *testing.T) {
	q, factory, _, _ := setupQueue(t)
	ctx := context.Background()
	p1, p2 := player("p1"), player("p2")

	_, err := q.Enqueue(ctx, p1)
	require.NoError(t, err)

	factory.err = errors.New("engine closed")
	_, err = q.Enqueue(ctx, p2)
	require.Error(t, err)

	pos1, ok1 := q.Position(p1.ID)
	pos2, ok2 := q.Position(p2.ID)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, 1, pos1)
	assert.Equal(t, 2, pos2)

	factory.err = nil
	ticket, err := q.Enqueue(ctx, player("p3"))
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.Position, "p1 and p2 pair first, p3 waits")
	assert.Equal(t, [2]uuid.UUID{p1.ID, p2.ID}, factory.pairs[0])
}

func TestEnqueueRejectsMissingID(t *testing.T) {
	q, _, _, _ := setupQueue(t)
	_, err := q.Enqueue(context.Background(), models.Player{DisplayName: "nobody"})
	assert.Error(t, err)
}
