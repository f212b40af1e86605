// internal/historian/historian.go

// Package historian drains the Redis action queue into Postgres and flags
// matches that stop producing actions as abandoned.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/cache"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// popper is the subset of redis.Cmdable the historian reads with.
type popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists action batches. *database.ActionRepository satisfies it.
type Sink interface {
	InsertActions(ctx context.Context, batch []cache.MatchActionRecord) error
	MarkAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error)
}

type Options struct {
	Queue         string
	BatchSize     int
	FlushInterval time.Duration
	// Inactivity is how long a match may go without actions before it is abandoned.
	Inactivity    time.Duration
	SweepInterval time.Duration
	BlockTimeout  time.Duration
	Clock         clockwork.Clock
	Logger        logrus.FieldLogger
}

// Service batches popped action records and writes them through the sink.
type Service struct {
	rdb  popper
	sink Sink
	opts Options

	mu           sync.Mutex
	batch        []cache.MatchActionRecord
	lastActivity map[uuid.UUID]time.Time
}

func New(rdb redis.Cmdable, sink Sink, opts Options) *Service {
	return newService(rdb, sink, opts)
}

func newService(rdb popper, sink Sink, opts Options) *Service {
	if opts.Queue == "" {
		opts.Queue = cache.DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 3 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		rdb:          rdb,
		sink:         sink,
		opts:         opts,
		batch:        make([]cache.MatchActionRecord, 0, opts.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run reads until ctx is cancelled, then flushes whatever is still batched.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sweepLoop(ctx)
	}()

	s.opts.Logger.WithField("queue", s.opts.Queue).Info("historian started")
	s.readLoop(ctx)
	wg.Wait()

	// ctx is already done; the final flush gets its own deadline.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.opts.Logger.Info("historian stopped")
	return nil
}

func (s *Service) readLoop(ctx context.Context) {
	ticker := s.opts.Clock.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.flush(ctx)
		default:
			res, err := s.rdb.BLPop(ctx, s.opts.BlockTimeout, s.opts.Queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					s.opts.Logger.WithError(err).Error("BLPOP failed")
				}
				continue
			}
			// res[0] is the queue name, res[1] the payload
			if len(res) < 2 {
				continue
			}
			s.handle(ctx, res[1])
		}
	}
}

// handle decodes one payload and flushes when the batch is full.
func (s *Service) handle(ctx context.Context, payload string) {
	var rec cache.MatchActionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.opts.Logger.WithError(err).Warn("dropping invalid action record")
		return
	}

	s.mu.Lock()
	if rec.ActionType == "game_over" || rec.ActionType == "leave" {
		delete(s.lastActivity, rec.SessionID)
	} else {
		s.lastActivity[rec.SessionID] = s.opts.Clock.Now()
	}
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.opts.BatchSize
	s.mu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// flush writes the pending batch. A failed batch is logged and dropped.
func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]cache.MatchActionRecord, 0, s.opts.BatchSize)
	s.mu.Unlock()

	if err := s.sink.InsertActions(ctx, pending); err != nil {
		s.opts.Logger.WithError(err).WithField("count", len(pending)).Error("failed to flush actions")
		return
	}
	s.opts.Logger.WithField("count", len(pending)).Debug("flushed actions")
}

func (s *Service) sweepLoop(ctx context.Context) {
	ticker := s.opts.Clock.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

// sweep marks matches idle for longer than Inactivity as abandoned.
func (s *Service) sweep(ctx context.Context) {
	now := s.opts.Clock.Now()
	var stale []uuid.UUID

	s.mu.Lock()
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.opts.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		marked, err := s.sink.MarkAbandoned(ctx, id)
		log := s.opts.Logger.WithField("session_id", id)
		switch {
		case err != nil:
			log.WithError(err).Error("failed to mark match abandoned")
		case marked:
			log.Info("marked match abandoned after inactivity")
		}
	}
}

// Tracked reports how many matches are being watched for inactivity.
func (s *Service) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastActivity)
}
