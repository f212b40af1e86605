// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list the historian drains.
const DefaultQueueName = "quizduel_actions"

// MatchActionRecord is one entry of a session's action history.
type MatchActionRecord struct {
	SessionID     uuid.UUID              `json:"session_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorID       uuid.UUID              `json:"actor_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// pusher is the subset of redis.Cmdable the action log needs.
type pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// ActionLog pushes match actions onto a Redis list for the historian worker.
type ActionLog struct {
	rdb     pusher
	queue   string
	timeout time.Duration
	logger  logrus.FieldLogger
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewActionLog returns a log writing to queue. An empty queue name uses DefaultQueueName.
func NewActionLog(rdb redis.Cmdable, queue string, logger logrus.FieldLogger) *ActionLog {
	return newActionLog(rdb, queue, logger)
}

func newActionLog(rdb pusher, queue string, logger logrus.FieldLogger) *ActionLog {
	if queue == "" {
		queue = DefaultQueueName
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ActionLog{rdb: rdb, queue: queue, timeout: 2 * time.Second, logger: logger}
}

// Publish serializes the record and RPUSHes it onto the queue.
func (l *ActionLog) Publish(ctx context.Context, record MatchActionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchActionRecord: %w", err)
	}
	if err := l.rdb.RPush(ctx, l.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", l.queue, err)
	}
	return nil
}

// LogAction publishes in the background. Failures are logged and dropped.
func (l *ActionLog) LogAction(record MatchActionRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.Publish(ctx, record); err != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"session_id":  record.SessionID,
				"action_type": record.ActionType,
			}).Warn("failed to log match action")
		}
	}()
}

// Queue returns the list name records are pushed to.
func (l *ActionLog) Queue() string {
	return l.queue
}
