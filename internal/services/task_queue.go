package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/tasksentry/internal/config"
	"github.com/huangang/tasksentry/pkg/logger"
)

const (
	TaskTypeNotify = "notification:deliver"
)

// NotificationEvent is a notification waiting to be delivered.
type NotificationEvent struct {
	UserID  uint   `json:"user_id"`
	Kind    string `json:"kind"`
	TaskID  uint   `json:"task_id,omitempty"`
	ActorID uint   `json:"actor_id,omitempty"`
	Message string `json:"message"`
}

// NotificationProcessor delivers one event.
type NotificationProcessor func(context.Context, *NotificationEvent) error

// TaskQueue hands notification events to a processor, either through Redis
// or in-process.
type TaskQueue interface {
	// Enqueue adds an event to the queue
	Enqueue(ctx context.Context, event *NotificationEvent) error
	// IsAsync returns true if queue processes events asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// NewTaskQueue returns a Redis-backed queue when redis is enabled and
// reachable, and a synchronous queue otherwise.
func NewTaskQueue(cfg *config.RedisConfig, processor NotificationProcessor) TaskQueue {
	if !cfg.Enabled {
		logger.Info().Msg("[TaskQueue] Sync queue initialized (Redis disabled)")
		return NewSyncQueue(processor)
	}

	queue, err := NewAsyncQueue(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("[TaskQueue] Redis unavailable, falling back to sync mode")
		return NewSyncQueue(processor)
	}
	logger.Info().Str("addr", cfg.Addr).Msg("[TaskQueue] Async queue initialized")
	return queue
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a Redis-based queue and verifies the connection.
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, event *NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeNotify, payload)
	info, err := q.client.EnqueueContext(ctx, t,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	logger.Debug().Str("id", info.ID).Str("queue", info.Queue).Msg("[AsyncQueue] Notification enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue by delivering in the caller's goroutine.
type SyncQueue struct {
	processor NotificationProcessor
}

func NewSyncQueue(processor NotificationProcessor) *SyncQueue {
	return &SyncQueue{processor: processor}
}

// Enqueue delivers the event immediately. Delivery failures are logged and
// not returned; a notification never fails the operation that caused it.
func (q *SyncQueue) Enqueue(ctx context.Context, event *NotificationEvent) error {
	if q.processor == nil {
		logger.Warn().Msg("[SyncQueue] No processor set, notification dropped")
		return nil
	}

	if err := q.processor(context.WithoutCancel(ctx), event); err != nil {
		logger.Error().Err(err).Uint("user_id", event.UserID).Msg("[SyncQueue] Notification delivery failed")
	}
	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
