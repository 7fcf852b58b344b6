package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/tasksentry/internal/config"
	"github.com/huangang/tasksentry/pkg/logger"
)

const defaultWorkerConcurrency = 5

// Worker consumes notification tasks from Redis and hands them to the
// processor, normally NotificationService.Deliver.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor NotificationProcessor

	mu      sync.Mutex
	running bool
}

// NewWorker returns nil when redis is disabled.
func NewWorker(cfg *config.RedisConfig, processor NotificationProcessor) *Worker {
	if !cfg.Enabled {
		return nil
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = defaultWorkerConcurrency
	}
	server := asynq.NewServer(redisClientOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("type", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("[Worker] Notification delivery failed")
		}),
	})

	return newWorker(server, processor)
}

func newWorker(server *asynq.Server, processor NotificationProcessor) *Worker {
	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: processor,
	}
	w.mux.Use(logTask)
	w.mux.HandleFunc(TaskTypeNotify, w.handleNotification)
	return w
}

// logTask logs the duration of every handled task at debug level.
func logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		taskID, _ := asynq.GetTaskID(ctx)
		logger.Debug().
			Str("type", t.Type()).
			Str("task_id", taskID).
			Dur("took", time.Since(start)).
			Bool("ok", err == nil).
			Msg("[Worker] Task handled")
		return err
	})
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	w.running = true
	logger.Info().Msg("[Worker] Notification worker started")
	return nil
}

// Stop waits for in-flight deliveries, then shuts the worker down.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.server.Shutdown()
	w.running = false
	logger.Info().Msg("[Worker] Notification worker stopped")
}

func (w *Worker) handleNotification(ctx context.Context, t *asynq.Task) error {
	var event NotificationEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	if event.UserID == 0 {
		return fmt.Errorf("notification without recipient: %w", asynq.SkipRetry)
	}
	if w.processor == nil {
		logger.Warn().Msg("[Worker] No processor set, notification dropped")
		return nil
	}
	return w.processor(ctx, &event)
}
