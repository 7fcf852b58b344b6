package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

// HealthHandler reports the state of the database and the notification queue.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	redis *redis.Client
}

// NewHealthHandler builds the handler. rdb is nil when redis is disabled.
func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, redis: rdb}
}

// CheckHealth returns 200 while the database answers and 503 otherwise.
// A redis outage only degrades the service: notifications then fail to queue.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "error: " + err.Error()
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "tasksentry",
		"components": gin.H{
			"database":   dbStatus,
			"queue_mode": queueMode,
			"redis":      redisStatus,
		},
	})
}
