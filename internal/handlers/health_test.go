package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type healthBody struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func checkHealth(t *testing.T, h *HealthHandler) (int, healthBody) {
	t.Helper()
	r := gin.New()
	r.GET("/health", h.CheckHealth)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func openHealthDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	return db
}

func TestHealth(t *testing.T) {
	db := openHealthDB(t)
	queue := services.NewSyncQueue(nil)

	code, body := checkHealth(t, NewHealthHandler(db, queue, nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Components["database"])
	assert.Equal(t, "sync", body.Components["queue_mode"])
	assert.Equal(t, "disabled", body.Components["redis"])

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	code, body = checkHealth(t, NewHealthHandler(db, queue, rdb))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Components["redis"])

	mr.Close()
	code, body = checkHealth(t, NewHealthHandler(db, queue, rdb))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body.Status)
	assert.Contains(t, body.Components["redis"], "error")
}

func TestHealth_DatabaseDown(t *testing.T) {
	db := openHealthDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	code, body := checkHealth(t, NewHealthHandler(db, nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "sync", body.Components["queue_mode"])
}
