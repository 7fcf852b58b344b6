package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(buf *bytes.Buffer) *gin.Engine {
	Init("info")
	SetOutput(buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(RequestIDKey, "req-123")
		c.Set(UserIDKey, uint(7))
		c.Next()
	})
	r.Use(GinLogger(), GinRecovery())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestGinLogger(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ok?x=1", nil))

	out := buf.String()
	for _, want := range []string{`"path":"/ok"`, `"query":"x=1"`, `"request_id":"req-123"`, `"user_id":7`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestGinLogger_WarnOnClientError(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warn level, got: %s", buf.String())
	}
}

func TestGinLogger_QuietPaths(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	if buf.Len() != 0 {
		t.Errorf("health checks should not be logged, got: %s", buf.String())
	}
}

func TestGinRecovery(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Errorf("panic value must not reach the client: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("panic should be logged: %s", buf.String())
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init("verbose")
	SetOutput(&buf)

	Debug().Msg("debug line")
	Info().Msg("info line")

	if strings.Contains(buf.String(), "debug line") {
		t.Errorf("debug output at fallback level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "info line") {
		t.Errorf("info output missing at fallback level: %s", buf.String())
	}
}

func TestFor(t *testing.T) {
	var buf bytes.Buffer
	Init("info")
	SetOutput(&buf)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "req-9")
	l := For(c)
	l.Info().Msg("anonymous")
	if out := buf.String(); !strings.Contains(out, `"request_id":"req-9"`) || strings.Contains(out, "user_id") {
		t.Errorf("unexpected fields: %s", out)
	}

	buf.Reset()
	c.Set(UserIDKey, uint(12))
	l = For(c)
	l.Info().Msg("authenticated")
	if out := buf.String(); !strings.Contains(out, `"user_id":12`) {
		t.Errorf("missing user id: %s", out)
	}
}
