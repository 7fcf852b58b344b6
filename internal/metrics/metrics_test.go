package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/authz"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/tasks/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	body := scrape(t, m)
	if !strings.Contains(body, `tasksentry_http_requests_total{code="418",method="GET",route="/api/tasks/:id"} 1`) {
		t.Errorf("expected route-level counter, got: %s", body)
	}
	if !strings.Contains(body, `route="unmatched"`) {
		t.Errorf("expected unmatched route label, got: %s", body)
	}
}

func TestObserveDecision(t *testing.T) {
	m := New()
	var recorder authz.Recorder = m

	recorder.ObserveDecision(authz.ActionViewTask, true)
	recorder.ObserveDecision(authz.ActionViewTask, false)
	recorder.ObserveDecision(authz.ActionViewTask, false)

	if got := testutil.ToFloat64(m.authzDecisions.WithLabelValues("task.view", "denied")); got != 2 {
		t.Errorf("denied = %v, expected 2", got)
	}
	if got := testutil.ToFloat64(m.authzDecisions.WithLabelValues("task.view", "granted")); got != 1 {
		t.Errorf("granted = %v, expected 1", got)
	}
}

func TestObserveAuthAttemptAndNotification(t *testing.T) {
	m := New()
	m.ObserveAuthAttempt(false)
	m.ObserveNotification(true)

	body := scrape(t, m)
	for _, want := range []string{
		`tasksentry_auth_attempts_total{result="failure"} 1`,
		`tasksentry_notifications_enqueued_total{mode="async"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in scrape output", want)
		}
	}
}
