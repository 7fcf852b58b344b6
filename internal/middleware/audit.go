package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/services"
)

const (
	maxAuditBody = 2000
	maskedValue  = "***"
)

var sensitiveKeys = []string{"password", "secret", "token", "api_key", "apikey"}

// AuditWrites records every write request (POST, PUT, PATCH, DELETE) with its
// route, status and a masked copy of the JSON body.
func AuditWrites(audit *services.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		var body interface{}
		if c.Request.Body != nil {
			raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewReader(raw))
				body = auditBody(raw)
			}
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		audit.Record(c.Request.Context(), services.AuditEntry{
			ActorID:    GetUserID(c),
			Action:     method + " " + route,
			EntityType: services.EntityHTTP,
			Details: map[string]interface{}{
				"path":       c.Request.URL.Path,
				"status":     c.Writer.Status(),
				"body":       body,
				"request_id": GetRequestID(c),
			},
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
	}
}

// auditBody returns the masked JSON body, a truncated string when the body
// is not JSON, or nil when it is empty.
func auditBody(raw []byte) interface{} {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		s := string(raw)
		if len(s) > maxAuditBody {
			s = s[:maxAuditBody] + "...[truncated]"
		}
		return s
	}
	return maskSensitive(v)
}

func maskSensitive(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if isSensitive(k) {
				t[k] = maskedValue
				continue
			}
			t[k] = maskSensitive(val)
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = maskSensitive(t[i])
		}
		return t
	default:
		return v
	}
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
