package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/huangang/tasksentry/pkg/logger"
	"github.com/huangang/tasksentry/pkg/response"
)

const keepAliveInterval = 25 * time.Second

// SSEHandler streams the caller's notifications as Server-Sent Events.
type SSEHandler struct {
	hub    *services.SSEHub
	tokens middleware.SessionValidator
	engine *authz.Engine
}

func NewSSEHandler(hub *services.SSEHub, tokens middleware.SessionValidator, engine *authz.Engine) *SSEHandler {
	return &SSEHandler{hub: hub, tokens: tokens, engine: engine}
}

// streamToken reads the bearer token, falling back to the token query
// parameter because EventSource cannot set headers.
func streamToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// StreamNotifications holds the connection open and writes one event per
// delivered notification.
// GET /api/notifications/stream
func (h *SSEHandler) StreamNotifications(c *gin.Context) {
	token := streamToken(c)
	if token == "" {
		response.Unauthorized(c, "authorization required")
		return
	}
	session, err := h.tokens.Validate(token)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	// A valid token outlives deactivation, so the account is checked again.
	if g := h.engine.CanViewUser(c.Request.Context(), session.UserID, session.UserID); !g.IsSuccess() {
		response.Forbidden(c, g.Message())
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.NewString()
	events := h.hub.Subscribe(clientID, session.UserID)
	defer h.hub.Unsubscribe(clientID)

	log := logger.For(c).With().
		Str("client_id", clientID).
		Uint("user_id", session.UserID).
		Logger()
	log.Debug().Int("total", h.hub.ClientCount()).Msg("Notification stream connected")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode notification event")
				return true
			}
			fmt.Fprintf(w, "event: notification\nid: %d\ndata: %s\n\n", event.ID, data)
			return true
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			return true
		case <-c.Request.Context().Done():
			log.Debug().Msg("Notification stream disconnected")
			return false
		}
	})
}
