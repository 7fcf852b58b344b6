package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notifications}
}

// List returns the caller's notifications
// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	var req services.NotificationListRequest
	if !bindQuery(c, &req) {
		return
	}

	out, err := h.notificationService.ListForUser(c.Request.Context(), middleware.GetUserID(c), &req)
	respond(c, out, err)
}

// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.notificationService.MarkRead(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}
