package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{userService: users}
}

// List returns paginated users (admin only)
// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	var req services.UserListRequest
	if !bindQuery(c, &req) {
		return
	}

	out, err := h.userService.List(c.Request.Context(), middleware.GetUserID(c), &req)
	respond(c, out, err)
}

// Create adds an account of any role (admin only)
// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.userService.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	respondCreated(c, out, err)
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.userService.Get(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// PUT /api/users/:id
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.userService.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}

// ChangeRole sets a user's global role. The applied role may be lower than
// the requested one; the response message says so.
// PUT /api/users/:id/role
func (h *UserHandler) ChangeRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ChangeRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.userService.ChangeRole(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}

// POST /api/users/:id/activate
func (h *UserHandler) Activate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.userService.Activate(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// POST /api/users/:id/deactivate
func (h *UserHandler) Deactivate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.userService.Deactivate(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// Delete removes a user and its relationships permanently
// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.userService.HardDelete(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// ListTasks returns the tasks a user is assigned to or collaborates on
// GET /api/users/:id/tasks
func (h *UserHandler) ListTasks(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UserTasksRequest
	if !bindQuery(c, &req) {
		return
	}

	out, err := h.userService.ListTasks(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}
