package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
)

type ProjectMemberHandler struct {
	memberService *services.ProjectMemberService
}

func NewProjectMemberHandler(members *services.ProjectMemberService) *ProjectMemberHandler {
	return &ProjectMemberHandler{memberService: members}
}

// GET /api/projects/:id/members
func (h *ProjectMemberHandler) List(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.MemberListRequest
	if !bindQuery(c, &req) {
		return
	}

	out, err := h.memberService.List(c.Request.Context(), middleware.GetUserID(c), projectID, &req)
	respond(c, out, err)
}

// Add enrolls a user, reactivating a previous membership
// POST /api/projects/:id/members
func (h *ProjectMemberHandler) Add(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.AddMemberRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.memberService.Add(c.Request.Context(), middleware.GetUserID(c), projectID, &req)
	respondCreated(c, out, err)
}

// PUT /api/projects/:id/members/:user_id
func (h *ProjectMemberHandler) ChangeRole(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var req services.UpdateMemberRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.memberService.ChangeRole(c.Request.Context(), middleware.GetUserID(c), projectID, userID, &req)
	respond(c, out, err)
}

// DELETE /api/projects/:id/members/:user_id
func (h *ProjectMemberHandler) Remove(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	out, err := h.memberService.Deactivate(c.Request.Context(), middleware.GetUserID(c), projectID, userID)
	respond(c, out, err)
}
