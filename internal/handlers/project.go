package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
)

type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projects}
}

// List returns the projects the caller can see
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if !bindQuery(c, &req) {
		return
	}

	out, err := h.projectService.List(c.Request.Context(), middleware.GetUserID(c), &req)
	respond(c, out, err)
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.projectService.Get(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// Create creates a project managed by the caller unless an admin names
// another manager
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.projectService.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	respondCreated(c, out, err)
}

// PUT /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.projectService.Update(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}

// Deactivate retires a project; it stays readable
// DELETE /api/projects/:id
func (h *ProjectHandler) Deactivate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.projectService.Deactivate(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}
