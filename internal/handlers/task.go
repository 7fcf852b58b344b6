package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
)

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: tasks}
}

// ListInProject returns a project's tasks
// GET /api/projects/:id/tasks
func (h *TaskHandler) ListInProject(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.TaskListRequest
	if !bindQuery(c, &req) {
		return
	}

	out, err := h.taskService.List(c.Request.Context(), middleware.GetUserID(c), projectID, &req)
	respond(c, out, err)
}

// POST /api/projects/:id/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ProjectID = projectID

	out, err := h.taskService.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	respondCreated(c, out, err)
}

// Get returns a task with its collaborators and comments
// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.taskService.Get(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// PUT /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.taskService.Update(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}

// PUT /api/tasks/:id/status
func (h *TaskHandler) ChangeStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ChangeStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.taskService.ChangeStatus(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}

// PUT /api/tasks/:id/priority
func (h *TaskHandler) ChangePriority(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ChangePriorityRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.taskService.ChangePriority(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}

// Assign sets the assignee; a null assignee_id unassigns
// PUT /api/tasks/:id/assignee
func (h *TaskHandler) Assign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.AssignTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.taskService.Assign(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respond(c, out, err)
}

// DELETE /api/tasks/:id
func (h *TaskHandler) Deactivate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.taskService.Deactivate(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// POST /api/tasks/:id/collaborators
func (h *TaskHandler) AddCollaborator(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CollaboratorRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.taskService.AddCollaborator(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respondCreated(c, out, err)
}

// DELETE /api/tasks/:id/collaborators/:user_id
func (h *TaskHandler) RemoveCollaborator(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	out, err := h.taskService.RemoveCollaborator(c.Request.Context(), middleware.GetUserID(c), id, userID)
	respond(c, out, err)
}

// GET /api/tasks/:id/comments
func (h *TaskHandler) ListComments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.taskService.ListComments(c.Request.Context(), middleware.GetUserID(c), id)
	respond(c, out, err)
}

// POST /api/tasks/:id/comments
func (h *TaskHandler) AddComment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CommentRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.taskService.AddComment(c.Request.Context(), middleware.GetUserID(c), id, &req)
	respondCreated(c, out, err)
}
