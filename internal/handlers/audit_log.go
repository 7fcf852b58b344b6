package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/huangang/tasksentry/pkg/outcome"
	"github.com/huangang/tasksentry/pkg/response"
)

// AuditLogHandler exposes the audit trail to administrators.
type AuditLogHandler struct {
	auditService *services.AuditService
	engine       *authz.Engine
}

func NewAuditLogHandler(audit *services.AuditService, engine *authz.Engine) *AuditLogHandler {
	return &AuditLogHandler{auditService: audit, engine: engine}
}

func (h *AuditLogHandler) allowed(c *gin.Context) bool {
	g := h.engine.CanManageUsers(c.Request.Context(), middleware.GetUserID(c))
	if !g.IsSuccess() {
		respond(c, outcome.Chain[authz.Grant](g, "cannot read audit logs"), nil)
		return false
	}
	return true
}

// GET /api/audit-logs
func (h *AuditLogHandler) List(c *gin.Context) {
	var req services.AuditLogListRequest
	if !bindQuery(c, &req) {
		return
	}
	if !h.allowed(c) {
		return
	}

	resp, err := h.auditService.List(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, resp.Items, resp.Total, resp.Page, resp.PageSize)
}

// GET /api/audit-logs/entity-types
func (h *AuditLogHandler) EntityTypes(c *gin.Context) {
	if !h.allowed(c) {
		return
	}

	types, err := h.auditService.EntityTypes(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"entity_types": types})
}
