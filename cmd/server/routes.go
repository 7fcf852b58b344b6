package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, a *app) {
	r.Use(middleware.RequestID(), logger.GinLogger(), logger.GinRecovery(), a.metrics.Middleware())
	r.Use(middleware.CORS(a.cfg.Server.AllowOrigins))
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.GET("/health", a.healthHandler.CheckHealth)
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	api := r.Group("/api")
	api.Use(middleware.AuditWrites(a.audit))
	{
		// Public auth routes are rate limited per IP
		auth := api.Group("/auth")
		{
			auth.GET("/config", a.authHandler.Config)
			limited := auth.Group("", a.authLimiter.Middleware())
			limited.POST("/login", a.authHandler.Login)
			limited.POST("/register", a.authHandler.Register)
			limited.POST("/refresh", a.authHandler.Refresh)
			limited.POST("/logout", a.authHandler.Logout)
		}

		// EventSource cannot send headers, so the stream checks its own token
		api.GET("/notifications/stream", a.sseHandler.StreamNotifications)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(a.tokens))
		{
			protected.GET("/auth/me", a.authHandler.Me)
			protected.PUT("/auth/password", a.authHandler.ChangePassword)

			// Users
			protected.GET("/users", a.userHandler.List)
			protected.POST("/users", a.userHandler.Create)
			protected.GET("/users/:id", a.userHandler.Get)
			protected.PUT("/users/:id", a.userHandler.UpdateProfile)
			protected.DELETE("/users/:id", a.userHandler.Delete)
			protected.PUT("/users/:id/role", a.userHandler.ChangeRole)
			protected.POST("/users/:id/activate", a.userHandler.Activate)
			protected.POST("/users/:id/deactivate", a.userHandler.Deactivate)
			protected.GET("/users/:id/tasks", a.userHandler.ListTasks)

			// Projects
			protected.GET("/projects", a.projectHandler.List)
			protected.POST("/projects", a.projectHandler.Create)
			protected.GET("/projects/:id", a.projectHandler.Get)
			protected.PUT("/projects/:id", a.projectHandler.Update)
			protected.DELETE("/projects/:id", a.projectHandler.Deactivate)

			// Project members
			protected.GET("/projects/:id/members", a.memberHandler.List)
			protected.POST("/projects/:id/members", a.memberHandler.Add)
			protected.PUT("/projects/:id/members/:user_id", a.memberHandler.ChangeRole)
			protected.DELETE("/projects/:id/members/:user_id", a.memberHandler.Remove)

			// Tasks
			protected.GET("/projects/:id/tasks", a.taskHandler.ListInProject)
			protected.POST("/projects/:id/tasks", a.taskHandler.Create)
			protected.GET("/tasks/:id", a.taskHandler.Get)
			protected.PUT("/tasks/:id", a.taskHandler.Update)
			protected.DELETE("/tasks/:id", a.taskHandler.Deactivate)
			protected.PUT("/tasks/:id/status", a.taskHandler.ChangeStatus)
			protected.PUT("/tasks/:id/priority", a.taskHandler.ChangePriority)
			protected.PUT("/tasks/:id/assignee", a.taskHandler.Assign)
			protected.POST("/tasks/:id/collaborators", a.taskHandler.AddCollaborator)
			protected.DELETE("/tasks/:id/collaborators/:user_id", a.taskHandler.RemoveCollaborator)
			protected.GET("/tasks/:id/comments", a.taskHandler.ListComments)
			protected.POST("/tasks/:id/comments", a.taskHandler.AddComment)

			// Notifications
			protected.GET("/notifications", a.notificationHandler.List)
			protected.POST("/notifications/:id/read", a.notificationHandler.MarkRead)

			// Audit trail
			protected.GET("/audit-logs", a.auditLogHandler.List)
			protected.GET("/audit-logs/entity-types", a.auditLogHandler.EntityTypes)
		}
	}
}
