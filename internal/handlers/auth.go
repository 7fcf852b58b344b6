package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/huangang/tasksentry/pkg/response"
)

type AuthHandler struct {
	authService         *services.AuthService
	userService         *services.UserService
	ldapEnabled         bool
	registrationEnabled bool
}

func NewAuthHandler(auth *services.AuthService, users *services.UserService, ldapEnabled, registrationEnabled bool) *AuthHandler {
	return &AuthHandler{
		authService:         auth,
		userService:         users,
		ldapEnabled:         ldapEnabled,
		registrationEnabled: registrationEnabled,
	}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP(), c.Request.UserAgent())
	respond(c, out, err)
}

// Refresh exchanges a refresh token for a new session
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req services.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	respond(c, out, err)
}

// Logout revokes the given refresh token
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req services.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Register creates an account. Anonymous callers may pick guest or member.
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.userService.Register(c.Request.Context(), 0, &req)
	respondCreated(c, out, err)
}

// Me returns the current user
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.GetUserID(c)
	out, err := h.userService.Get(c.Request.Context(), userID, userID)
	respond(c, out, err)
}

// ChangePassword changes the caller's local password
// PUT /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.authService.ChangePassword(c.Request.Context(), middleware.GetUserID(c), &req)
	respond(c, out, err)
}

// Config returns authentication options for the login page
// GET /api/auth/config
func (h *AuthHandler) Config(c *gin.Context) {
	response.Success(c, gin.H{
		"ldap_enabled":         h.ldapEnabled,
		"registration_enabled": h.registrationEnabled,
	})
}
