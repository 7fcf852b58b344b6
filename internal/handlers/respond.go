package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/huangang/tasksentry/internal/utils"
	"github.com/huangang/tasksentry/pkg/outcome"
	"github.com/huangang/tasksentry/pkg/response"
)

var (
	unauthorizedMessages = []string{
		services.MsgInvalidCredentials,
		services.MsgInvalidSession,
		services.MsgInvalidRefresh,
	}
	forbiddenPrefixes = []string{
		authz.ReasonUnknownActor,
		authz.ReasonInsufficientRole,
		authz.ReasonNotPermitted,
		authz.ReasonUnavailable,
		authz.ReasonSelf,
		services.MsgRegistrationClosed,
	}
)

// failureStatus maps a failed outcome's message to an HTTP status.
func failureStatus(msg string) int {
	switch {
	case msg == services.MsgNotFound:
		return http.StatusNotFound
	case msg == services.MsgUserExists:
		return http.StatusConflict
	}
	for _, m := range unauthorizedMessages {
		if msg == m {
			return http.StatusUnauthorized
		}
	}
	for _, p := range forbiddenPrefixes {
		if strings.HasPrefix(msg, p) {
			return http.StatusForbidden
		}
	}
	return http.StatusBadRequest
}

func respond[T any](c *gin.Context, out outcome.Outcome[T], err error) {
	response.Outcome(c, out, err, failureStatus(out.Message()))
}

// respondCreated is respond with 201 for a successful create.
func respondCreated[T any](c *gin.Context, out outcome.Outcome[T], err error) {
	if err == nil && out.IsSuccess() {
		c.JSON(http.StatusCreated, response.Response{Code: 0, Message: out.Message(), Data: out.Data()})
		return
	}
	respond(c, out, err)
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+strings.ReplaceAll(name, "_", " "))
		return 0, false
	}
	return uint(id), true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, utils.ValidationMessage(err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		response.BadRequest(c, utils.ValidationMessage(err))
		return false
	}
	return true
}
