package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"liar-game/internal/service"
)

// HandleServiceError 把 service 层错误翻译成 HTTP 响应。
func HandleServiceError(c *gin.Context, err error) {
	var (
		denied     *service.PermissionDeniedError
		invalid    *service.InvalidStateError
		validation *service.ValidationError
	)

	switch {
	case errors.As(err, &denied):
		body := gin.H{"error": denied.Error()}
		if denied.RequiredTier != "" {
			body["required_tier"] = denied.RequiredTier
			body["actual_tier"] = denied.ActualTier
		}
		if len(denied.RequiredRoles) > 0 {
			body["required_roles"] = denied.RequiredRoles
			body["actual_role"] = denied.ActualRole
		}
		c.JSON(http.StatusForbidden, body)
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{
			"error":          invalid.Error(),
			"current_status": invalid.Current,
		})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.Is(err, service.ErrAuthenticationRequired), errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCapacityExceeded), errors.Is(err, service.ErrDuplicateMembership),
		errors.Is(err, service.ErrInvalidState):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRegistrationFailed), errors.Is(err, service.ErrValidationFailed):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

// idParam 解析路径中的数字 ID
func idParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return uint(id), nil
}
