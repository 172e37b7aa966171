package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	"liar-game/internal/middleware"
	"liar-game/internal/service"
)

// UserHandler 处理当前用户和管理员的账号接口
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// Me 返回当前账号
func (h *UserHandler) Me(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal.IsGuest() {
		HandleServiceError(c, service.ErrAuthenticationRequired)
		return
	}
	user, err := h.userService.GetProfile(c.Request.Context(), principal.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, user)
}

// DeleteMe 软删除当前账号
func (h *UserHandler) DeleteMe(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal.IsGuest() {
		HandleServiceError(c, service.ErrAuthenticationRequired)
		return
	}
	if err := h.userService.DeleteAccount(c.Request.Context(), principal.UserID); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsers 管理员分页查看账号
func (h *UserHandler) ListUsers(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query", "details": err.Error()})
		return
	}
	page, size := q.normalized()

	users, total, err := h.userService.ListUsers(c.Request.Context(), page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	SuccessResponse(c, http.StatusOK, PageResponse{Items: users, Total: total, Page: page, Size: size})
}

// UpdateUserRequest 管理员修改账号等级或角色
type UpdateUserRequest struct {
	Tier *string `json:"tier"`
	Role *string `json:"role"`
}

// UpdateUser 管理员修改账号等级或角色
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	var update service.AccessUpdate
	if req.Tier != nil {
		tier := domain.Tier(strings.ToUpper(*req.Tier))
		update.Tier = &tier
	}
	if req.Role != nil {
		role := domain.Role(strings.ToUpper(*req.Role))
		update.Role = &role
	}

	user, err := h.userService.UpdateAccess(c.Request.Context(), id, update)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"admin_id": middleware.PrincipalFrom(c).ID,
		"user_id":  id,
	}).Info("Handler.UpdateUser: access updated")
	SuccessResponse(c, http.StatusOK, user)
}

// DeleteUser 管理员软删除账号
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if err := h.userService.DeleteAccount(c.Request.Context(), id); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
