package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	"liar-game/internal/service"
)

// PrincipalKey 是 principal 在 gin.Context 中的键
const PrincipalKey = "principal"

// PrincipalResolver 把 Authorization 头解析成 principal，由 service.AuthService 实现。
type PrincipalResolver interface {
	Resolve(ctx context.Context, authorizationHeader string) (*domain.Principal, error)
}

// Identity 返回一个 Gin 中间件，为每个请求解析 principal 并放入上下文。
// 缺失或无效的 token 得到 guest，不会中断请求；已删除的账号返回 401。
// allowQueryToken 为 true 时，没有 Authorization 头则读取 access_token 查询参数（浏览器 WebSocket 无法设置请求头）。
func Identity(resolver PrincipalResolver, allowQueryToken bool) gin.HandlerFunc {
	if resolver == nil {
		panic("PrincipalResolver cannot be nil for Identity middleware")
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && allowQueryToken {
			if token := c.Query("access_token"); token != "" {
				header = "Bearer " + token
			}
		}

		principal, err := resolver.Resolve(c.Request.Context(), header)
		if err != nil {
			if errors.Is(err, service.ErrAuthenticationRequired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
				return
			}
			logrus.WithError(err).Error("Identity middleware: failed to resolve principal")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// Authorize 返回一个 Gin 中间件，按 policy 校验当前 principal 的角色和等级。
func Authorize(policy service.AccessPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 没有经过 Identity 的请求不当作 guest，交给 service.Authorize 返回需要认证
		principal := attachedPrincipal(c)
		if err := service.Authorize(principal, policy); err != nil {
			principalID := ""
			if principal != nil {
				principalID = principal.ID
			}
			logrus.WithFields(logrus.Fields{
				"principal_id": principalID,
				"path":         c.FullPath(),
			}).WithError(err).Info("Access denied")

			var denied *service.PermissionDeniedError
			if errors.As(err, &denied) {
				body := gin.H{"error": denied.Error()}
				if denied.RequiredTier != "" {
					body["required_tier"] = denied.RequiredTier
					body["actual_tier"] = denied.ActualTier
				}
				if len(denied.RequiredRoles) > 0 {
					body["required_roles"] = denied.RequiredRoles
					body["actual_role"] = denied.ActualRole
				}
				c.AbortWithStatusJSON(http.StatusForbidden, body)
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

// PrincipalFrom 取出 Identity 放入的 principal，没有则视为 guest。供 handler 使用。
func PrincipalFrom(c *gin.Context) *domain.Principal {
	if p := attachedPrincipal(c); p != nil {
		return p
	}
	return domain.GuestPrincipal()
}

func attachedPrincipal(c *gin.Context) *domain.Principal {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(*domain.Principal); ok {
			return p
		}
	}
	return nil
}
