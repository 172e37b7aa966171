package service

import (
	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
)

// AccessPolicy 是挂在单个路由上的访问要求。零值表示不限制。
type AccessPolicy struct {
	Roles   []domain.Role
	MinTier domain.Tier
}

// Authorize 校验 principal 是否满足 policy。
// 没有 principal 返回 ErrAuthenticationRequired；角色或等级不足返回 *PermissionDeniedError。
func Authorize(principal *domain.Principal, policy AccessPolicy) error {
	if principal == nil {
		return ErrAuthenticationRequired
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"principal_id": principal.ID,
		"role":         principal.Role,
		"tier":         principal.Tier,
	})

	if !domain.HasRequiredRole(principal.Role, policy.Roles) {
		logCtx.WithField("required_roles", policy.Roles).Debug("Access denied: role")
		return &PermissionDeniedError{
			RequiredRoles: policy.Roles,
			ActualRole:    principal.Role,
			ActualTier:    principal.Tier,
		}
	}
	if !domain.HasRequiredTier(principal.Tier, policy.MinTier) {
		logCtx.WithField("required_tier", policy.MinTier).Debug("Access denied: tier")
		return &PermissionDeniedError{
			RequiredTier: policy.MinTier,
			ActualRole:   principal.Role,
			ActualTier:   principal.Tier,
		}
	}
	return nil
}
