package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	"liar-game/internal/repository"
)

// UserService 处理账号查询以及管理员对账号的维护。
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService 创建 UserService 实例。
func NewUserService(userRepo repository.UserRepository) *UserService {
	if userRepo == nil {
		panic("UserRepository cannot be nil for UserService")
	}
	return &UserService{userRepo: userRepo}
}

// AccessUpdate 是管理员可修改的字段，nil 表示不变。
type AccessUpdate struct {
	Tier *domain.Tier
	Role *domain.Role
}

// GetProfile 返回未删除的账号。
func (s *UserService) GetProfile(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound("user")
		}
		logrus.WithError(err).WithField("user_id", userID).Error("GetProfile: repository error")
		return nil, ErrInternalServer
	}
	return user, nil
}

// DeleteAccount 软删除账号，之后该账号的 token 会被拒绝。
func (s *UserService) DeleteAccount(ctx context.Context, userID uint) error {
	logCtx := logrus.WithField("user_id", userID)
	if err := s.userRepo.SoftDelete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return notFound("user")
		}
		logCtx.WithError(err).Error("DeleteAccount: repository error")
		return ErrInternalServer
	}
	logCtx.Info("User account deleted")
	return nil
}

// ListUsers 分页列出账号，包含已删除的。
func (s *UserService) ListUsers(ctx context.Context, page, size int) ([]domain.User, int64, error) {
	offset, limit := pageBounds(page, size)
	users, total, err := s.userRepo.List(ctx, offset, limit)
	if err != nil {
		logrus.WithError(err).Error("ListUsers: repository error")
		return nil, 0, ErrInternalServer
	}
	return users, total, nil
}

// UpdateAccess 修改账号的等级或角色。
func (s *UserService) UpdateAccess(ctx context.Context, userID uint, update AccessUpdate) (*domain.User, error) {
	logCtx := logrus.WithField("user_id", userID)

	if update.Tier != nil && (!update.Tier.Valid() || *update.Tier == domain.TierGuest) {
		return nil, &ValidationError{Field: "tier", Reason: "must be MEMBER or PREMIUM"}
	}
	if update.Role != nil && !update.Role.Valid() {
		return nil, &ValidationError{Field: "role", Reason: "must be USER or ADMIN"}
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if update.Tier != nil {
		user.Tier = *update.Tier
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		logCtx.WithError(err).Error("UpdateAccess: failed to save user")
		return nil, ErrInternalServer
	}

	logCtx.WithFields(logrus.Fields{"tier": user.Tier, "role": user.Role}).Info("User access updated")
	return user, nil
}
