package repository

import (
	"context"

	"liar-game/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找未删除的用户，不存在返回 ErrUserNotFound。
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindBySubject 根据 token 的 sub 查找用户，包含已软删除的账号，
	// 调用方据此判断是否需要拒绝。
	FindBySubject(ctx context.Context, subject string) (*domain.User, error)

	// FindByUsername 根据用户名查找未删除的用户。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// Save 创建或更新用户。违反唯一约束时返回 ErrDuplicateEntry。
	Save(ctx context.Context, user *domain.User) error

	// List 分页列出所有用户（含已删除），同时返回总数。
	List(ctx context.Context, offset, limit int) ([]domain.User, int64, error)

	// SoftDelete 软删除用户。
	SoftDelete(ctx context.Context, id uint) error
}
