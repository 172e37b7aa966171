// Package domain holds the entities and value types shared by every layer.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Username length limits for local accounts, counted in runes.
const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
)

// User 是本地用户存储中的账号记录。
// Subject 对应 token 的 sub 声明，本地注册的账号使用随机 UUID。
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Subject   string         `gorm:"type:varchar(191);uniqueIndex:idx_users_subject;not null" json:"-"`
	Username  string         `gorm:"type:varchar(191);uniqueIndex:idx_users_username;not null" json:"username"`
	Email     string         `gorm:"type:varchar(191);index" json:"email,omitempty"`
	Password  string         `gorm:"type:text" json:"-"` // bcrypt hash, empty for provider-only accounts
	Tier      Tier           `gorm:"type:varchar(16);not null;default:MEMBER" json:"tier"`
	Role      Role           `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the account has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u != nil && u.DeletedAt.Valid
}
