package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"liar-game/internal/domain"
)

// MigrateDB 使用 AutoMigrate 创建或更新 users、game_rooms、room_players 表。
// 索引列都限制为 varchar(191)，MySQL utf8mb4 下无需手写建表 SQL。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.GameRoom{}, &domain.RoomPlayer{}); err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}
	logrus.Info("Database migration completed successfully")
	return nil
}
