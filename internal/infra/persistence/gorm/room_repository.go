package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"liar-game/internal/domain"
	"liar-game/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// Transaction 在一个数据库事务中执行 fn
func (r *GormRoomRepository) Transaction(ctx context.Context, fn func(tx repository.RoomTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRoomTx{db: tx})
	})
}

// FindByID 根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.GameRoom, error) {
	return findRoom(r.db.WithContext(ctx), "id = ?", id)
}

// FindByCode 根据房间码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.GameRoom, error) {
	return findRoom(r.db.WithContext(ctx), "room_code = ?", code)
}

// IsRoomCodeExists 检查房间码是否存在
func (r *GormRoomRepository) IsRoomCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.GameRoom{}).Where("room_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

// List 分页列出房间
func (r *GormRoomRepository) List(ctx context.Context, filter repository.RoomFilter) ([]domain.GameRoom, int64, error) {
	var (
		rooms []domain.GameRoom
		total int64
	)
	q := r.db.WithContext(ctx).Model(&domain.GameRoom{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count rooms: %w", err)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Order("created_at DESC, id DESC").Offset(filter.Offset).Find(&rooms).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: list rooms: %w", err)
	}
	return rooms, total, nil
}

// ListActivePlayers 返回在席玩家
func (r *GormRoomRepository) ListActivePlayers(ctx context.Context, roomID uint) ([]domain.RoomPlayer, error) {
	return activePlayers(r.db.WithContext(ctx), roomID)
}

// FindStaleRoomIDs 查找需要清理的房间
func (r *GormRoomRepository) FindStaleRoomIDs(ctx context.Context, idleSince time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.GameRoom{}).
		Where("(status = ? AND updated_at < ?) OR (status <> ? AND current_players = 0)",
			domain.RoomStatusWaiting, idleSince, domain.RoomStatusFinished).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find stale rooms: %w", err)
	}
	return ids, nil
}

// gormRoomTx 是绑定到单个事务的 RoomTx 实现
type gormRoomTx struct {
	db *gorm.DB
}

func (t *gormRoomTx) LockRoomByID(ctx context.Context, id uint) (*domain.GameRoom, error) {
	return findRoom(t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (t *gormRoomTx) LockRoomByCode(ctx context.Context, code string) (*domain.GameRoom, error) {
	return findRoom(t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "room_code = ?", code)
}

func (t *gormRoomTx) CreateRoom(ctx context.Context, room *domain.GameRoom) error {
	if err := t.db.WithContext(ctx).Create(room).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (code: %s): %w", room.RoomCode, err)
	}
	return nil
}

func (t *gormRoomTx) UpdateRoom(ctx context.Context, room *domain.GameRoom) error {
	if err := t.db.WithContext(ctx).Save(room).Error; err != nil {
		return fmt.Errorf("gorm: update room %d: %w", room.ID, err)
	}
	return nil
}

func (t *gormRoomTx) FindPlayer(ctx context.Context, roomID, userID uint) (*domain.RoomPlayer, error) {
	var player domain.RoomPlayer
	err := t.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&player).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("gorm: find player (room %d, user %d): %w", roomID, userID, err)
	}
	return &player, nil
}

func (t *gormRoomTx) SavePlayer(ctx context.Context, player *domain.RoomPlayer) error {
	if err := t.db.WithContext(ctx).Save(player).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save player (room %d, user %d): %w", player.RoomID, player.UserID, err)
	}
	return nil
}

func (t *gormRoomTx) ActivePlayers(ctx context.Context, roomID uint) ([]domain.RoomPlayer, error) {
	return activePlayers(t.db.WithContext(ctx), roomID)
}

func (t *gormRoomTx) DeactivatePlayers(ctx context.Context, roomID uint) (int64, error) {
	result := t.db.WithContext(ctx).Model(&domain.RoomPlayer{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Updates(map[string]interface{}{"is_active": false, "is_host": false})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: deactivate players of room %d: %w", roomID, result.Error)
	}
	return result.RowsAffected, nil
}

// --- helpers ---

func findRoom(db *gorm.DB, query string, arg interface{}) (*domain.GameRoom, error) {
	var room domain.GameRoom
	err := db.Where(query, arg).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room (%s %v): %w", query, arg, err)
	}
	return &room, nil
}

func activePlayers(db *gorm.DB, roomID uint) ([]domain.RoomPlayer, error) {
	var players []domain.RoomPlayer
	err := db.Where("room_id = ? AND is_active = ?", roomID, true).
		Order("joined_at ASC, id ASC").
		Find(&players).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list active players of room %d: %w", roomID, err)
	}
	return players, nil
}
