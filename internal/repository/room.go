package repository

import (
	"context"
	"time"

	"liar-game/internal/domain"
)

// RoomFilter narrows room listings. Zero values mean "any".
type RoomFilter struct {
	Status domain.RoomStatus
	Offset int
	Limit  int
}

// RoomRepository 定义了房间和席位数据的存储和检索操作。
// 所有会修改房间状态的操作都必须通过 Transaction 完成。
type RoomRepository interface {
	// Transaction runs fn in one database transaction. fn's error rolls it back.
	Transaction(ctx context.Context, fn func(tx RoomTx) error) error

	FindByID(ctx context.Context, id uint) (*domain.GameRoom, error)
	FindByCode(ctx context.Context, code string) (*domain.GameRoom, error)

	// IsRoomCodeExists 检查房间码是否已被占用。
	IsRoomCodeExists(ctx context.Context, code string) (bool, error)

	// List 按过滤条件分页列出房间，最新创建的在前。
	List(ctx context.Context, filter RoomFilter) ([]domain.GameRoom, int64, error)

	// ListActivePlayers 返回房间当前在席的玩家，按加入时间排序。
	ListActivePlayers(ctx context.Context, roomID uint) ([]domain.RoomPlayer, error)

	// FindStaleRoomIDs 返回需要清理的房间：idleSince 之前未更新的 WAITING 房间，
	// 以及没有在席玩家但尚未结束的房间。
	FindStaleRoomIDs(ctx context.Context, idleSince time.Time, limit int) ([]uint, error)
}

// RoomTx is the transactional view handed to RoomRepository.Transaction callbacks.
// Lock* methods take a row lock held until the transaction ends.
type RoomTx interface {
	LockRoomByID(ctx context.Context, id uint) (*domain.GameRoom, error)
	LockRoomByCode(ctx context.Context, code string) (*domain.GameRoom, error)

	CreateRoom(ctx context.Context, room *domain.GameRoom) error
	UpdateRoom(ctx context.Context, room *domain.GameRoom) error

	// FindPlayer returns the (room, user) row whether active or not.
	FindPlayer(ctx context.Context, roomID, userID uint) (*domain.RoomPlayer, error)
	SavePlayer(ctx context.Context, player *domain.RoomPlayer) error

	// ActivePlayers returns active rows ordered by JoinedAt, then ID.
	ActivePlayers(ctx context.Context, roomID uint) ([]domain.RoomPlayer, error)

	// DeactivatePlayers marks every active row of the room inactive.
	DeactivatePlayers(ctx context.Context, roomID uint) (int64, error)
}
