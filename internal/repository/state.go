package repository

import (
	"context"
	"time"

	"liar-game/internal/domain"
)

// RateLimitRepository 提供固定窗口计数器。
type RateLimitRepository interface {
	// CheckRateLimit 递增 key 的计数，返回 true 表示已超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RoomEventPublisher 发布房间事件。
type RoomEventPublisher interface {
	PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error
}

// RoomSubscription is a live feed of one room's events.
type RoomSubscription interface {
	Events() <-chan domain.RoomEvent
	Close() error
}

// RoomEventSubscriber 订阅房间事件。
type RoomEventSubscriber interface {
	SubscribeRoomEvents(ctx context.Context, roomID uint) (RoomSubscription, error)
}

// StateRepository 定义了与实时状态相关的操作，由 Redis 实现。
type StateRepository interface {
	RateLimitRepository
	RoomEventPublisher
	RoomEventSubscriber
}
