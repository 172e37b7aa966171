package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	"liar-game/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "liar:"
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

// rateLimitKey 只加应用前缀，key 本身已经以 "ratelimit:" 开头
func (r *RedisStateRepository) rateLimitKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisStateRepository) roomEventChannel(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:events", r.keyPrefix, roomID)
}

// fixedWindowScript 只在窗口内第一次计数时设置过期时间，
// 否则持续请求会不断推迟窗口重置。
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// CheckRateLimit 固定窗口计数，返回 true 表示已超限
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	count, err := fixedWindowScript.Run(ctx, r.client, []string{fullKey}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit script for %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}

// PublishRoomEvent 将房间事件发布到房间频道
func (r *RedisStateRepository) PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal room event: %w", err)
	}
	channel := r.roomEventChannel(event.RoomID)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// SubscribeRoomEvents 订阅房间频道。返回前等待订阅确认。
func (r *RedisStateRepository) SubscribeRoomEvents(ctx context.Context, roomID uint) (repository.RoomSubscription, error) {
	channel := r.roomEventChannel(roomID)
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe to %s: %w", channel, err)
	}

	sub := &roomSubscription{
		pubsub: pubsub,
		events: make(chan domain.RoomEvent, 64),
	}
	go sub.pump(channel)
	return sub, nil
}

// roomSubscription 把 redis.Message 解码为 domain.RoomEvent
type roomSubscription struct {
	pubsub    *redis.PubSub
	events    chan domain.RoomEvent
	closeOnce sync.Once
}

func (s *roomSubscription) pump(channel string) {
	defer close(s.events)
	log := logrus.WithField("channel", channel)
	for msg := range s.pubsub.Channel() {
		var event domain.RoomEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.WithError(err).Warn("Dropping undecodable room event")
			continue
		}
		select {
		case s.events <- event:
		default:
			log.WithField("event_type", event.Type).Warn("Room event buffer full, dropping event")
		}
	}
}

func (s *roomSubscription) Events() <-chan domain.RoomEvent { return s.events }

func (s *roomSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.pubsub.Close() })
	return err
}
