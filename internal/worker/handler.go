package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"liar-game/internal/tasks"
)

// RoomCloser 由 service.RoomService 实现
type RoomCloser interface {
	CloseStaleRooms(ctx context.Context, idleFor time.Duration) (int, error)
}

// StaleRoomHandler 处理周期性的过期房间检查任务
type StaleRoomHandler struct {
	rooms          RoomCloser
	defaultIdleFor time.Duration
}

// NewStaleRoomHandler 创建 Handler 实例。payload 没有给出阈值时使用 defaultIdleFor。
func NewStaleRoomHandler(rooms RoomCloser, defaultIdleFor time.Duration) *StaleRoomHandler {
	if rooms == nil {
		panic("RoomCloser cannot be nil for StaleRoomHandler")
	}
	return &StaleRoomHandler{rooms: rooms, defaultIdleFor: defaultIdleFor}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *StaleRoomHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
	logCtx.Debug("Processing room stale check task...")

	idleFor := h.defaultIdleFor
	if len(t.Payload()) > 0 {
		var payload tasks.RoomStaleCheckPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.IdleSeconds > 0 {
			idleFor = payload.IdleFor()
		}
	}
	if idleFor <= 0 {
		return fmt.Errorf("stale check has no idle threshold: %w", asynq.SkipRetry)
	}

	closed, err := h.rooms.CloseStaleRooms(ctx, idleFor)
	if err != nil {
		logCtx.WithError(err).Error("Room stale check failed")
		return fmt.Errorf("close stale rooms: %w", err)
	}

	logCtx.WithFields(logrus.Fields{"closed": closed, "idle_for": idleFor.String()}).Info("Room stale check processed successfully")
	return nil
}
