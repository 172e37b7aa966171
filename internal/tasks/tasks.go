package tasks

import (
	"encoding/json"
	"time"
)

// 定义任务类型常量
const (
	// TypeRoomStaleCheck 周期性关闭长时间无人操作或已经没人的房间
	TypeRoomStaleCheck = "room:stale-check"
)

// RoomStaleCheckPayload 定义了过期房间检查任务的数据结构
type RoomStaleCheckPayload struct {
	// IdleSeconds 是 WAITING 房间允许的最长无操作时间
	IdleSeconds int64 `json:"idle_seconds"`
}

// IdleFor 返回 payload 里的空闲阈值
func (p RoomStaleCheckPayload) IdleFor() time.Duration {
	return time.Duration(p.IdleSeconds) * time.Second
}

// NewRoomStaleCheckTask 创建过期房间检查任务的 payload
func NewRoomStaleCheckTask(idleFor time.Duration) ([]byte, error) {
	return json.Marshal(RoomStaleCheckPayload{IdleSeconds: int64(idleFor / time.Second)})
}
