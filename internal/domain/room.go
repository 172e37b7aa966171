package domain

import "time"

// RoomStatus 房间状态，只能按 WAITING -> PLAYING -> FINISHED 前进。
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "WAITING"
	RoomStatusPlaying  RoomStatus = "PLAYING"
	RoomStatusFinished RoomStatus = "FINISHED"
)

// Room limits.
const (
	RoomCodeLength    = 6
	RoomNameMaxLength = 50
	MinPlayers        = 2
	MaxPlayersLimit   = 10
	DefaultMaxPlayers = 6
)

// Next returns the only status s may advance to, and false for the terminal status.
func (s RoomStatus) Next() (RoomStatus, bool) {
	switch s {
	case RoomStatusWaiting:
		return RoomStatusPlaying, true
	case RoomStatusPlaying:
		return RoomStatusFinished, true
	default:
		return "", false
	}
}

// Valid reports whether s is a known status.
func (s RoomStatus) Valid() bool {
	return s == RoomStatusWaiting || s == RoomStatusPlaying || s == RoomStatusFinished
}

// GameRoom 表示一个游戏房间。
type GameRoom struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RoomCode       string     `gorm:"type:varchar(6);uniqueIndex:idx_game_rooms_code;not null" json:"room_code"`
	HostID         uint       `gorm:"index;not null" json:"host_id"`
	Name           string     `gorm:"type:varchar(50);not null" json:"name"`
	MaxPlayers     int        `gorm:"not null;default:6" json:"max_players"`
	CurrentPlayers int        `gorm:"not null;default:0" json:"current_players"`
	Status         RoomStatus `gorm:"type:varchar(16);index;not null;default:WAITING" json:"status"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// IsFull reports whether no seat is left.
func (r *GameRoom) IsFull() bool {
	return r.CurrentPlayers >= r.MaxPlayers
}

// RoomPlayer 是用户在房间中的席位。离开时只标记 IsActive=false，保留历史。
type RoomPlayer struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RoomID   uint      `gorm:"not null;uniqueIndex:idx_room_players_room_user" json:"room_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_room_players_room_user;index" json:"user_id"`
	IsHost   bool      `gorm:"not null;default:false" json:"is_host"`
	JoinedAt time.Time `gorm:"not null;index" json:"joined_at"`
	IsActive bool      `gorm:"not null;default:true;index" json:"is_active"`
}
