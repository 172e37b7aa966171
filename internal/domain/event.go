package domain

import "time"

// Room event types published after each lifecycle mutation.
const (
	EventRoomCreated  = "room.created"
	EventPlayerJoined = "player.joined"
	EventPlayerLeft   = "player.left"
	EventHostChanged  = "host.changed"
	EventRoomStatus   = "room.status"
)

// RoomEvent is the message fanned out to websocket subscribers of a room.
type RoomEvent struct {
	Type           string     `json:"type"`
	RoomID         uint       `json:"room_id"`
	UserID         uint       `json:"user_id,omitempty"`
	HostID         uint       `json:"host_id,omitempty"`
	Status         RoomStatus `json:"status,omitempty"`
	CurrentPlayers int        `json:"current_players"`
	MaxPlayers     int        `json:"max_players"`
	At             time.Time  `json:"at"`
}

// NewRoomEvent snapshots room counters into an event of the given type.
func NewRoomEvent(eventType string, room *GameRoom, userID uint) RoomEvent {
	return RoomEvent{
		Type:           eventType,
		RoomID:         room.ID,
		UserID:         userID,
		HostID:         room.HostID,
		Status:         room.Status,
		CurrentPlayers: room.CurrentPlayers,
		MaxPlayers:     room.MaxPlayers,
		At:             time.Now().UTC(),
	}
}
