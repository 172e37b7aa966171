package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"liar-game/internal/repository"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string // "register", "unregister"
	RoomID uint
	UserID uint
	Client *Client
}

// Hub 维护每个房间的 WebSocket 客户端，并把房间事件推送给它们。
// 每个有本地客户端的房间持有一个事件订阅，最后一个客户端离开时取消。
type Hub struct {
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool
	rooms   map[uint]map[*Client]bool
	roomsMu sync.RWMutex

	subscriber repository.RoomEventSubscriber
	subs       map[uint]repository.RoomSubscription
	subsMu     sync.Mutex
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(subscriber repository.RoomEventSubscriber) *Hub {
	if subscriber == nil {
		panic("RoomEventSubscriber cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[uint]map[*Client]bool),
		subscriber:  subscriber,
		subs:        make(map[uint]repository.RoomSubscription),
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		default:
			log.Warnf("Hub: Received unknown message type: %s from user %d in room %d", msg.Type, msg.UserID, msg.RoomID)
		}
	}
	log.Info("Hub is shutting down...")
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": client.UserID(),
		"action":  "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	if err := h.ensureSubscription(roomID); err != nil {
		logCtx.WithError(err).Error("Failed to subscribe to room events")
		client.trySend(mustMarshal(controlMessage{Type: "error", RoomID: roomID, Message: "Failed to subscribe to room events"}))
		return
	}
	client.trySend(mustMarshal(controlMessage{Type: "subscribed", RoomID: roomID}))
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": client.UserID(),
		"action":  "unregisterClient",
	})

	h.roomsMu.Lock()
	roomClients, ok := h.rooms[roomID]
	if !ok || !roomClients[client] {
		h.roomsMu.Unlock()
		logCtx.Warn("Client not found in room during unregister")
		return
	}
	delete(roomClients, client)
	client.closeSend()
	empty := len(roomClients) == 0
	if empty {
		delete(h.rooms, roomID)
	}
	h.roomsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")

	if empty {
		h.dropSubscription(roomID)
		logCtx.Info("Room has no local clients, subscription closed")
	}
}

// ensureSubscription 在房间没有订阅时建立订阅并启动转发 goroutine
func (h *Hub) ensureSubscription(roomID uint) error {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if _, ok := h.subs[roomID]; ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := h.subscriber.SubscribeRoomEvents(ctx, roomID)
	if err != nil {
		return err
	}
	h.subs[roomID] = sub
	go h.forward(roomID, sub)
	return nil
}

func (h *Hub) dropSubscription(roomID uint) {
	h.subsMu.Lock()
	sub, ok := h.subs[roomID]
	delete(h.subs, roomID)
	h.subsMu.Unlock()

	if ok {
		if err := sub.Close(); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Error closing room subscription")
		}
	}
}

// forward 把订阅收到的事件推给房间里的本地客户端，直到订阅关闭
func (h *Hub) forward(roomID uint, sub repository.RoomSubscription) {
	for event := range sub.Events() {
		data, err := json.Marshal(event)
		if err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to marshal room event")
			continue
		}
		h.broadcast(roomID, data)
	}
	logrus.WithField("room_id", roomID).Debug("Room event forwarder exited")
}

// broadcast 将消息发送给指定房间的所有本地客户端
func (h *Hub) broadcast(roomID uint, message []byte) {
	h.roomsMu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	h.roomsMu.RUnlock()

	if len(clients) == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"message_size":    len(message),
		"recipient_count": len(clients),
	}).Debug("Broadcasting room event to clients")

	for _, client := range clients {
		if !client.trySend(message) {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"user_id": client.UserID(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// --- 公共方法 ---

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)，队列满时返回 false。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ClientCount 返回房间当前的本地客户端数量
func (h *Hub) ClientCount(roomID uint) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// StopAllSubscriptions 关闭所有房间订阅，用于优雅关闭。
func (h *Hub) StopAllSubscriptions() {
	h.subsMu.Lock()
	subs := h.subs
	h.subs = make(map[uint]repository.RoomSubscription)
	h.subsMu.Unlock()

	for roomID, sub := range subs {
		if err := sub.Close(); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Error closing room subscription")
		}
	}
	logrus.WithField("count", len(subs)).Info("Hub: all room subscriptions stopped")
}

// controlMessage 是 Hub 自己发给客户端的消息，房间事件本身按 domain.RoomEvent 原样下发
type controlMessage struct {
	Type    string `json:"type"`
	RoomID  uint   `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`
}

func mustMarshal(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
