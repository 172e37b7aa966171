package websocket

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	httpHandler "liar-game/internal/handler/http"
	"liar-game/internal/hub"
	"liar-game/internal/middleware"
	"liar-game/internal/service"
)

// WebSocketHandler 负责处理房间事件流的 WebSocket 升级和客户端注册
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空时不校验 Origin。
func NewWebSocketHandler(hub *hub.Hub, roomService *service.RoomService, allowedOrigin string) *WebSocketHandler {
	if hub == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		hub:         hub,
		roomService: roomService,
	}
}

// HandleConnection 处理 /ws/rooms/:id 的连接请求。
// 只有房间的在席玩家和管理员可以订阅。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal.IsGuest() {
		httpHandler.HandleServiceError(c, service.ErrAuthenticationRequired)
		return
	}
	logCtx := logrus.WithField("user_id", principal.UserID)

	roomIDUint64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || roomIDUint64 == 0 {
		logCtx.WithError(err).Warnf("WS Handler: Invalid room ID format: %s", c.Param("id"))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID format"})
		return
	}
	roomID := uint(roomIDUint64)
	logCtx = logCtx.WithField("room_id", roomID)

	ctx := c.Request.Context()
	players, err := h.roomService.ListPlayers(ctx, roomID)
	if err != nil {
		httpHandler.HandleServiceError(c, err)
		return
	}
	if principal.Role != domain.RoleAdmin && !containsUser(players, principal.UserID) {
		httpHandler.HandleServiceError(c, &service.PermissionDeniedError{
			ActualRole: principal.Role,
			ActualTier: principal.Tier,
			Reason:     "only players in the room can subscribe to its events",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, roomID, principal.UserID)
	if !h.hub.QueueMessage(hub.HubMessage{
		Type:   "register",
		Client: client,
		RoomID: roomID,
		UserID: principal.UserID,
	}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	client.Run()
}

func containsUser(players []domain.RoomPlayer, userID uint) bool {
	for _, p := range players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
