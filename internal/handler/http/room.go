package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	"liar-game/internal/middleware"
	"liar-game/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name       string `json:"name" binding:"required"`
	MaxPlayers int    `json:"max_players"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal.IsGuest() {
		HandleServiceError(c, service.ErrAuthenticationRequired)
		return
	}
	logCtx := logrus.WithField("user_id", principal.UserID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: name is required"})
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), principal.UserID, req.Name, req.MaxPlayers)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, room)
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	RoomCode string `json:"room_code" binding:"required"`
}

// JoinRoomResponse 定义加入房间成功的响应结构体
type JoinRoomResponse struct {
	Room   *domain.GameRoom   `json:"room"`
	Player *domain.RoomPlayer `json:"player"`
}

// JoinRoom 处理用户通过房间码加入房间的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal.IsGuest() {
		HandleServiceError(c, service.ErrAuthenticationRequired)
		return
	}

	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("user_id", principal.UserID).Warn("Handler.JoinRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: room_code is required"})
		return
	}

	room, player, err := h.roomService.JoinRoom(c.Request.Context(), req.RoomCode, principal.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, JoinRoomResponse{Room: room, Player: player})
}

// LeaveRoom 处理离开房间的请求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal.IsGuest() {
		HandleServiceError(c, service.ErrAuthenticationRequired)
		return
	}
	roomID, err := idParam(c, "id")
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	room, err := h.roomService.LeaveRoom(c.Request.Context(), roomID, principal.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// ChangeStatusRequest 定义房间状态变更请求
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangeStatus 由房主或管理员推进房间状态
func (h *RoomHandler) ChangeStatus(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	roomID, err := idParam(c, "id")
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: status is required"})
		return
	}

	next := domain.RoomStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	room, err := h.roomService.TransitionStatusBy(c.Request.Context(), roomID, principal, next)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// GetRoom 返回房间详情和在席玩家
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, err := idParam(c, "id")
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	room, players, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, RoomDetailResponse{GameRoom: room, Players: players})
}

// GetRoomByCode 按房间码查找房间
func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	room, err := h.roomService.GetRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// ListRoomsQuery 绑定房间列表的查询参数
type ListRoomsQuery struct {
	PageQuery
	Status string `form:"status"`
}

// ListRooms 分页列出房间
func (h *RoomHandler) ListRooms(c *gin.Context) {
	var q ListRoomsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query", "details": err.Error()})
		return
	}
	page, size := q.normalized()
	status := domain.RoomStatus(strings.ToUpper(strings.TrimSpace(q.Status)))

	rooms, total, err := h.roomService.ListRooms(c.Request.Context(), status, page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if rooms == nil {
		rooms = []domain.GameRoom{}
	}
	SuccessResponse(c, http.StatusOK, PageResponse{Items: rooms, Total: total, Page: page, Size: size})
}
