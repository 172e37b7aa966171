package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	"liar-game/internal/repository"
	"liar-game/internal/sanitize"
)

const (
	roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxCodeAttempts  = 10
	maxCreateRetries = 3

	defaultPageSize = 20
	maxPageSize     = 100
	staleBatchSize  = 100
)

// RoomService 负责房间生命周期：创建、加入、离开、状态流转和过期清理。
// 所有写操作都在一个事务里先锁住房间行，再读改写。
type RoomService struct {
	roomRepo repository.RoomRepository
	events   repository.RoomEventPublisher
}

// NewRoomService 创建 RoomService 实例。events 可以为 nil，此时不发布事件。
func NewRoomService(roomRepo repository.RoomRepository, events repository.RoomEventPublisher) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo, events: events}
}

// CreateRoom 创建房间，创建者作为房主入席。
// maxPlayers 为 0 时使用默认值。
func (s *RoomService) CreateRoom(ctx context.Context, hostID uint, name string, maxPlayers int) (*domain.GameRoom, error) {
	logCtx := logrus.WithField("host_id", hostID)

	if hostID == 0 {
		return nil, ErrAuthenticationRequired
	}
	name = sanitize.RoomTitle(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > domain.RoomNameMaxLength {
		return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("must be 1-%d characters", domain.RoomNameMaxLength)}
	}
	if maxPlayers == 0 {
		maxPlayers = domain.DefaultMaxPlayers
	}
	if maxPlayers < domain.MinPlayers || maxPlayers > domain.MaxPlayersLimit {
		return nil, &ValidationError{
			Field:  "max_players",
			Reason: fmt.Sprintf("must be between %d and %d", domain.MinPlayers, domain.MaxPlayersLimit),
		}
	}

	for attempt := 1; attempt <= maxCreateRetries; attempt++ {
		code, err := s.generateUniqueRoomCode(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate unique room code")
			return nil, ErrInternalServer
		}

		room := &domain.GameRoom{
			RoomCode:       code,
			HostID:         hostID,
			Name:           name,
			MaxPlayers:     maxPlayers,
			CurrentPlayers: 1,
			Status:         domain.RoomStatusWaiting,
		}
		err = s.roomRepo.Transaction(ctx, func(tx repository.RoomTx) error {
			if err := tx.CreateRoom(ctx, room); err != nil {
				return err
			}
			return tx.SavePlayer(ctx, &domain.RoomPlayer{
				RoomID:   room.ID,
				UserID:   hostID,
				IsHost:   true,
				IsActive: true,
				JoinedAt: time.Now(),
			})
		})
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 检查和插入之间码被别人占用了，换一个码重试
			logCtx.WithField("room_code", code).Warnf("Room code collided on insert, retrying (attempt %d)", attempt)
			continue
		}
		if err != nil {
			logCtx.WithError(err).Error("Failed to create room")
			return nil, ErrInternalServer
		}

		logCtx.WithFields(logrus.Fields{"room_id": room.ID, "room_code": code}).Info("Room created successfully")
		s.publish(ctx, domain.NewRoomEvent(domain.EventRoomCreated, room, hostID))
		return room, nil
	}

	logCtx.Errorf("Failed to create room after %d code collisions", maxCreateRetries)
	return nil, ErrInternalServer
}

// JoinRoom 通过房间码加入房间。
// 检查顺序：房间不存在、状态不是 WAITING、已在席、已满。
// 以前离开过的玩家会复用原来的席位记录。
func (s *RoomService) JoinRoom(ctx context.Context, roomCode string, userID uint) (*domain.GameRoom, *domain.RoomPlayer, error) {
	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))
	logCtx := logrus.WithFields(logrus.Fields{"room_code": roomCode, "user_id": userID})

	if userID == 0 {
		return nil, nil, ErrAuthenticationRequired
	}

	var (
		room   *domain.GameRoom
		player *domain.RoomPlayer
	)
	err := s.roomRepo.Transaction(ctx, func(tx repository.RoomTx) error {
		var err error
		room, err = tx.LockRoomByCode(ctx, roomCode)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return notFound("room")
			}
			return err
		}
		if room.Status != domain.RoomStatusWaiting {
			return &InvalidStateError{Current: room.Status, Attempted: "join"}
		}

		player, err = tx.FindPlayer(ctx, room.ID, userID)
		switch {
		case err == nil && player.IsActive:
			return ErrDuplicateMembership
		case err != nil && !errors.Is(err, repository.ErrPlayerNotFound):
			return err
		}
		if room.IsFull() {
			return ErrCapacityExceeded
		}

		if player == nil || err != nil {
			player = &domain.RoomPlayer{RoomID: room.ID, UserID: userID}
		}
		player.IsActive = true
		player.IsHost = false
		player.JoinedAt = time.Now()
		if err := tx.SavePlayer(ctx, player); err != nil {
			return err
		}

		room.CurrentPlayers++
		return tx.UpdateRoom(ctx, room)
	})
	if err != nil {
		return nil, nil, s.txError(logCtx, "JoinRoom", err)
	}

	logCtx.WithFields(logrus.Fields{
		"room_id":         room.ID,
		"current_players": room.CurrentPlayers,
	}).Info("User joined room successfully")
	s.publish(ctx, domain.NewRoomEvent(domain.EventPlayerJoined, room, userID))
	return room, player, nil
}

// LeaveRoom 让玩家离开房间。
// 房主离开时由最早入席的在席玩家接任；最后一人离开时房间直接结束。
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID uint) (*domain.GameRoom, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	var (
		room        *domain.GameRoom
		hostChanged bool
		closed      bool
	)
	err := s.roomRepo.Transaction(ctx, func(tx repository.RoomTx) error {
		var err error
		room, err = tx.LockRoomByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return notFound("room")
			}
			return err
		}

		player, err := tx.FindPlayer(ctx, roomID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrPlayerNotFound) {
				return notFound("room player")
			}
			return err
		}
		if !player.IsActive {
			return notFound("room player")
		}

		wasHost := player.IsHost || room.HostID == userID
		player.IsActive = false
		player.IsHost = false
		if err := tx.SavePlayer(ctx, player); err != nil {
			return err
		}

		remaining, err := tx.ActivePlayers(ctx, roomID)
		if err != nil {
			return err
		}
		room.CurrentPlayers = len(remaining)

		switch {
		case len(remaining) == 0:
			if room.Status != domain.RoomStatusFinished {
				room.Status = domain.RoomStatusFinished
				closed = true
			}
		case wasHost:
			successor := remaining[0]
			successor.IsHost = true
			if err := tx.SavePlayer(ctx, &successor); err != nil {
				return err
			}
			room.HostID = successor.UserID
			hostChanged = true
		}
		return tx.UpdateRoom(ctx, room)
	})
	if err != nil {
		return nil, s.txError(logCtx, "LeaveRoom", err)
	}

	logCtx.WithFields(logrus.Fields{
		"current_players": room.CurrentPlayers,
		"host_id":         room.HostID,
		"status":          room.Status,
	}).Info("User left room")

	s.publish(ctx, domain.NewRoomEvent(domain.EventPlayerLeft, room, userID))
	if hostChanged {
		s.publish(ctx, domain.NewRoomEvent(domain.EventHostChanged, room, room.HostID))
	}
	if closed {
		s.publish(ctx, domain.NewRoomEvent(domain.EventRoomStatus, room, 0))
	}
	return room, nil
}

// TransitionStatus 把房间推进到下一个状态，只允许 WAITING→PLAYING→FINISHED。
func (s *RoomService) TransitionStatus(ctx context.Context, roomID uint, next domain.RoomStatus) (*domain.GameRoom, error) {
	return s.transition(ctx, roomID, next, nil)
}

// TransitionStatusBy 同 TransitionStatus，但要求 actor 是房主或管理员。
func (s *RoomService) TransitionStatusBy(ctx context.Context, roomID uint, actor *domain.Principal, next domain.RoomStatus) (*domain.GameRoom, error) {
	if actor == nil || actor.IsGuest() {
		return nil, ErrAuthenticationRequired
	}
	return s.transition(ctx, roomID, next, func(room *domain.GameRoom) error {
		if actor.Role == domain.RoleAdmin || room.HostID == actor.UserID {
			return nil
		}
		return &PermissionDeniedError{
			ActualRole: actor.Role,
			ActualTier: actor.Tier,
			Reason:     "only the room host can change the room status",
		}
	})
}

func (s *RoomService) transition(ctx context.Context, roomID uint, next domain.RoomStatus, authorize func(*domain.GameRoom) error) (*domain.GameRoom, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "next_status": next})

	if !next.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "must be one of WAITING, PLAYING, FINISHED"}
	}

	var room *domain.GameRoom
	err := s.roomRepo.Transaction(ctx, func(tx repository.RoomTx) error {
		var err error
		room, err = tx.LockRoomByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return notFound("room")
			}
			return err
		}
		if authorize != nil {
			if err := authorize(room); err != nil {
				return err
			}
		}
		if want, ok := room.Status.Next(); !ok || want != next {
			return &InvalidStateError{Current: room.Status, Attempted: "transition to " + string(next)}
		}
		room.Status = next
		return tx.UpdateRoom(ctx, room)
	})
	if err != nil {
		return nil, s.txError(logCtx, "TransitionStatus", err)
	}

	logCtx.Info("Room status changed")
	s.publish(ctx, domain.NewRoomEvent(domain.EventRoomStatus, room, 0))
	return room, nil
}

// CloseStaleRooms 结束长时间无人操作的 WAITING 房间和已经没人的房间，返回关闭数量。
func (s *RoomService) CloseStaleRooms(ctx context.Context, idleFor time.Duration) (int, error) {
	cutoff := time.Now().Add(-idleFor)
	logCtx := logrus.WithField("idle_since", cutoff.Format(time.RFC3339))

	ids, err := s.roomRepo.FindStaleRoomIDs(ctx, cutoff, staleBatchSize)
	if err != nil {
		logCtx.WithError(err).Error("CloseStaleRooms: failed to list stale rooms")
		return 0, ErrInternalServer
	}

	closed := 0
	for _, id := range ids {
		var room *domain.GameRoom
		err := s.roomRepo.Transaction(ctx, func(tx repository.RoomTx) error {
			var err error
			room, err = tx.LockRoomByID(ctx, id)
			if err != nil {
				return err
			}
			// 加锁后重新判断，期间可能有人加入或房间已被结束
			idle := room.Status == domain.RoomStatusWaiting && room.UpdatedAt.Before(cutoff)
			empty := room.Status != domain.RoomStatusFinished && room.CurrentPlayers == 0
			if !idle && !empty {
				room = nil
				return nil
			}
			if _, err := tx.DeactivatePlayers(ctx, id); err != nil {
				return err
			}
			room.CurrentPlayers = 0
			room.Status = domain.RoomStatusFinished
			return tx.UpdateRoom(ctx, room)
		})
		if err != nil {
			logCtx.WithError(err).WithField("room_id", id).Warn("CloseStaleRooms: failed to close room")
			continue
		}
		if room == nil {
			continue
		}
		closed++
		s.publish(ctx, domain.NewRoomEvent(domain.EventRoomStatus, room, 0))
	}

	if closed > 0 {
		logCtx.WithField("closed", closed).Info("Closed stale rooms")
	}
	return closed, nil
}

// GetRoom 返回房间及其在席玩家。
func (s *RoomService) GetRoom(ctx context.Context, roomID uint) (*domain.GameRoom, []domain.RoomPlayer, error) {
	logCtx := logrus.WithField("room_id", roomID)
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, nil, s.lookupError(logCtx, "GetRoom", err)
	}
	players, err := s.roomRepo.ListActivePlayers(ctx, room.ID)
	if err != nil {
		logCtx.WithError(err).Error("GetRoom: failed to list players")
		return nil, nil, ErrInternalServer
	}
	return room, players, nil
}

// GetRoomByCode 按房间码查找房间，大小写不敏感。
func (s *RoomService) GetRoomByCode(ctx context.Context, roomCode string) (*domain.GameRoom, error) {
	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))
	room, err := s.roomRepo.FindByCode(ctx, roomCode)
	if err != nil {
		return nil, s.lookupError(logrus.WithField("room_code", roomCode), "GetRoomByCode", err)
	}
	return room, nil
}

// ListPlayers 返回房间在席玩家，按加入顺序。
func (s *RoomService) ListPlayers(ctx context.Context, roomID uint) ([]domain.RoomPlayer, error) {
	if _, err := s.roomRepo.FindByID(ctx, roomID); err != nil {
		return nil, s.lookupError(logrus.WithField("room_id", roomID), "ListPlayers", err)
	}
	players, err := s.roomRepo.ListActivePlayers(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("ListPlayers: repository error")
		return nil, ErrInternalServer
	}
	return players, nil
}

// ListRooms 分页列出房间。status 为空表示不过滤；page 从 1 开始。
func (s *RoomService) ListRooms(ctx context.Context, status domain.RoomStatus, page, size int) ([]domain.GameRoom, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, &ValidationError{Field: "status", Reason: "must be one of WAITING, PLAYING, FINISHED"}
	}
	offset, limit := pageBounds(page, size)

	rooms, total, err := s.roomRepo.List(ctx, repository.RoomFilter{Status: status, Offset: offset, Limit: limit})
	if err != nil {
		logrus.WithError(err).WithField("status", status).Error("ListRooms: repository error")
		return nil, 0, ErrInternalServer
	}
	return rooms, total, nil
}

// --- 私有辅助函数 ---

// generateUniqueRoomCode 生成未被占用的房间码
func (s *RoomService) generateUniqueRoomCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := randomRoomCode()
		if err != nil {
			return "", err
		}
		exists, err := s.roomRepo.IsRoomCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !exists {
			logrus.WithField("room_code", code).Debugf("Generated unique room code after %d attempt(s).", attempt)
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)...", attempt)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxCodeAttempts)
}

// randomRoomCode 均匀地从字母表里取字符，丢弃会造成取模偏差的字节。
func randomRoomCode() (string, error) {
	const limit = 256 - 256%len(roomCodeAlphabet)

	code := make([]byte, 0, domain.RoomCodeLength)
	buf := make([]byte, domain.RoomCodeLength*2)
	for len(code) < domain.RoomCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == domain.RoomCodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// txError 透传业务错误，其余记录日志后统一成 ErrInternalServer。
func (s *RoomService) txError(logCtx *logrus.Entry, op string, err error) error {
	for _, known := range []error{
		ErrNotFound, ErrInvalidState, ErrCapacityExceeded, ErrDuplicateMembership,
		ErrPermissionDenied, ErrValidationFailed, ErrAuthenticationRequired,
	} {
		if errors.Is(err, known) {
			logCtx.WithError(err).Infof("%s rejected", op)
			return err
		}
	}
	logCtx.WithError(err).Errorf("%s: repository error", op)
	return ErrInternalServer
}

func (s *RoomService) lookupError(logCtx *logrus.Entry, op string, err error) error {
	if errors.Is(err, repository.ErrRoomNotFound) {
		logCtx.Debugf("%s: room not found", op)
		return notFound("room")
	}
	logCtx.WithError(err).Errorf("%s: repository error", op)
	return ErrInternalServer
}

func (s *RoomService) publish(ctx context.Context, event domain.RoomEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRoomEvent(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": event.RoomID,
			"event":   event.Type,
		}).Warn("Failed to publish room event")
	}
}

func pageBounds(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return (page - 1) * size, size
}
