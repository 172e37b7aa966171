package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"liar-game/internal/domain"
	"liar-game/internal/repository"
)

// fakeRoomRepo 是内存版 RoomRepository。事务持有全局锁，出错时回滚到快照。
type fakeRoomRepo struct {
	mu           sync.Mutex
	nextRoomID   uint
	nextPlayerID uint
	rooms        map[uint]domain.GameRoom
	players      map[uint]domain.RoomPlayer

	// 前 codeTaken 次 IsRoomCodeExists 返回 true
	codeTaken int
	// 前 insertCollisions 次 CreateRoom 返回 ErrDuplicateEntry
	insertCollisions int
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:   make(map[uint]domain.GameRoom),
		players: make(map[uint]domain.RoomPlayer),
	}
}

func (r *fakeRoomRepo) Transaction(ctx context.Context, fn func(tx repository.RoomTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make(map[uint]domain.GameRoom, len(r.rooms))
	for k, v := range r.rooms {
		rooms[k] = v
	}
	players := make(map[uint]domain.RoomPlayer, len(r.players))
	for k, v := range r.players {
		players[k] = v
	}
	nextRoom, nextPlayer := r.nextRoomID, r.nextPlayerID

	if err := fn(&fakeRoomTx{r: r}); err != nil {
		r.rooms, r.players = rooms, players
		r.nextRoomID, r.nextPlayerID = nextRoom, nextPlayer
		return err
	}
	return nil
}

func (r *fakeRoomRepo) FindByID(ctx context.Context, id uint) (*domain.GameRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return &room, nil
}

func (r *fakeRoomRepo) FindByCode(ctx context.Context, code string) (*domain.GameRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomByCode(code)
}

func (r *fakeRoomRepo) IsRoomCodeExists(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codeTaken > 0 {
		r.codeTaken--
		return true, nil
	}
	_, err := r.roomByCode(code)
	return err == nil, nil
}

func (r *fakeRoomRepo) List(ctx context.Context, filter repository.RoomFilter) ([]domain.GameRoom, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []domain.GameRoom
	for _, room := range r.rooms {
		if filter.Status == "" || room.Status == filter.Status {
			all = append(all, room)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	if filter.Offset >= len(all) {
		return []domain.GameRoom{}, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (r *fakeRoomRepo) ListActivePlayers(ctx context.Context, roomID uint) ([]domain.RoomPlayer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activePlayers(roomID), nil
}

func (r *fakeRoomRepo) FindStaleRoomIDs(ctx context.Context, idleSince time.Time, limit int) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uint
	for id, room := range r.rooms {
		idle := room.Status == domain.RoomStatusWaiting && room.UpdatedAt.Before(idleSince)
		empty := room.Status != domain.RoomStatusFinished && room.CurrentPlayers == 0
		if idle || empty {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// setUpdatedAt 直接改写房间时间戳，模拟长时间无操作
func (r *fakeRoomRepo) setUpdatedAt(id uint, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[id]
	room.UpdatedAt = at
	r.rooms[id] = room
}

// setRoom 直接写入房间状态，绕过业务规则
func (r *fakeRoomRepo) setRoom(room domain.GameRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room
}

func (r *fakeRoomRepo) player(roomID, userID uint) (domain.RoomPlayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.RoomID == roomID && p.UserID == userID {
			return p, true
		}
	}
	return domain.RoomPlayer{}, false
}

func (r *fakeRoomRepo) roomByCode(code string) (*domain.GameRoom, error) {
	for _, room := range r.rooms {
		if room.RoomCode == code {
			room := room
			return &room, nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (r *fakeRoomRepo) activePlayers(roomID uint) []domain.RoomPlayer {
	var active []domain.RoomPlayer
	for _, p := range r.players {
		if p.RoomID == roomID && p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].JoinedAt.Equal(active[j].JoinedAt) {
			return active[i].JoinedAt.Before(active[j].JoinedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active
}

type fakeRoomTx struct {
	r *fakeRoomRepo
}

func (tx *fakeRoomTx) LockRoomByID(ctx context.Context, id uint) (*domain.GameRoom, error) {
	room, ok := tx.r.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return &room, nil
}

func (tx *fakeRoomTx) LockRoomByCode(ctx context.Context, code string) (*domain.GameRoom, error) {
	return tx.r.roomByCode(code)
}

func (tx *fakeRoomTx) CreateRoom(ctx context.Context, room *domain.GameRoom) error {
	if tx.r.insertCollisions > 0 {
		tx.r.insertCollisions--
		return repository.ErrDuplicateEntry
	}
	if _, err := tx.r.roomByCode(room.RoomCode); err == nil {
		return repository.ErrDuplicateEntry
	}
	tx.r.nextRoomID++
	room.ID = tx.r.nextRoomID
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt
	tx.r.rooms[room.ID] = *room
	return nil
}

func (tx *fakeRoomTx) UpdateRoom(ctx context.Context, room *domain.GameRoom) error {
	if _, ok := tx.r.rooms[room.ID]; !ok {
		return repository.ErrRoomNotFound
	}
	room.UpdatedAt = time.Now()
	tx.r.rooms[room.ID] = *room
	return nil
}

func (tx *fakeRoomTx) FindPlayer(ctx context.Context, roomID, userID uint) (*domain.RoomPlayer, error) {
	for _, p := range tx.r.players {
		if p.RoomID == roomID && p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrPlayerNotFound
}

func (tx *fakeRoomTx) SavePlayer(ctx context.Context, player *domain.RoomPlayer) error {
	if player.ID == 0 {
		for _, p := range tx.r.players {
			if p.RoomID == player.RoomID && p.UserID == player.UserID {
				return repository.ErrDuplicateEntry
			}
		}
		tx.r.nextPlayerID++
		player.ID = tx.r.nextPlayerID
	}
	tx.r.players[player.ID] = *player
	return nil
}

func (tx *fakeRoomTx) ActivePlayers(ctx context.Context, roomID uint) ([]domain.RoomPlayer, error) {
	return tx.r.activePlayers(roomID), nil
}

func (tx *fakeRoomTx) DeactivatePlayers(ctx context.Context, roomID uint) (int64, error) {
	var n int64
	for id, p := range tx.r.players {
		if p.RoomID == roomID && p.IsActive {
			p.IsActive = false
			p.IsHost = false
			tx.r.players[id] = p
			n++
		}
	}
	return n, nil
}

// recordingPublisher 记录发布的房间事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (p *recordingPublisher) PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
