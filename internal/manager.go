package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Manager 房間註冊表
//
// 房間在第一次 join 時建立，在沒有玩家或收齊分數時移除。
// 鎖順序固定為「房間鎖 → 註冊表鎖」，持有註冊表鎖時不得再取房間鎖。
type Manager struct {
	rooms       map[string]*Room                      // roomID -> Room
	playerRooms map[ParticipantID]map[string]struct{} // playerID -> roomIDs
	mu          sync.RWMutex

	out      Broadcaster
	notifier MatchNotifier
	policy   Policy
	logger   *slog.Logger
}

// Option 設定 Manager
type Option func(*Manager)

// WithPolicy 設定行為策略
func WithPolicy(policy Policy) Option {
	return func(m *Manager) {
		m.policy = policy
	}
}

// WithNotifier 設定比賽事件通知
func WithNotifier(notifier MatchNotifier) Option {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// NewManager 創建房間管理器
func NewManager(logger *slog.Logger, out Broadcaster, opts ...Option) *Manager {
	m := &Manager{
		rooms:       make(map[string]*Room),
		playerRooms: make(map[ParticipantID]map[string]struct{}),
		out:         out,
		notifier:    NopNotifier{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetRoom 獲取房間
func (m *Manager) GetRoom(roomID string) (*Room, error) {
	m.mu.RLock()
	room, exists := m.rooms[roomID]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// getOrCreate 獲取或創建房間，同一個 roomID 同時第一次加入只會產生一個實例
func (m *Manager) getOrCreate(roomID string) *Room {
	m.mu.RLock()
	room, exists := m.rooms[roomID]
	m.mu.RUnlock()
	if exists {
		return room
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, exists := m.rooms[roomID]; exists {
		return room
	}
	room = newRoom(roomID, m)
	m.rooms[roomID] = room
	m.logger.Info("房間已創建", "room_id", roomID)
	return room
}

// release 移除房間，只在註冊的仍是同一個實例時才刪除
func (m *Manager) release(room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.rooms[room.ID]; exists && current == room {
		delete(m.rooms, room.ID)
		m.logger.Info("房間已移除", "room_id", room.ID)
	}
}

func (m *Manager) track(pid ParticipantID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := m.playerRooms[pid]
	if rooms == nil {
		rooms = make(map[string]struct{})
		m.playerRooms[pid] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (m *Manager) untrack(pid ParticipantID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rooms, exists := m.playerRooms[pid]; exists {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.playerRooms, pid)
		}
	}
}

// JoinRoom 加入房間（房間不存在時建立）
func (m *Manager) JoinRoom(roomID string, pid ParticipantID, ack func(JoinResult, error)) (JoinResult, error) {
	for {
		room := m.getOrCreate(roomID)
		result, err := room.Join(pid, ack)
		if errors.Is(err, ErrRoomClosed) {
			// 拿到的是剛被銷毀的房間，重新取一次
			continue
		}
		if err != nil {
			m.logger.Info("加入房間被拒絕",
				"room_id", roomID,
				"player_id", pid,
				"error", err)
			return result, err
		}
		m.logger.Info("玩家加入房間",
			"room_id", roomID,
			"player_id", pid,
			"is_host", result.IsHost)
		return result, nil
	}
}

// IsHost 查詢玩家是否為房主
func (m *Manager) IsHost(roomID string, pid ParticipantID) bool {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return false
	}
	return room.IsHost(pid)
}

// SetSettings 設定科目與難度
func (m *Manager) SetSettings(roomID string, pid ParticipantID, settings Settings) error {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return err
	}
	return room.SetSettings(pid, settings)
}

// SetQuestions 設定題目
func (m *Manager) SetQuestions(roomID string, pid ParticipantID, questions []json.RawMessage, seed json.RawMessage) error {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return err
	}
	return room.SetQuestions(pid, questions, seed)
}

// MarkReady 設置玩家準備狀態
func (m *Manager) MarkReady(roomID string, pid ParticipantID) error {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return err
	}
	return room.MarkReady(pid)
}

// RelayAnswer 轉發答案
func (m *Manager) RelayAnswer(roomID string, pid ParticipantID, answer json.RawMessage, questionIndex int) error {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return err
	}
	return room.RelayAnswer(pid, answer, questionIndex)
}

// SubmitScore 提交分數
func (m *Manager) SubmitScore(roomID string, pid ParticipantID, score float64) error {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return err
	}
	return room.SubmitScore(pid, score)
}

// Disconnect 玩家斷線，從所有加入過的房間移除
//
// 回傳實際離開的房間數。
func (m *Manager) Disconnect(pid ParticipantID) int {
	m.mu.RLock()
	roomIDs := make([]string, 0, len(m.playerRooms[pid]))
	for roomID := range m.playerRooms[pid] {
		roomIDs = append(roomIDs, roomID)
	}
	m.mu.RUnlock()

	left := 0
	for _, roomID := range roomIDs {
		room, err := m.GetRoom(roomID)
		if err != nil {
			m.untrack(pid, roomID)
			continue
		}
		removed, err := room.Leave(pid)
		if err != nil {
			m.untrack(pid, roomID)
			continue
		}
		left++
		m.logger.Info("玩家離開房間",
			"room_id", roomID,
			"player_id", pid,
			"room_removed", removed)
	}
	return left
}

// RoomSummary 房間列表項目
type RoomSummary struct {
	RoomID         string        `json:"room_id"`
	Phase          Phase         `json:"phase"`
	CurrentPlayers int           `json:"current_players"`
	MaxPlayers     int           `json:"max_players"`
	HostID         ParticipantID `json:"host_id,omitempty"`
}

// ListRooms 列出房間（phase 為空表示不過濾）
func (m *Manager) ListRooms(phase Phase, page, limit int) ([]RoomSummary, int) {
	var filtered []RoomState
	for _, room := range m.snapshotRooms() {
		state := room.State()
		if state.Closed {
			continue
		}
		if phase != "" && state.Phase != phase {
			continue
		}
		filtered = append(filtered, state)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].RoomID < filtered[j].RoomID
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	total := len(filtered)

	// 分頁
	start := (page - 1) * limit
	end := start + limit
	if start >= total || start < 0 {
		return []RoomSummary{}, total
	}
	if end > total {
		end = total
	}

	result := make([]RoomSummary, 0, end-start)
	for _, state := range filtered[start:end] {
		result = append(result, RoomSummary{
			RoomID:         state.RoomID,
			Phase:          state.Phase,
			CurrentPlayers: len(state.Players),
			MaxPlayers:     MaxPlayers,
			HostID:         state.HostID,
		})
	}
	return result, total
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	phaseCount := make(map[Phase]int)
	totalRooms := 0
	totalPlayers := 0

	for _, room := range m.snapshotRooms() {
		state := room.State()
		if state.Closed {
			continue
		}
		totalRooms++
		phaseCount[state.Phase]++
		totalPlayers += len(state.Players)
	}

	return map[string]any{
		"total_rooms":   totalRooms,
		"total_players": totalPlayers,
		"by_phase":      phaseCount,
	}
}

// RoomCount 目前註冊的房間數
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Stop 關閉所有房間
func (m *Manager) Stop() {
	for _, room := range m.snapshotRooms() {
		room.shutdown()
	}
	m.logger.Info("房間管理器已停止")
}

// snapshotRooms 複製房間列表後立即釋放註冊表鎖
func (m *Manager) snapshotRooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
