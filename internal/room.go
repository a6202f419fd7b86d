package internal

import (
	"bytes"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// 系統設計問題：
//   兩條互不相干的連接以任意順序送來 join / 設定 / 題目 / 準備 / 斷線事件，
//   如何確保「開始比賽」恰好觸發一次，並在房間結束或被放棄時回收狀態？
//
// 設計方案：
//   - 每個房間一把 Mutex，所有處理器在同一個臨界區內修改狀態並廣播
//   - 單一純函數 evaluateStart 決定是否開始，所有修改狀態的處理器都呼叫它
//   - phase 只能前進，in_progress 最多進入一次

// MaxPlayers 每個房間的玩家數
const MaxPlayers = 2

// Phase 房間階段
//
//	forming → configuring → in_progress → finished
//
// 轉換規則：
//   - forming → configuring：第二位玩家加入
//   - configuring → in_progress：開始條件成立（evaluateStart）
//   - in_progress → finished：收齊兩份分數，隨即銷毀房間
//   - 斷線不會改變階段
type Phase string

const (
	PhaseForming     Phase = "forming"
	PhaseConfiguring Phase = "configuring"
	PhaseInProgress  Phase = "in_progress"
	PhaseFinished    Phase = "finished"
)

func (p Phase) rank() int {
	switch p {
	case PhaseConfiguring:
		return 1
	case PhaseInProgress:
		return 2
	case PhaseFinished:
		return 3
	default:
		return 0
	}
}

// Settings 比賽設定
type Settings struct {
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty"`
}

// Score 一份提交的分數
type Score struct {
	Participant ParticipantID `json:"player_id"`
	Value       float64       `json:"score"`
}

// Policy 歷史版本之間有分歧的行為，預設值即標準行為
type Policy struct {
	SettingsWriteOnce bool // 設定只能寫一次（預設：後寫覆蓋）
	HostOnlyConfig    bool // 只有房主能送設定與題目（預設：任何玩家）
	DedupeScores      bool // 同一玩家重複提交只算一次（預設：都算）
}

// Room 一場雙人比賽
//
// 狀態只能透過方法存取，方法內部持有 mu。
// 房間被銷毀後 closed 為 true，所有操作回傳 ErrRoomClosed。
type Room struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	players   []ParticipantID // players[0] 為房主
	settings  *Settings
	questions []json.RawMessage
	seed      json.RawMessage
	readiness map[ParticipantID]bool
	phase     Phase
	scores    []Score
	closed    bool
	updatedAt time.Time

	owner *Manager
}

// RoomState 房間快照（用於序列化）
type RoomState struct {
	RoomID        string                 `json:"room_id"`
	Phase         Phase                  `json:"phase"`
	Players       []ParticipantID        `json:"players"`
	HostID        ParticipantID          `json:"host_id,omitempty"`
	Settings      *Settings              `json:"settings,omitempty"`
	QuestionCount int                    `json:"question_count"`
	HasSeed       bool                   `json:"has_seed"`
	Ready         map[ParticipantID]bool `json:"ready"`
	Scores        []Score                `json:"scores"`
	Closed        bool                   `json:"closed"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func newRoom(id string, owner *Manager) *Room {
	now := time.Now()
	return &Room{
		ID:        id,
		CreatedAt: now,
		players:   make([]ParticipantID, 0, MaxPlayers),
		readiness: make(map[ParticipantID]bool),
		phase:     PhaseForming,
		scores:    make([]Score, 0, MaxPlayers),
		updatedAt: now,
		owner:     owner,
	}
}

// Join 加入房間
//
// 已在房間內的玩家重複加入是冪等的：不會新增項目，但仍會廣播一次 player_joined。
// 房間已滿時只通知被拒絕的玩家（room_full），不做任何廣播。
// ack 在臨界區內、任何廣播之前被呼叫，因此客戶端一定先收到回應。
func (r *Room) Join(pid ParticipantID, ack func(JoinResult, error)) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinResult{}, ErrRoomClosed
	}

	if !r.isMember(pid) {
		if len(r.players) >= MaxPlayers {
			if ack != nil {
				ack(JoinResult{}, ErrRoomFull)
			}
			r.emit([]ParticipantID{pid}, EventRoomFull, RoomFullPayload{RoomID: r.ID})
			return JoinResult{}, ErrRoomFull
		}
		r.players = append(r.players, pid)
		r.readiness[pid] = false
		r.owner.track(pid, r.ID)
		if len(r.players) == MaxPlayers {
			r.advance(PhaseConfiguring)
		}
	}
	r.touch()

	result := JoinResult{IsHost: r.players[0] == pid}
	if r.settings != nil {
		subject, difficulty := r.settings.Subject, r.settings.Difficulty
		result.Subject = &subject
		result.Difficulty = &difficulty
	}
	if ack != nil {
		ack(result, nil)
	}

	r.emit(r.recipients(""), EventPlayerJoined, r.playerList())
	r.tryStart()
	return result, nil
}

// IsHost 是否為房主，未知的房間或玩家回傳 false
func (r *Room) IsHost(pid ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && len(r.players) > 0 && r.players[0] == pid
}

// SetSettings 設定科目與難度
func (r *Room) SetSettings(pid ParticipantID, settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkConfigurable(pid); err != nil {
		return err
	}
	if r.owner.policy.SettingsWriteOnce && r.settings != nil {
		return ErrSettingsLocked
	}

	r.settings = &settings
	r.touch()
	r.tryStart()
	return nil
}

// SetQuestions 儲存題目與亂數種子
//
// 題目會被深拷貝，送出者之後修改自己的副本不影響房間內的資料。
func (r *Room) SetQuestions(pid ParticipantID, questions []json.RawMessage, seed json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkConfigurable(pid); err != nil {
		return err
	}

	r.questions = cloneQuestions(questions)
	r.seed = bytes.Clone(seed)
	r.touch()
	r.tryStart()
	return nil
}

// MarkReady 標記玩家已準備
//
// 題目或設定還沒到也會記錄準備狀態，是否開始由 evaluateStart 決定。
func (r *Room) MarkReady(pid ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if !r.isMember(pid) {
		return ErrNotInRoom
	}
	if r.phase.rank() >= PhaseInProgress.rank() {
		return ErrMatchStarted
	}

	r.readiness[pid] = true
	r.touch()
	r.tryStart()
	return nil
}

// RelayAnswer 把答案轉發給對手（不含送出者），不修改狀態
func (r *Room) RelayAnswer(sender ParticipantID, answer json.RawMessage, questionIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if !r.isMember(sender) {
		return ErrNotInRoom
	}

	r.emit(r.recipients(sender), EventOpponentAnswered, OpponentAnsweredPayload{
		Answer:        bytes.Clone(answer),
		QuestionIndex: questionIndex,
	})
	return nil
}

// SubmitScore 提交分數
//
// 收齊兩份後按提交順序廣播 receive_scores，然後銷毀房間。
func (r *Room) SubmitScore(pid ParticipantID, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if !r.isMember(pid) {
		return ErrNotInRoom
	}
	if r.owner.policy.DedupeScores && r.hasScore(pid) {
		return ErrDuplicateScore
	}

	r.scores = append(r.scores, Score{Participant: pid, Value: value})
	r.touch()

	if len(r.scores) < MaxPlayers {
		return nil
	}

	r.emit(r.recipients(""), EventReceiveScores, ScoresPayload{
		Player1: r.scores[0].Value,
		Player2: r.scores[1].Value,
	})
	r.advance(PhaseFinished)
	r.owner.notifier.MatchFinished(r.ID, slices.Clone(r.scores))
	r.owner.logger.Info("比賽結束",
		"room_id", r.ID,
		"player1", r.scores[0].Value,
		"player2", r.scores[1].Value)
	r.destroy()
	return nil
}

// Leave 玩家離開（斷線）
//
// 房主離開後 players[0] 自動成為新房主。回傳房間是否因此被銷毀。
func (r *Room) Leave(pid ParticipantID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRoomClosed
	}
	idx := slices.Index(r.players, pid)
	if idx < 0 {
		return false, ErrNotInRoom
	}

	r.players = slices.Delete(r.players, idx, idx+1)
	delete(r.readiness, pid)
	r.scores = slices.DeleteFunc(r.scores, func(s Score) bool {
		return s.Participant == pid
	})
	r.owner.untrack(pid, r.ID)
	r.touch()

	if idx == 0 && len(r.players) > 0 {
		r.owner.logger.Info("房主轉移",
			"room_id", r.ID,
			"from", pid,
			"to", r.players[0])
	}

	r.emit(r.recipients(""), EventPlayerLeft, r.playerList())

	if len(r.players) == 0 {
		r.owner.notifier.RoomAbandoned(r.ID, r.phase)
		r.destroy()
		return true, nil
	}
	return false, nil
}

// State 獲取房間快照
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := RoomState{
		RoomID:        r.ID,
		Phase:         r.phase,
		Players:       r.playerList(),
		QuestionCount: len(r.questions),
		HasSeed:       len(r.seed) > 0,
		Ready:         make(map[ParticipantID]bool, len(r.readiness)),
		Scores:        slices.Clone(r.scores),
		Closed:        r.closed,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.updatedAt,
	}
	if len(r.players) > 0 {
		state.HostID = r.players[0]
	}
	if r.settings != nil {
		settings := *r.settings
		state.Settings = &settings
	}
	for pid, ready := range r.readiness {
		state.Ready[pid] = ready
	}
	return state
}

// PlayerCount 玩家數量
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// shutdown 服務器關閉時銷毀房間
func (r *Room) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.destroy()
}

// evaluateStart 開始條件（純函數，呼叫者需持有鎖）
//
// 兩位玩家、有設定、有題目、尚未開始，且每位非房主玩家都已準備。
// 房主視為永遠已準備，不依賴 readiness 裡的值。
func evaluateStart(r *Room) bool {
	if len(r.players) != MaxPlayers {
		return false
	}
	if r.settings == nil || r.questions == nil {
		return false
	}
	if r.phase.rank() >= PhaseInProgress.rank() {
		return false
	}
	host := r.players[0]
	for _, pid := range r.players {
		if pid == host {
			continue
		}
		if !r.readiness[pid] {
			return false
		}
	}
	return true
}

// tryStart 條件成立時廣播 start_quiz 並進入 in_progress（需持有鎖）
func (r *Room) tryStart() {
	if !evaluateStart(r) {
		return
	}

	r.emit(r.recipients(""), EventStartQuiz, StartQuizPayload{
		Subject:       r.settings.Subject,
		Difficulty:    r.settings.Difficulty,
		Questions:     r.questions,
		Seed:          r.seed,
		IsMultiplayer: true,
	})
	r.advance(PhaseInProgress)
	r.owner.notifier.MatchStarted(r.ID, r.playerList(), *r.settings, len(r.questions))
	r.owner.logger.Info("比賽開始",
		"room_id", r.ID,
		"subject", r.settings.Subject,
		"difficulty", r.settings.Difficulty,
		"questions", len(r.questions))
}

// checkConfigurable 設定與題目共用的前置檢查（需持有鎖）
func (r *Room) checkConfigurable(pid ParticipantID) error {
	if r.closed {
		return ErrRoomClosed
	}
	if !r.isMember(pid) {
		return ErrNotInRoom
	}
	if r.owner.policy.HostOnlyConfig && r.players[0] != pid {
		return ErrNotHost
	}
	if r.phase.rank() >= PhaseInProgress.rank() {
		return ErrMatchStarted
	}
	return nil
}

// destroy 標記關閉並從註冊表移除（需持有鎖）
func (r *Room) destroy() {
	r.closed = true
	for _, pid := range r.players {
		r.owner.untrack(pid, r.ID)
	}
	r.owner.release(r)
}

// advance 只允許階段前進
func (r *Room) advance(next Phase) {
	if next.rank() > r.phase.rank() {
		r.phase = next
	}
}

func (r *Room) emit(recipients []ParticipantID, eventType string, data any) {
	if len(recipients) == 0 {
		return
	}
	r.owner.out.Deliver(recipients, Event{Type: eventType, Data: data})
}

// recipients 房間內所有玩家，exclude 不為空時排除該玩家
func (r *Room) recipients(exclude ParticipantID) []ParticipantID {
	out := make([]ParticipantID, 0, len(r.players))
	for _, pid := range r.players {
		if pid != exclude {
			out = append(out, pid)
		}
	}
	return out
}

func (r *Room) playerList() []ParticipantID {
	return slices.Clone(r.players)
}

func (r *Room) isMember(pid ParticipantID) bool {
	return slices.Contains(r.players, pid)
}

func (r *Room) hasScore(pid ParticipantID) bool {
	return slices.ContainsFunc(r.scores, func(s Score) bool {
		return s.Participant == pid
	})
}

func (r *Room) touch() {
	r.updatedAt = time.Now()
}

func cloneQuestions(questions []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(questions))
	for i, q := range questions {
		out[i] = bytes.Clone(q)
	}
	return out
}
