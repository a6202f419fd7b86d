package internal

import "encoding/json"

// 客戶端 → 服務器事件
const (
	EventJoinRoom        = "join_room"
	EventWhoIsHost       = "who_is_host"
	EventSetQuizSettings = "set_quiz_settings"
	EventSetQuestions    = "set_questions"
	EventReadyToStart    = "ready_to_start"
	EventAnswer          = "answer"
	EventSubmitScore     = "submit_score"
	EventPing            = "ping"
)

// 服務器 → 客戶端事件
const (
	EventConnected        = "connected"
	EventAck              = "ack"
	EventPong             = "pong"
	EventError            = "error"
	EventPlayerJoined     = "player_joined"
	EventStartQuiz        = "start_quiz"
	EventOpponentAnswered = "opponent_answered"
	EventPlayerLeft       = "player_left"
	EventReceiveScores    = "receive_scores"
	EventRoomFull         = "room_full"
)

// ParticipantID 一條連接的識別碼，斷線後失效
type ParticipantID string

// Event 推送給客戶端的事件
type Event struct {
	Type  string `json:"event"`
	AckID *int64 `json:"ackId,omitempty"`
	Data  any    `json:"data"`
}

// Broadcaster 將事件投遞給指定的參與者
//
// Room 在持有房間鎖的情況下同步呼叫 Deliver，
// 實作必須保持每個參與者收到事件的順序，且不得阻塞。
type Broadcaster interface {
	Deliver(recipients []ParticipantID, event Event)
}

// BroadcasterFunc 讓普通函數實作 Broadcaster
type BroadcasterFunc func(recipients []ParticipantID, event Event)

// Deliver 實作 Broadcaster
func (f BroadcasterFunc) Deliver(recipients []ParticipantID, event Event) {
	f(recipients, event)
}

// JoinResult join_room 的回應
type JoinResult struct {
	IsHost     bool    `json:"isHost"`
	Subject    *string `json:"subject"`
	Difficulty *string `json:"difficulty"`
}

// StartQuizPayload start_quiz 的內容
type StartQuizPayload struct {
	Subject       string            `json:"subject"`
	Difficulty    string            `json:"difficulty"`
	Questions     []json.RawMessage `json:"questions"`
	Seed          json.RawMessage   `json:"seed,omitempty"`
	IsMultiplayer bool              `json:"isMultiplayer"`
}

// OpponentAnsweredPayload opponent_answered 的內容
type OpponentAnsweredPayload struct {
	Answer        json.RawMessage `json:"answer"`
	QuestionIndex int             `json:"questionIndex"`
}

// ScoresPayload receive_scores 的內容（按提交順序，不按房主/客人）
type ScoresPayload struct {
	Player1 float64 `json:"player1"`
	Player2 float64 `json:"player2"`
}

// RoomFullPayload room_full 的內容
type RoomFullPayload struct {
	RoomID string `json:"roomId"`
}

// ErrorPayload error 事件的內容
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
