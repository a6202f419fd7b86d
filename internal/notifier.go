package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// MatchNotifier 比賽生命週期通知
//
// Room 在持有房間鎖時呼叫，實作不得阻塞。
type MatchNotifier interface {
	MatchStarted(roomID string, players []ParticipantID, settings Settings, questionCount int)
	MatchFinished(roomID string, scores []Score)
	RoomAbandoned(roomID string, phase Phase)
}

// NopNotifier 不做任何事
type NopNotifier struct{}

func (NopNotifier) MatchStarted(string, []ParticipantID, Settings, int) {}
func (NopNotifier) MatchFinished(string, []Score)                       {}
func (NopNotifier) RoomAbandoned(string, Phase)                         {}

// Publisher 發布訊息（*nats.Conn 實作此介面）
type Publisher interface {
	Publish(subject string, data []byte) error
}

// MatchEvent 發布到 NATS 的事件內容
type MatchEvent struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"room_id"`
	Players       []ParticipantID `json:"players,omitempty"`
	Settings      *Settings       `json:"settings,omitempty"`
	QuestionCount int             `json:"question_count,omitempty"`
	Scores        []Score         `json:"scores,omitempty"`
	Phase         Phase           `json:"phase,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NATSNotifier 把比賽事件發布到 NATS
//
// Subject 格式：{prefix}.started / {prefix}.finished / {prefix}.abandoned
// 使用 core NATS（非 JetStream），Publish 只寫入客戶端緩衝區，不會等待伺服器。
type NATSNotifier struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSNotifier 創建 NATS 通知器
func NewNATSNotifier(pub Publisher, prefix string, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{
		pub:    pub,
		prefix: prefix,
		logger: logger,
	}
}

// ConnectNATS 連接 NATS，斷線後無限重連
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("quiz-match-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連接中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS 已重新連接", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return nc, nil
}

func (n *NATSNotifier) MatchStarted(roomID string, players []ParticipantID, settings Settings, questionCount int) {
	n.publish("started", MatchEvent{
		Type:          "match_started",
		RoomID:        roomID,
		Players:       players,
		Settings:      &settings,
		QuestionCount: questionCount,
	})
}

func (n *NATSNotifier) MatchFinished(roomID string, scores []Score) {
	n.publish("finished", MatchEvent{
		Type:   "match_finished",
		RoomID: roomID,
		Scores: scores,
	})
}

func (n *NATSNotifier) RoomAbandoned(roomID string, phase Phase) {
	n.publish("abandoned", MatchEvent{
		Type:   "room_abandoned",
		RoomID: roomID,
		Phase:  phase,
	})
}

func (n *NATSNotifier) publish(suffix string, event MatchEvent) {
	event.Timestamp = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("序列化比賽事件失敗", "error", err)
		return
	}
	subject := n.prefix + "." + suffix
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.Warn("發布比賽事件失敗",
			"subject", subject,
			"room_id", event.RoomID,
			"error", err)
	}
}
