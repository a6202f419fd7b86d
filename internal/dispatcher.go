package internal

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Dispatcher 把 WebSocket 事件路由到 Manager
type Dispatcher struct {
	hub      *WebSocketHub
	manager  *Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewDispatcher 創建事件分派器
func NewDispatcher(hub *WebSocketHub, manager *Manager, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:     hub,
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeWS 處理 WebSocket 連接，每條連接分配一個新的參與者 ID
func (d *Dispatcher) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	pid := ParticipantID(uuid.NewString())
	c := d.hub.newConnection(pid, conn)
	d.hub.Send(pid, Event{
		Type: EventConnected,
		Data: map[string]any{"participantId": pid},
	})

	go c.writePump()
	go c.readPump(d.handleMessage, d.handleDisconnect)

	d.logger.Info("WebSocket 連接建立",
		"player_id", pid,
		"remote", r.RemoteAddr)
}

func (d *Dispatcher) handleDisconnect(c *Connection) {
	rooms := d.manager.Disconnect(c.ID)
	d.logger.Info("WebSocket 連接關閉",
		"player_id", c.ID,
		"rooms_left", rooms)
}

// handleMessage 處理客戶端消息
func (d *Dispatcher) handleMessage(c *Connection, message []byte) {
	env, err := decodeEnvelope(message)
	if err != nil {
		d.logger.Debug("解析客戶端消息失敗", "error", err, "player_id", c.ID)
		d.sendError(c, "bad_request", "無效的訊息格式")
		return
	}

	switch env.Event {
	case EventJoinRoom:
		req, err := decodeRoomRequest(env.Data)
		if err != nil {
			d.rejectRequest(c, env, err)
			return
		}
		_, _ = d.manager.JoinRoom(req.RoomID, c.ID, func(result JoinResult, err error) {
			if errors.Is(err, ErrRoomFull) {
				d.ack(c, env, map[string]string{"error": "room_full"})
				return
			}
			d.ack(c, env, result)
		})

	case EventWhoIsHost:
		req, err := decodeRoomRequest(env.Data)
		if err != nil {
			d.rejectRequest(c, env, err)
			return
		}
		d.ack(c, env, d.manager.IsHost(req.RoomID, c.ID))

	case EventSetQuizSettings:
		var req settingsRequest
		if err := decodePayload(env.Data, &req); err != nil {
			d.rejectRequest(c, env, err)
			return
		}
		d.ignore(c, env.Event, req.RoomID, d.manager.SetSettings(req.RoomID, c.ID, Settings{
			Subject:    req.Subject,
			Difficulty: req.Difficulty,
		}))

	case EventSetQuestions:
		var req questionsRequest
		if err := decodePayload(env.Data, &req); err != nil {
			d.rejectRequest(c, env, err)
			return
		}
		d.ignore(c, env.Event, req.RoomID, d.manager.SetQuestions(req.RoomID, c.ID, req.Questions, req.Seed))

	case EventReadyToStart:
		req, err := decodeRoomRequest(env.Data)
		if err != nil {
			d.rejectRequest(c, env, err)
			return
		}
		d.ignore(c, env.Event, req.RoomID, d.manager.MarkReady(req.RoomID, c.ID))

	case EventAnswer:
		var req answerRequest
		if err := decodePayload(env.Data, &req); err != nil {
			d.rejectRequest(c, env, err)
			return
		}
		d.ignore(c, env.Event, req.RoomID, d.manager.RelayAnswer(req.RoomID, c.ID, req.Answer, req.QuestionIndex))

	case EventSubmitScore:
		var req scoreRequest
		if err := decodePayload(env.Data, &req); err != nil {
			d.rejectRequest(c, env, err)
			return
		}
		d.ignore(c, env.Event, req.RoomID, d.manager.SubmitScore(req.RoomID, c.ID, *req.Score))

	case EventPing:
		d.hub.Send(c.ID, Event{Type: EventPong, AckID: env.AckID})

	default:
		d.logger.Debug("收到未知消息類型",
			"type", env.Event,
			"player_id", c.ID)
		d.sendError(c, "unknown_event", "未知的事件: "+env.Event)
	}
}

// ignore 靜默忽略被拒絕的事件（過期或重複），只記錄日誌
func (d *Dispatcher) ignore(c *Connection, event, roomID string, err error) {
	if err == nil {
		return
	}
	d.logger.Debug("事件被忽略",
		"event", event,
		"room_id", roomID,
		"player_id", c.ID,
		"error", err)
}

// rejectRequest 內容驗證失敗：有 ack 就回 ack，否則送 error 事件
func (d *Dispatcher) rejectRequest(c *Connection, env Envelope, err error) {
	d.logger.Debug("事件內容無效",
		"event", env.Event,
		"player_id", c.ID,
		"error", err)
	if env.AckID != nil {
		d.ack(c, env, map[string]string{"error": "bad_request"})
		return
	}
	d.sendError(c, "bad_request", "無效的事件內容: "+env.Event)
}

func (d *Dispatcher) ack(c *Connection, env Envelope, data any) {
	if env.AckID == nil {
		return
	}
	d.hub.Send(c.ID, Event{Type: EventAck, AckID: env.AckID, Data: data})
}

func (d *Dispatcher) sendError(c *Connection, code, message string) {
	d.hub.Send(c.ID, Event{
		Type: EventError,
		Data: ErrorPayload{Code: code, Message: message},
	})
}
