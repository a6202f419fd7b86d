package internal

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig 連接參數
type WebSocketConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultWebSocketConfig 預設值：54 秒 Ping、60 秒 Pong 超時
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 1 << 20,
		SendBuffer:     256,
	}
}

// WebSocketHub WebSocket 連接中心
//
// 以參與者 ID 管理所有連接，並實作 Broadcaster：
// 事件序列化一次後依序放入每個收件者的 Send 緩衝區。
// 同一個參與者的事件經由同一個 FIFO channel 送出，順序與呼叫順序一致。
type WebSocketHub struct {
	config      WebSocketConfig
	logger      *slog.Logger
	connections map[ParticipantID]*Connection
	mu          sync.RWMutex
}

// Connection WebSocket 連接
type Connection struct {
	ID        ParticipantID
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(config WebSocketConfig, logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		config:      config,
		logger:      logger,
		connections: make(map[ParticipantID]*Connection),
	}
}

// newConnection 創建並註冊連接
func (hub *WebSocketHub) newConnection(id ParticipantID, conn *websocket.Conn) *Connection {
	c := &Connection{
		ID:       id,
		Conn:     conn,
		Send:     make(chan []byte, hub.config.SendBuffer),
		Hub:      hub,
		LastPing: time.Now(),
	}
	hub.register(c)
	return c
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.ID] = conn
}

// unregister 取消註冊連接
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.connections[conn.ID]; exists && actual == conn {
		delete(hub.connections, conn.ID)
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
	}
}

// Deliver 實作 Broadcaster
func (hub *WebSocketHub) Deliver(recipients []ParticipantID, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", event.Type, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, pid := range recipients {
		conn, exists := hub.connections[pid]
		if !exists {
			continue
		}
		select {
		case conn.Send <- message:
		default:
			hub.logger.Warn("連接緩衝區滿",
				"player_id", pid,
				"event", event.Type)
		}
	}
}

// Send 單播事件
func (hub *WebSocketHub) Send(pid ParticipantID, event Event) {
	hub.Deliver([]ParticipantID{pid}, event)
}

// ConnectionCount 目前連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Stop 關閉所有連接
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.connections {
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	hub.connections = make(map[ParticipantID]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端消息
//
// 每則文本消息交給 handle 同步處理，同一條連接的事件因此按到達順序套用。
// 連接結束時先取消註冊，再呼叫 onClose（斷線事件）。
func (c *Connection) readPump(handle func(*Connection, []byte), onClose func(*Connection)) {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
		if onClose != nil {
			onClose(c)
		}
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	// 收到 Pong 重置超時
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"player_id", c.ID)
			}
			return
		}

		if messageType == websocket.TextMessage {
			handle(c, message)
		}
	}
}

// writePump 寫入消息到客戶端，並定時發送 Ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
