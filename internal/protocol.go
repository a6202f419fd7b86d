package internal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// 長度上限寫在 validate tag：roomId 128、subject/difficulty 64、題目 500 題
var validate = validator.New()

// Envelope 客戶端送來的訊息外層
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	AckID *int64          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type roomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type settingsRequest struct {
	RoomID     string `json:"roomId" validate:"required,max=128"`
	Subject    string `json:"subject" validate:"max=64"`
	Difficulty string `json:"difficulty" validate:"max=64"`
}

type questionsRequest struct {
	RoomID    string            `json:"roomId" validate:"required,max=128"`
	Questions []json.RawMessage `json:"questions" validate:"required,min=1,max=500"`
	Seed      json.RawMessage   `json:"seed,omitempty"`
}

type answerRequest struct {
	RoomID        string          `json:"roomId" validate:"required,max=128"`
	Answer        json.RawMessage `json:"answer"`
	QuestionIndex int             `json:"questionIndex"`
}

type scoreRequest struct {
	RoomID string   `json:"roomId" validate:"required,max=128"`
	Score  *float64 `json:"score" validate:"required"`
}

// decodeEnvelope 解析並驗證訊息外層
func decodeEnvelope(message []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return env, fmt.Errorf("無效的訊息格式: %w", err)
	}
	if err := validate.Struct(env); err != nil {
		return env, fmt.Errorf("無效的訊息格式: %w", err)
	}
	return env, nil
}

// decodePayload 解析並驗證事件內容
func decodePayload(data json.RawMessage, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("無效的事件內容: %w", err)
	}
	if err := validate.Struct(dest); err != nil {
		return fmt.Errorf("無效的事件內容: %w", err)
	}
	return nil
}

// decodeRoomRequest 同時接受 {"roomId": "..."} 與單純的字串
func decodeRoomRequest(data json.RawMessage) (roomRequest, error) {
	var req roomRequest
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &req.RoomID); err != nil {
			return req, fmt.Errorf("無效的房間 ID: %w", err)
		}
		if err := validate.Struct(req); err != nil {
			return req, fmt.Errorf("無效的房間 ID: %w", err)
		}
		return req, nil
	}
	err := decodePayload(data, &req)
	return req, err
}
