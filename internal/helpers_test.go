package internal_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/koopa0/system-design/quiz-match/internal"
)

// 創建測試用的 logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

type delivery struct {
	recipients []internal.ParticipantID
	event      internal.Event
}

// recorder 記錄所有投遞的事件，可併發使用
type recorder struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (r *recorder) Deliver(recipients []internal.ParticipantID, event internal.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{
		recipients: append([]internal.ParticipantID(nil), recipients...),
		event:      event,
	})
}

// count 某類事件被投遞的次數（一次投遞算一次，不論收件者數）
func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.deliveries {
		if d.event.Type == eventType {
			n++
		}
	}
	return n
}

// received 某位玩家依序收到的事件
func (r *recorder) received(pid internal.ParticipantID) []internal.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []internal.Event
	for _, d := range r.deliveries {
		for _, to := range d.recipients {
			if to == pid {
				out = append(out, d.event)
				break
			}
		}
	}
	return out
}

// last 最後一次投遞的某類事件
func (r *recorder) last(eventType string) (delivery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.deliveries) - 1; i >= 0; i-- {
		if r.deliveries[i].event.Type == eventType {
			return r.deliveries[i], true
		}
	}
	return delivery{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}

func newTestManager(opts ...internal.Option) (*internal.Manager, *recorder) {
	rec := &recorder{}
	return internal.NewManager(testLogger(), rec, opts...), rec
}

func eventTypes(events []internal.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func testQuestions(n int) []json.RawMessage {
	out := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		q, _ := json.Marshal(map[string]any{"id": i, "text": "題目"})
		out = append(out, q)
	}
	return out
}

var testSettings = internal.Settings{Subject: "math", Difficulty: "easy"}
