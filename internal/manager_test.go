package internal_test

import (
	"fmt"
	"testing"

	"github.com/koopa0/system-design/quiz-match/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewManager 測試創建管理器
func TestNewManager(t *testing.T) {
	m, _ := newTestManager()
	defer m.Stop()

	assert.Equal(t, 0, m.RoomCount())

	_, err := m.GetRoom("room_001")
	assert.ErrorIs(t, err, internal.ErrRoomNotFound)
}

// TestManager_JoinRoom 測試加入時建立房間
func TestManager_JoinRoom(t *testing.T) {
	m, _ := newTestManager()
	defer m.Stop()

	_, err := m.JoinRoom("room_001", host, nil)
	require.NoError(t, err)
	first, err := m.GetRoom("room_001")
	require.NoError(t, err)

	_, err = m.JoinRoom("room_001", guest, nil)
	require.NoError(t, err)
	second, err := m.GetRoom("room_001")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, m.RoomCount())
	assert.Equal(t, 2, first.PlayerCount())
}

// TestManager_IsHost 測試房主查詢
func TestManager_IsHost(t *testing.T) {
	m, _ := newTestManager()
	defer m.Stop()

	_, err := m.JoinRoom("room_001", host, nil)
	require.NoError(t, err)
	_, err = m.JoinRoom("room_001", guest, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		roomID string
		player internal.ParticipantID
		want   bool
	}{
		{"host", "room_001", host, true},
		{"guest", "room_001", guest, false},
		{"unknown player", "room_001", third, false},
		{"unknown room", "room_404", host, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsHost(tt.roomID, tt.player))
		})
	}
}

// TestManager_UnknownRoom 房間不存在時所有操作都回傳 ErrRoomNotFound
func TestManager_UnknownRoom(t *testing.T) {
	m, rec := newTestManager()
	defer m.Stop()

	tests := []struct {
		name string
		run  func() error
	}{
		{"set settings", func() error { return m.SetSettings("room_404", host, testSettings) }},
		{"set questions", func() error { return m.SetQuestions("room_404", host, testQuestions(1), nil) }},
		{"ready", func() error { return m.MarkReady("room_404", host) }},
		{"answer", func() error { return m.RelayAnswer("room_404", host, nil, 0) }},
		{"score", func() error { return m.SubmitScore("room_404", host, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), internal.ErrRoomNotFound)
		})
	}

	// 只有 join 會建立房間
	assert.Equal(t, 0, m.RoomCount())
	assert.Empty(t, rec.received(host))
}

// TestManager_Disconnect 測試斷線
func TestManager_Disconnect(t *testing.T) {
	t.Run("last player removes room", func(t *testing.T) {
		m, rec := newTestManager()
		defer m.Stop()

		_, err := m.JoinRoom("room_001", host, nil)
		require.NoError(t, err)
		_, err = m.JoinRoom("room_001", guest, nil)
		require.NoError(t, err)

		assert.Equal(t, 1, m.Disconnect(guest))
		assert.Equal(t, 1, m.RoomCount())
		assert.Equal(t, 1, m.Disconnect(host))
		assert.Equal(t, 0, m.RoomCount())

		// 沒有人可以收到最後一個 player_left
		assert.Equal(t, 1, rec.count(internal.EventPlayerLeft))
	})

	t.Run("leaves every room", func(t *testing.T) {
		m, _ := newTestManager()
		defer m.Stop()

		for _, roomID := range []string{"room_001", "room_002", "room_003"} {
			_, err := m.JoinRoom(roomID, host, nil)
			require.NoError(t, err)
		}
		_, err := m.JoinRoom("room_002", guest, nil)
		require.NoError(t, err)

		assert.Equal(t, 3, m.Disconnect(host))
		assert.Equal(t, 1, m.RoomCount())
		assert.True(t, m.IsHost("room_002", guest))

		// 重複斷線不做任何事
		assert.Equal(t, 0, m.Disconnect(host))
	})

	t.Run("unknown participant", func(t *testing.T) {
		m, _ := newTestManager()
		defer m.Stop()

		assert.Equal(t, 0, m.Disconnect(third))
	})
}

// TestManager_StaleRoom 已銷毀的房間實例不影響同名的新房間
func TestManager_StaleRoom(t *testing.T) {
	m, _ := newTestManager()
	defer m.Stop()

	_, err := m.JoinRoom("room_001", host, nil)
	require.NoError(t, err)
	stale, err := m.GetRoom("room_001")
	require.NoError(t, err)

	assert.Equal(t, 1, m.Disconnect(host))
	assert.Equal(t, 0, m.RoomCount())

	// 同名房間重新建立
	result, err := m.JoinRoom("room_001", guest, nil)
	require.NoError(t, err)
	assert.True(t, result.IsHost)

	fresh, err := m.GetRoom("room_001")
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)

	_, err = stale.Join(third, nil)
	assert.ErrorIs(t, err, internal.ErrRoomClosed)
	_, err = stale.Leave(host)
	assert.ErrorIs(t, err, internal.ErrRoomClosed)

	current, err := m.GetRoom("room_001")
	require.NoError(t, err)
	assert.Same(t, fresh, current)
	assert.Equal(t, []internal.ParticipantID{guest}, current.State().Players)
}

// TestManager_CompleteMatch 完整比賽流程後房間被移除
func TestManager_CompleteMatch(t *testing.T) {
	m, rec := newTestManager()
	defer m.Stop()

	startedRoom(t, m, "room_001")

	require.NoError(t, m.SubmitScore("room_001", host, 10))
	require.NoError(t, m.SubmitScore("room_001", guest, 7))

	assert.Equal(t, 0, m.RoomCount())
	assert.Equal(t, 0, m.Disconnect(host))
	assert.Equal(t, 0, m.Disconnect(guest))

	assert.Equal(t, []string{
		internal.EventPlayerJoined,
		internal.EventPlayerJoined,
		internal.EventStartQuiz,
		internal.EventReceiveScores,
	}, eventTypes(rec.received(host)))
	assert.Equal(t, []string{
		internal.EventPlayerJoined,
		internal.EventStartQuiz,
		internal.EventReceiveScores,
	}, eventTypes(rec.received(guest)))
}

// TestManager_ListRooms 測試房間列表
func TestManager_ListRooms(t *testing.T) {
	m, _ := newTestManager()
	defer m.Stop()

	for i := 1; i <= 5; i++ {
		roomID := fmt.Sprintf("room_%03d", i)
		_, err := m.JoinRoom(roomID, internal.ParticipantID(fmt.Sprintf("host_%d", i)), nil)
		require.NoError(t, err)
	}
	_, err := m.JoinRoom("room_002", guest, nil)
	require.NoError(t, err)
	_, err = m.JoinRoom("room_004", third, nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		phase     internal.Phase
		page      int
		limit     int
		wantIDs   []string
		wantTotal int
	}{
		{
			name:      "all rooms",
			page:      1,
			limit:     10,
			wantIDs:   []string{"room_001", "room_002", "room_003", "room_004", "room_005"},
			wantTotal: 5,
		},
		{
			name:      "second page",
			page:      2,
			limit:     2,
			wantIDs:   []string{"room_003", "room_004"},
			wantTotal: 5,
		},
		{
			name:      "configuring only",
			phase:     internal.PhaseConfiguring,
			page:      1,
			limit:     10,
			wantIDs:   []string{"room_002", "room_004"},
			wantTotal: 2,
		},
		{
			name:      "page out of range",
			page:      4,
			limit:     2,
			wantIDs:   []string{},
			wantTotal: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms, total := m.ListRooms(tt.phase, tt.page, tt.limit)
			assert.Equal(t, tt.wantTotal, total)

			ids := make([]string, 0, len(rooms))
			for _, r := range rooms {
				ids = append(ids, r.RoomID)
				assert.Equal(t, internal.MaxPlayers, r.MaxPlayers)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

// TestManager_Stats 測試統計
func TestManager_Stats(t *testing.T) {
	m, _ := newTestManager()
	defer m.Stop()

	startedRoom(t, m, "room_001")
	_, err := m.JoinRoom("room_002", third, nil)
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 2, stats["total_rooms"])
	assert.Equal(t, 3, stats["total_players"])

	byPhase, ok := stats["by_phase"].(map[internal.Phase]int)
	require.True(t, ok)
	assert.Equal(t, 1, byPhase[internal.PhaseInProgress])
	assert.Equal(t, 1, byPhase[internal.PhaseForming])
}

// TestManager_Stop 測試停止
func TestManager_Stop(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.JoinRoom("room_001", host, nil)
	require.NoError(t, err)
	room, err := m.GetRoom("room_001")
	require.NoError(t, err)

	m.Stop()

	assert.Equal(t, 0, m.RoomCount())
	assert.True(t, room.State().Closed)
	assert.ErrorIs(t, room.MarkReady(host), internal.ErrRoomClosed)
}
