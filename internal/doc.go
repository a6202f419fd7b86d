// Package internal 實現雙人即時問答對戰的房間協調服務。
//
// 兩位玩家以同一個房間 ID 加入，房主送出比賽設定與題目，
// 客人準備好後服務器同時通知雙方開始，比賽中轉發對手的答案，
// 收齊兩份分數後公布結果並回收房間。
//
// # 房間生命週期
//
//   - 第一次 join 時建立房間，第一位玩家成為房主
//   - 第二位玩家加入後進入設定階段，之後的加入收到 room_full
//   - 開始條件（兩位玩家、設定、題目、客人已準備）成立時恰好開始一次
//   - 收齊分數或所有玩家斷線時移除房間
//
// # 併發設計
//
// 每個房間一把 Mutex，同一房間的事件在臨界區內依序套用並同步廣播，
// 不同房間互不阻塞。註冊表（Manager）使用 RWMutex，
// 鎖順序固定為「房間 → 註冊表」。
//
// # WebSocket 通訊
//
// 客戶端訊息格式：
//
//	{"event": "join_room", "ackId": 1, "data": {"roomId": "r1"}}
//
// 帶 ackId 的請求以 ack 事件回應：
//
//	{"event": "ack", "ackId": 1, "data": {"isHost": true, "subject": null, "difficulty": null}}
//
// 連接建立時服務器先送出 connected 事件，內含本次連接的參與者 ID。
//
// # 使用範例
//
//	hub := internal.NewWebSocketHub(internal.DefaultWebSocketConfig(), logger)
//	manager := internal.NewManager(logger, hub)
//	dispatcher := internal.NewDispatcher(hub, manager, logger)
//	handler := internal.NewHandler(manager, hub, logger)
//
//	mux := http.NewServeMux()
//	mux.Handle("/", handler.Routes())
//	mux.HandleFunc("GET /ws", dispatcher.ServeWS)
//
// # 比賽事件
//
// 設定 NATS 時，比賽開始、結束與房間被放棄會發布到
// {prefix}.started、{prefix}.finished、{prefix}.abandoned。
package internal
