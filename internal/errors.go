package internal

import "errors"

// 房間操作的錯誤
//
// 除了 ErrRoomFull 之外，其餘錯誤對客戶端而言都是靜默忽略（過期或重複的事件），
// 只在日誌中記錄。
var (
	ErrRoomFull       = errors.New("房間已滿")
	ErrRoomNotFound   = errors.New("房間不存在")
	ErrRoomClosed     = errors.New("房間已關閉")
	ErrNotInRoom      = errors.New("玩家不在房間內")
	ErrNotHost        = errors.New("只有房主可以設定")
	ErrMatchStarted   = errors.New("比賽已開始")
	ErrSettingsLocked = errors.New("設定已鎖定")
	ErrDuplicateScore = errors.New("分數已提交")
)
