package model

import (
	"encoding/json"
	"time"
)

// Notification は受信箱のメッセージを表す。
// 一覧はポーリングごとに全件置き換えられ、既読フラグのみ
// 楽観的にローカル更新される。
type Notification struct {
	NotificationID string          `json:"notification_id"`
	UserID         string          `json:"user_id"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"created_at"`
	Data           json.RawMessage `json:"data,omitempty"` // 画面遷移用の不透明ペイロード
}
