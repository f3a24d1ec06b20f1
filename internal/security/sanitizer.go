package security

import "github.com/microcosm-cc/bluemonday"

// NotificationSanitizerService は通知テキストのサニタイズインターフェース。
// サーバー由来の通知タイトル・本文を表示前に無害化する。
type NotificationSanitizerService interface {
	// Sanitize はテキストからHTMLタグを全て除去して返す。
	// 通知はプレーンテキスト前提のため、タグは内容ごと信頼しない。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// notificationSanitizer はNotificationSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type notificationSanitizer struct {
	policy *bluemonday.Policy
}

// NewNotificationSanitizer はNotificationSanitizerServiceの新しいインスタンスを生成する。
func NewNotificationSanitizer() *notificationSanitizer {
	return &notificationSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからHTMLタグを全て除去して返す。
func (s *notificationSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
