package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// エラー分類はスクリーン／アクション境界で1箇所に集約する。
// 発生源（バックエンド、IdP、ネットワーク層）ごとに異なる形のエラーを
// タグ付きの型に正規化し、ユーザー向けメッセージへの変換はUserMessageが担う。

// FieldError はバックエンドのフィールド単位バリデーションエラーを表す。
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"msg"`
}

// BackendError はバックエンドAPIの拒否応答を表す。
// FastAPI形式の { "detail": ... } ボディから抽出される。
// detailが文字列の場合はDetailに、配列の場合はFieldsに入る。
type BackendError struct {
	Status int
	Detail string
	Fields []FieldError
}

// Error はerrorインターフェースを実装する。
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend rejected request with status %d: %s", e.Status, e.Message())
}

// Message はユーザーに表示するメッセージを返す。
// フィールドエラーが複数ある場合は順序を保ったまま1行ずつ連結する。
func (e *BackendError) Message() string {
	if len(e.Fields) > 0 {
		msgs := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			msgs = append(msgs, f.Message)
		}
		return strings.Join(msgs, "\n")
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("サーバーがリクエストを拒否しました（ステータス %d）。", e.Status)
}

// IdentityError は外部IdPのエラーを表す。
// Codeはプロバイダーが返す不透明なエラーコード（例: EMAIL_NOT_FOUND）。
type IdentityError struct {
	Code string
}

// Error はerrorインターフェースを実装する。
func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity provider error: %s", e.Code)
}

// identityMessages はIdPエラーコードからユーザー向けメッセージへの固定変換表。
var identityMessages = map[string]string{
	"INVALID_EMAIL":                  "メールアドレスの形式が正しくありません。",
	"EMAIL_NOT_FOUND":                "このメールアドレスのアカウントが見つかりません。先に登録してください。",
	"INVALID_PASSWORD":               "パスワードが正しくありません。もう一度お試しください。",
	"INVALID_LOGIN_CREDENTIALS":      "メールアドレスまたはパスワードが正しくありません。",
	"EMAIL_EXISTS":                   "このメールアドレスのアカウントは既に存在します。",
	"WEAK_PASSWORD":                  "パスワードは6文字以上で設定してください。",
	"USER_DISABLED":                  "このアカウントは無効化されています。",
	"TOO_MANY_ATTEMPTS_TRY_LATER":    "試行回数が多すぎます。しばらく待ってから再度お試しください。",
	"TOKEN_EXPIRED":                  "セッションの有効期限が切れました。再度ログインしてください。",
	"INVALID_REFRESH_TOKEN":          "セッションが無効です。再度ログインしてください。",
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": "この操作には再ログインが必要です。",
}

// Message はユーザーに表示するメッセージを返す。
// 変換表にないコードはプロバイダーの名前空間プレフィックスを除去して表示する。
func (e *IdentityError) Message() string {
	// コードに理由が付く場合がある（例: "WEAK_PASSWORD : ..."）ため先頭トークンで引く
	code := e.Code
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	if msg, ok := identityMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("認証エラー: %s", strings.TrimPrefix(e.Code, "auth/"))
}

// NetworkError は接続不能・タイムアウト等の通信エラーを表す。
type NetworkError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap はラップ元のエラーを返す。
func (e *NetworkError) Unwrap() error { return e.Err }

// Message はユーザーに表示するメッセージを返す。
func (e *NetworkError) Message() string {
	return "サーバーに接続できません。通信環境を確認のうえ、しばらくしてから再度お試しください。"
}

// ValidationError はリクエスト送信前にクライアント側で検出した入力エラーを表す。
type ValidationError struct {
	Fields []FieldError
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.ReplaceAll(e.Message(), "\n", "; "))
}

// Message はユーザーに表示するメッセージを返す。1行につき1件、順序を保つ。
func (e *ValidationError) Message() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "\n")
}

// UnknownError は分類できなかったエラーのフォールバック。
type UnknownError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown error: %v", e.Err)
}

// Unwrap はラップ元のエラーを返す。
func (e *UnknownError) Unwrap() error { return e.Err }

// Message はユーザーに表示するメッセージを返す。
func (e *UnknownError) Message() string {
	return "問題が発生しました。もう一度お試しください。"
}

// Classify は任意のエラーをタグ付きエラーのいずれか1つに正規化する。
// 既に分類済みのエラーはそのまま返す。nilにはnilを返す。
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr
	}
	var identityErr *IdentityError
	if errors.As(err, &identityErr) {
		return identityErr
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return networkErr
	}

	// 通信層のエラーを検出する
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NetworkError{Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &NetworkError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Err: err}
	}

	return &UnknownError{Err: err}
}

// UserMessage はエラーをアラート表示用の文字列に変換する。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch e := Classify(err).(type) {
	case *BackendError:
		return e.Message()
	case *IdentityError:
		return e.Message()
	case *ValidationError:
		return e.Message()
	case *NetworkError:
		return e.Message()
	case *UnknownError:
		return e.Message()
	default:
		return "問題が発生しました。もう一度お試しください。"
	}
}

// backendDetailEntry はFastAPIのバリデーションエラー配列の1要素。
type backendDetailEntry struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// ParseBackendError はバックエンドのエラーレスポンスボディをBackendErrorに変換する。
// detailは文字列・オブジェクト配列のどちらの形もとり得る。
// ボディが解釈できない場合もステータスのみのBackendErrorを返す。
func ParseBackendError(status int, body []byte) *BackendError {
	be := &BackendError{Status: status}
	if len(body) == 0 {
		return be
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return be
	}

	// detailが文字列の場合
	var detailStr string
	if err := json.Unmarshal(envelope.Detail, &detailStr); err == nil {
		be.Detail = detailStr
		return be
	}

	// detailがバリデーションエラー配列の場合
	var entries []backendDetailEntry
	if err := json.Unmarshal(envelope.Detail, &entries); err == nil {
		for _, entry := range entries {
			field := ""
			if len(entry.Loc) > 0 {
				field = fmt.Sprint(entry.Loc[len(entry.Loc)-1])
			}
			be.Fields = append(be.Fields, FieldError{Field: field, Message: entry.Msg})
		}
		return be
	}

	// どちらでもない場合は生のJSONをそのまま表示する
	be.Detail = string(envelope.Detail)
	return be
}
