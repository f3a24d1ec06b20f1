// Package model はドメインモデルを定義する。
package model

import "time"

// UserRole はユーザーの役割を表す。
// バックエンドのUserRole列挙と同じ文字列表現を使用する。
type UserRole string

const (
	RoleDonor     UserRole = "Donor"
	RoleReceiver  UserRole = "Receiver"
	RoleLogistics UserRole = "Logistics"
	RoleAdmin     UserRole = "Admin"
)

// VerificationStatus は管理者によるアカウント確認状態を表す。
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "Pending"
	VerificationApproved VerificationStatus = "Approved"
	VerificationRejected VerificationStatus = "Rejected"
)

// Coordinates はジオコーディング済みの位置情報を表す。
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// User はバックエンドが保持するユーザープロフィールを表す。
// 外部IdPのプリンシパルとは別物で、クライアント側では
// セッション解決時と明示的なリフレッシュ時にのみ取得される。
type User struct {
	UserID                      string             `json:"user_id"`
	Email                       string             `json:"email"`
	Role                        UserRole           `json:"role"`
	Name                        string             `json:"name"`
	Address                     string             `json:"address"`
	PhoneNumber                 string             `json:"phone_number,omitempty"`
	Coordinates                 *Coordinates       `json:"coordinates,omitempty"`
	VerificationStatus          VerificationStatus `json:"verification_status"`
	VerificationDocumentURL     string             `json:"verification_document_url,omitempty"`
	VerificationRejectionReason string             `json:"verification_rejection_reason,omitempty"`
	BankName                    string             `json:"bank_name,omitempty"`
	BankAccountNumber           string             `json:"bank_account_number,omitempty"`
	FCMToken                    string             `json:"fcm_token,omitempty"`
	CreatedAt                   time.Time          `json:"created_at,omitzero"`
}

// RegisterRequest は新規ユーザー登録のリクエストボディを表す。
// パスワードはバックエンド経由でIdPに登録される。
type RegisterRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Role        UserRole `json:"role"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	PhoneNumber string   `json:"phone_number,omitempty"`
}

// ProfileUpdateRequest はプロフィール更新のリクエストボディを表す。
// 空フィールドは更新対象外として扱われる。
type ProfileUpdateRequest struct {
	Name                    string `json:"name,omitempty"`
	Address                 string `json:"address,omitempty"`
	PhoneNumber             string `json:"phone_number,omitempty"`
	BankName                string `json:"bank_name,omitempty"`
	BankAccountNumber       string `json:"bank_account_number,omitempty"`
	VerificationDocumentURL string `json:"verification_document_url,omitempty"`
}

// VerificationUpdate は管理者によるユーザー確認状態の更新を表す。
type VerificationUpdate struct {
	UserID          string             `json:"user_id"`
	Status          VerificationStatus `json:"status"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
}
