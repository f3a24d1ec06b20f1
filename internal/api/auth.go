package api

import (
	"context"
	"strings"

	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// AuthAPI はプロフィール関連エンドポイントのクライアント。
// サインイン自体はIdP（internal/identity）が直接行い、
// ここではバックエンド側のプロフィールのみを扱う。
type AuthAPI struct {
	gw *gateway.Client
}

// NewAuthAPI はAuthAPIを生成する。
func NewAuthAPI(gw *gateway.Client) *AuthAPI {
	return &AuthAPI{gw: gw}
}

// Register は新規ユーザーを登録する。
// バックエンドがIdPアカウントとプロフィールの両方を作成する。
// 必須項目はリクエスト送信前に検証する。
func (a *AuthAPI) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	var fields []model.FieldError
	if strings.TrimSpace(req.Email) == "" {
		fields = append(fields, model.FieldError{Field: "email", Message: "メールアドレスを入力してください。"})
	}
	if len(req.Password) < 6 {
		fields = append(fields, model.FieldError{Field: "password", Message: "パスワードは6文字以上で入力してください。"})
	}
	if req.Role == "" {
		fields = append(fields, model.FieldError{Field: "role", Message: "役割を選択してください。"})
	}
	if strings.TrimSpace(req.Name) == "" {
		fields = append(fields, model.FieldError{Field: "name", Message: "名前を入力してください。"})
	}
	if strings.TrimSpace(req.Address) == "" {
		fields = append(fields, model.FieldError{Field: "address", Message: "住所を入力してください。"})
	}
	if len(fields) > 0 {
		return nil, &model.ValidationError{Fields: fields}
	}

	var user model.User
	if err := a.gw.Post(ctx, "/auth/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me は認証中ユーザーのプロフィールを取得する。
func (a *AuthAPI) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := a.gw.Get(ctx, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile はプロフィールを更新し、更新後のプロフィールを返す。
// プロフィールはローカルで直接書き換えず、必ずこのラウンドトリップを経由する。
func (a *AuthAPI) UpdateProfile(ctx context.Context, req model.ProfileUpdateRequest) (*model.User, error) {
	var user model.User
	if err := a.gw.Put(ctx, "/auth/me", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateFCMToken はプッシュ通知用のデバイストークンを登録する。
func (a *AuthAPI) UpdateFCMToken(ctx context.Context, token string) error {
	body := map[string]string{"fcm_token": token}
	return a.gw.Post(ctx, "/auth/me/fcm-token", body, nil)
}

// DeleteMe はバックエンド側のアカウントとプロフィールを削除する。
func (a *AuthAPI) DeleteMe(ctx context.Context) error {
	return a.gw.Delete(ctx, "/auth/me")
}
