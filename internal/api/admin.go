package api

import (
	"context"

	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// AdminAPI は管理者専用エンドポイントのクライアント。
// 権限の検証はサーバー側で行われる。クライアント側の
// タブ表示制御（internal/navigation）とは独立している。
type AdminAPI struct {
	gw *gateway.Client
}

// NewAdminAPI はAdminAPIを生成する。
func NewAdminAPI(gw *gateway.Client) *AdminAPI {
	return &AdminAPI{gw: gw}
}

// Users は全ユーザーの一覧を取得する。
func (a *AdminAPI) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := a.gw.Get(ctx, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// PendingUsers は確認待ちユーザーの一覧を取得する。
func (a *AdminAPI) PendingUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := a.gw.Get(ctx, "/admin/users/pending", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Verify はユーザーの確認状態を更新する。
// 却下する場合はRejectionReasonを必須とする。
func (a *AdminAPI) Verify(ctx context.Context, update model.VerificationUpdate) (*model.User, error) {
	if update.Status == model.VerificationRejected && update.RejectionReason == "" {
		return nil, &model.ValidationError{Fields: []model.FieldError{
			{Field: "rejection_reason", Message: "却下理由を入力してください。"},
		}}
	}

	var user model.User
	if err := a.gw.Post(ctx, "/admin/users/verify", update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Balance は寄付金プールの残高を取得する。
func (a *AdminAPI) Balance(ctx context.Context) (*model.SystemBalance, error) {
	var balance model.SystemBalance
	if err := a.gw.Get(ctx, "/payments/admin/balance", nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// Disburse は確認済みユーザーへ資金を払い出す。
func (a *AdminAPI) Disburse(ctx context.Context, req model.DisbursementRequest) error {
	if req.UserID == "" || req.Amount <= 0 {
		return &model.ValidationError{Fields: []model.FieldError{
			{Field: "disbursement", Message: "払い出し先と金額を指定してください。"},
		}}
	}
	return a.gw.Post(ctx, "/payments/admin/disburse", req, nil)
}
