package api

import (
	"context"
	"strings"

	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// PaymentsAPI は金銭寄付エンドポイントのクライアント。
// 決済プロバイダーとのやり取りはすべてバックエンドが仲介する。
type PaymentsAPI struct {
	gw *gateway.Client
}

// NewPaymentsAPI はPaymentsAPIを生成する。
func NewPaymentsAPI(gw *gateway.Client) *PaymentsAPI {
	return &PaymentsAPI{gw: gw}
}

// CreateOrder は決済オーダーを作成する。
// 返されたオーダーのApproveLinkへユーザーを誘導し、
// 承認後にCaptureOrderを呼ぶ2段階フロー。
func (a *PaymentsAPI) CreateOrder(ctx context.Context, req model.DonationRequest) (*model.PaymentOrder, error) {
	var fields []model.FieldError
	if req.Amount <= 0 {
		fields = append(fields, model.FieldError{Field: "amount", Message: "寄付額は1以上で指定してください。"})
	}
	if strings.TrimSpace(req.Email) == "" {
		fields = append(fields, model.FieldError{Field: "email", Message: "領収書送付先のメールアドレスを入力してください。"})
	}
	if len(fields) > 0 {
		return nil, &model.ValidationError{Fields: fields}
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	var order model.PaymentOrder
	if err := a.gw.Post(ctx, "/payments/create-payment", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder は承認済みオーダーの決済を確定する。
func (a *PaymentsAPI) CaptureOrder(ctx context.Context, orderID string) (*model.CaptureResult, error) {
	var result model.CaptureResult
	if err := a.gw.Post(ctx, "/payments/"+orderID+"/capture", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
