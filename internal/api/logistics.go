package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// LogisticsAPI は配送エンドポイントのクライアント（ドライバー用）。
type LogisticsAPI struct {
	gw *gateway.Client
}

// NewLogisticsAPI はLogisticsAPIを生成する。
func NewLogisticsAPI(gw *gateway.Client) *LogisticsAPI {
	return &LogisticsAPI{gw: gw}
}

// AvailableDeliveries は受諾可能な配送案件の一覧を取得する。
func (a *LogisticsAPI) AvailableDeliveries(ctx context.Context) ([]model.FoodPost, error) {
	var posts []model.FoodPost
	if err := a.gw.Get(ctx, "/logistics/available", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// ActiveJobs は自分が担当中の配送案件の一覧を取得する。
func (a *LogisticsAPI) ActiveJobs(ctx context.Context) ([]model.FoodPost, error) {
	var posts []model.FoodPost
	if err := a.gw.Get(ctx, "/logistics/active", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Accept は配送案件を受諾する。
func (a *LogisticsAPI) Accept(ctx context.Context, postID string) (*model.FoodPost, error) {
	var post model.FoodPost
	if err := a.gw.Post(ctx, "/logistics/"+postID+"/accept", nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdateStatus は配送状態を更新する。
// ドライバーが要求できる遷移はIn TransitとDeliveredのみ。
// それ以外はリクエストを送らずに検証エラーを返す。
func (a *LogisticsAPI) UpdateStatus(ctx context.Context, postID string, status model.PostStatus) (*model.FoodPost, error) {
	if status != model.PostInTransit && status != model.PostDelivered {
		return nil, &model.ValidationError{Fields: []model.FieldError{
			{Field: "new_status", Message: fmt.Sprintf("ドライバーが設定できない状態です: %s", status)},
		}}
	}

	query := url.Values{"new_status": {string(status)}}
	var post model.FoodPost
	if err := a.gw.PutQuery(ctx, "/logistics/"+postID+"/status", query, &post); err != nil {
		return nil, err
	}
	return &post, nil
}
