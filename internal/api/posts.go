package api

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// PostsAPI は食品投稿エンドポイントのクライアント。
type PostsAPI struct {
	gw *gateway.Client
}

// NewPostsAPI はPostsAPIを生成する。
func NewPostsAPI(gw *gateway.Client) *PostsAPI {
	return &PostsAPI{gw: gw}
}

// Available は予約可能な投稿の一覧を取得する。
// 現在地座標を渡すとサーバーが距離を計算して返す。
func (a *PostsAPI) Available(ctx context.Context, near *model.Coordinates) ([]model.FoodPost, error) {
	var query url.Values
	if near != nil {
		query = url.Values{
			"lat": {strconv.FormatFloat(near.Lat, 'f', -1, 64)},
			"lng": {strconv.FormatFloat(near.Lng, 'f', -1, 64)},
		}
	}

	var posts []model.FoodPost
	if err := a.gw.Get(ctx, "/api/v1/posts/", query, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Create は新しい食品投稿を作成する。
// 必須項目はリクエスト送信前に検証する。
func (a *PostsAPI) Create(ctx context.Context, req model.FoodPostCreate) (*model.FoodPost, error) {
	var fields []model.FieldError
	if strings.TrimSpace(req.Title) == "" {
		fields = append(fields, model.FieldError{Field: "title", Message: "タイトルを入力してください。"})
	}
	if strings.TrimSpace(req.Quantity) == "" {
		fields = append(fields, model.FieldError{Field: "quantity", Message: "数量を入力してください。"})
	}
	if strings.TrimSpace(req.Address) == "" {
		fields = append(fields, model.FieldError{Field: "address", Message: "受け渡し場所の住所を入力してください。"})
	}
	if req.Expiry.IsZero() {
		fields = append(fields, model.FieldError{Field: "expiry", Message: "賞味期限を指定してください。"})
	}
	if len(fields) > 0 {
		return nil, &model.ValidationError{Fields: fields}
	}

	var post model.FoodPost
	if err := a.gw.Post(ctx, "/api/v1/posts/", req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Mine は自分が投稿した一覧を取得する（寄付者用）。
func (a *PostsAPI) Mine(ctx context.Context) ([]model.FoodPost, error) {
	var posts []model.FoodPost
	if err := a.gw.Get(ctx, "/api/v1/posts/me", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Reserve は投稿を予約する（受取者用）。
// 状態遷移の検証はサーバー側で行われる。
func (a *PostsAPI) Reserve(ctx context.Context, postID string) (*model.FoodPost, error) {
	var post model.FoodPost
	if err := a.gw.Put(ctx, "/api/v1/posts/"+postID+"/reserve", nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// MarkCollected は受け渡し完了を報告する。
func (a *PostsAPI) MarkCollected(ctx context.Context, postID string) (*model.FoodPost, error) {
	var post model.FoodPost
	if err := a.gw.Put(ctx, "/api/v1/posts/"+postID+"/collected", nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}
