package api

import (
	"context"

	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// NotificationsAPI は通知受信箱エンドポイントのクライアント。
type NotificationsAPI struct {
	gw *gateway.Client
}

// NewNotificationsAPI はNotificationsAPIを生成する。
func NewNotificationsAPI(gw *gateway.Client) *NotificationsAPI {
	return &NotificationsAPI{gw: gw}
}

// List は自分宛ての通知一覧を新しい順で取得する。
func (a *NotificationsAPI) List(ctx context.Context) ([]model.Notification, error) {
	var notifications []model.Notification
	if err := a.gw.Get(ctx, "/notifications/", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkRead は通知を既読にする。
func (a *NotificationsAPI) MarkRead(ctx context.Context, notificationID string) error {
	return a.gw.Put(ctx, "/notifications/"+notificationID+"/read", nil, nil)
}
