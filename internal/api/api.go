// Package api はバックエンドのリソース別APIクライアントを提供する。
// 各クライアントは状態を持たない純粋なリクエスト／レスポンス関数の集合で、
// 共有ゲートウェイ（internal/gateway）にのみ依存する。
package api

import "github.com/foodaid/appcore/internal/gateway"

// Clients は全リソースAPIクライアントをまとめた構造体。
// ゲートウェイ1つから全クライアントを生成する。
type Clients struct {
	Auth          *AuthAPI
	Posts         *PostsAPI
	Reservations  *ReservationsAPI
	Logistics     *LogisticsAPI
	Notifications *NotificationsAPI
	Payments      *PaymentsAPI
	Admin         *AdminAPI
}

// NewClients は共有ゲートウェイから全APIクライアントを生成する。
func NewClients(gw *gateway.Client) *Clients {
	return &Clients{
		Auth:          NewAuthAPI(gw),
		Posts:         NewPostsAPI(gw),
		Reservations:  NewReservationsAPI(gw),
		Logistics:     NewLogisticsAPI(gw),
		Notifications: NewNotificationsAPI(gw),
		Payments:      NewPaymentsAPI(gw),
		Admin:         NewAdminAPI(gw),
	}
}
