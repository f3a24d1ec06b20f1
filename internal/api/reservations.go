package api

import (
	"context"

	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// ReservationsAPI は予約エンドポイントのクライアント。
type ReservationsAPI struct {
	gw *gateway.Client
}

// NewReservationsAPI はReservationsAPIを生成する。
func NewReservationsAPI(gw *gateway.Client) *ReservationsAPI {
	return &ReservationsAPI{gw: gw}
}

// Mine は自分に関係する予約の一覧を取得する。
// 受取者には自分が予約した投稿、寄付者には予約された自分の投稿が返る。
func (a *ReservationsAPI) Mine(ctx context.Context) ([]model.Reservation, error) {
	var reservations []model.Reservation
	if err := a.gw.Get(ctx, "/reservations/me", nil, &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}
