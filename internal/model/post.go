package model

import "time"

// PostStatus は食品投稿のライフサイクル状態を表す。
// 状態遷移（Available → Reserved → In Transit → Delivered）は
// すべてサーバー側で検証される。クライアントは表示と遷移要求のみを行う。
type PostStatus string

const (
	PostAvailable PostStatus = "Available"
	PostReserved  PostStatus = "Reserved"
	PostInTransit PostStatus = "In Transit"
	PostDelivered PostStatus = "Delivered"
	PostCollected PostStatus = "Collected"
	PostExpired   PostStatus = "Expired"
)

// DeliveryMethod は受け渡し方法を表す。
type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "Pickup"
	DeliveryDelivery DeliveryMethod = "Delivery"
)

// FoodPost は食品の寄付投稿を表す。
type FoodPost struct {
	PostID         string         `json:"post_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Quantity       string         `json:"quantity"`
	Address        string         `json:"address"`
	Expiry         time.Time      `json:"expiry"`
	ImageURL       string         `json:"image_url,omitempty"`
	DonorID        string         `json:"donor_id"`
	Status         PostStatus     `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	Coordinates    *Coordinates   `json:"coordinates,omitempty"`
	DeliveryMethod DeliveryMethod `json:"delivery_method,omitempty"`

	// 予約後に設定されるフィールド
	ReceiverID string     `json:"receiver_id,omitempty"`
	ReservedAt *time.Time `json:"reserved_at,omitempty"`

	// 配送ドライバーの受諾後に設定されるフィールド
	LogisticsID string     `json:"logistics_id,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	// サーバーが付与する付帯情報
	DonorDetails *User    `json:"donor_details,omitempty"`
	DistanceKM   *float64 `json:"distance_km,omitempty"`
}

// FoodPostCreate は食品投稿の作成リクエストを表す。
type FoodPostCreate struct {
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Quantity       string         `json:"quantity"`
	Address        string         `json:"address"`
	Expiry         time.Time      `json:"expiry"`
	ImageURL       string         `json:"image_url,omitempty"`
	DeliveryMethod DeliveryMethod `json:"delivery_method,omitempty"`
}

// Reservation は受取側ユーザーによる投稿の予約を表す。
type Reservation struct {
	ReservationID string    `json:"reservation_id"`
	PostID        string    `json:"post_id"`
	ReceiverID    string    `json:"receiver_id"`
	DonorID       string    `json:"donor_id"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"` // Active / Completed / Cancelled

	PostDetails     *FoodPost `json:"post_details,omitempty"`
	ReceiverDetails *User     `json:"receiver_details,omitempty"`
}
