package model

// DonationRequest は金銭寄付の決済オーダー作成リクエストを表す。
// Amountは最小通貨単位（セント等）で指定する。
type DonationRequest struct {
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
	Email    string `json:"email"`
}

// PaymentLink は決済プロバイダーが返すHATEOASリンクを表す。
type PaymentLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// PaymentOrder は決済オーダー作成のレスポンスを表す。
// Linksにはユーザーをリダイレクトする承認URL（rel=approve）が含まれる。
type PaymentOrder struct {
	OrderID string        `json:"order_id"`
	Status  string        `json:"status"`
	Links   []PaymentLink `json:"links"`
}

// ApproveLink は承認用リンクのURLを返す。見つからない場合は空文字列。
func (o *PaymentOrder) ApproveLink() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// CaptureResult は決済キャプチャのレスポンスを表す。
type CaptureResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SystemBalance は寄付金プールの残高を表す（管理者用）。
type SystemBalance struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// DisbursementRequest は確認済みユーザーへの資金払い出し要求を表す（管理者用）。
type DisbursementRequest struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason,omitempty"`
}
