// Package payments は決済プロバイダーとの連携（注文送信・IPN 受信・状態確認ジョブ）を提供します。
// 決済の確定処理そのものはプロバイダー側で行い、ここでは状態の記録だけを行います。
package payments

import "time"

// Status は取引の状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusInvalid   Status = "invalid"
	StatusReversed  Status = "reversed"
)

// Transaction は取引の現在状態です。
type Transaction struct {
	TrackingID        string    `json:"trackingId"`
	MerchantReference string    `json:"merchantReference,omitempty"`
	Status            Status    `json:"status"`
	Amount            float64   `json:"amount,omitempty"`
	Currency          string    `json:"currency,omitempty"`
	PaymentMethod     string    `json:"paymentMethod,omitempty"`
	UserID            string    `json:"userId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Order はプロバイダーへ送る注文です。
type Order struct {
	MerchantReference string
	Amount            float64
	Currency          string
	Description       string
	Email             string
	CallbackURL       string
	NotificationID    string
}

// OrderReceipt は注文送信の結果です。RedirectURL へ利用者を誘導します。
type OrderReceipt struct {
	TrackingID        string `json:"trackingId"`
	MerchantReference string `json:"merchantReference"`
	RedirectURL       string `json:"redirectUrl"`
}

// StatusReport はプロバイダーが返す取引状態です。
type StatusReport struct {
	Status            Status
	MerchantReference string
	Amount            float64
	Currency          string
	PaymentMethod     string
}
