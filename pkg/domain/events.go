package domain

import "time"

const (
	PurchaseEventsTopic = "purchase_events"

	EventPurchaseCompleted = "PurchaseCompleted"
	EventPaymentRejected   = "PaymentRejected"
)

type PurchaseLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int32  `json:"quantity"`
}

// PurchaseCompletedEvent carries money as decimal strings so no precision is lost on the wire.
type PurchaseCompletedEvent struct {
	PurchaseID        int64          `json:"purchase_id"`
	UserID            int64          `json:"user_id"`
	Email             string         `json:"email"`
	Total             string         `json:"total"`
	Items             []PurchaseLine `json:"items"`
	BuyOrder          string         `json:"buy_order,omitempty"`
	AuthorizationCode string         `json:"authorization_code,omitempty"`
	CompletedAt       time.Time      `json:"completed_at"`
}

type PaymentRejectedEvent struct {
	TransactionID int64     `json:"transaction_id"`
	UserID        int64     `json:"user_id"`
	Email         string    `json:"email"`
	BuyOrder      string    `json:"buy_order"`
	Status        string    `json:"status"`
	ResponseCode  int       `json:"response_code"`
	Amount        int64     `json:"amount"`
	RejectedAt    time.Time `json:"rejected_at"`
}

// EventEnvelope is the message shape produced by the outbox worker.
type EventEnvelope[T any] struct {
	EventID int64  `json:"event_id"`
	Event   string `json:"event"`
	Payload T      `json:"payload"`
}
