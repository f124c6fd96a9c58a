package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int32           `json:"quantity"`
}

type TransactionSummary struct {
	ID                int64             `json:"id"`
	BuyOrder          *string           `json:"buy_order"`
	Status            TransactionStatus `json:"status"`
	AuthorizationCode *string           `json:"authorization_code"`
	Amount            int64             `json:"amount"`
}

type Purchase struct {
	ID          int64               `json:"id"`
	UserID      int64               `json:"user_id"`
	Total       decimal.Decimal     `json:"total"`
	Success     bool                `json:"success"`
	Items       []PurchaseItem      `json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
	Transaction *TransactionSummary `json:"transaction,omitempty"`
}

type PlaceOrderResult struct {
	Success    bool            `json:"success"`
	PurchaseID int64           `json:"purchase_id"`
	Total      decimal.Decimal `json:"total"`
}
