package domain

import "time"

type TransactionStatus string

const (
	StatusInitialized TransactionStatus = "INITIALIZED"
	StatusAuthorized  TransactionStatus = "AUTHORIZED"
	StatusFailed      TransactionStatus = "FAILED"
)

// Response codes written by the service itself, never by the gateway.
const (
	ResponseCodeGatewayError  = -1
	ResponseCodePurchaseError = -2
)

// Authorized reports whether the gateway approved the charge.
func Authorized(status TransactionStatus, responseCode int) bool {
	return status == StatusAuthorized && responseCode == 0
}

// StatusOrFailed maps an empty gateway status to FAILED.
func StatusOrFailed(status string) TransactionStatus {
	if status == "" {
		return StatusFailed
	}
	return TransactionStatus(status)
}

type PaymentTransaction struct {
	ID                 int64             `json:"id"`
	UserID             *int64            `json:"user_id"`
	BuyOrder           *string           `json:"buy_order"`
	SessionID          *string           `json:"session_id"`
	Token              *string           `json:"token"`
	Status             TransactionStatus `json:"status"`
	Amount             int64             `json:"amount"`
	AuthorizationCode  *string           `json:"authorization_code"`
	CardLastDigits     *string           `json:"card_last_digits"`
	PaymentTypeCode    *string           `json:"payment_type_code"`
	ResponseCode       *int              `json:"response_code"`
	InstallmentsNumber *int              `json:"installments_number"`
	TransactionDate    *time.Time        `json:"transaction_date"`
	ErrorMessage       *string           `json:"error_message"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CommitOutcome is what the gateway reported for a token, in storage terms.
type CommitOutcome struct {
	BuyOrder           string
	Status             TransactionStatus
	AuthorizationCode  string
	CardLastDigits     string
	PaymentTypeCode    string
	ResponseCode       int
	InstallmentsNumber int
	TransactionDate    *time.Time
}

type PaymentStart struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}
