package transbank

import "fmt"

type createRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type CreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type CardDetail struct {
	CardNumber string `json:"card_number"`
}

// CommitResponse is the transaction result returned by both commit and status calls.
type CommitResponse struct {
	VCI                string     `json:"vci"`
	Amount             int64      `json:"amount"`
	Status             string     `json:"status"`
	BuyOrder           string     `json:"buy_order"`
	SessionID          string     `json:"session_id"`
	CardDetail         CardDetail `json:"card_detail"`
	AccountingDate     string     `json:"accounting_date"`
	TransactionDate    string     `json:"transaction_date"`
	AuthorizationCode  string     `json:"authorization_code"`
	PaymentTypeCode    string     `json:"payment_type_code"`
	ResponseCode       int        `json:"response_code"`
	InstallmentsAmount int64      `json:"installments_amount,omitempty"`
	InstallmentsNumber int        `json:"installments_number"`
	Balance            int64      `json:"balance,omitempty"`
}

type apiErrorBody struct {
	ErrorMessage string `json:"error_message"`
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transbank: status %d: %s", e.StatusCode, e.Message)
}
