package domain

import (
	"encoding/json"

	generalDomain "github.com/sakashimaa/ferreteria-checkout/pkg/domain"
)

// RawEvent is the outbox envelope with the payload left undecoded until the event type is known.
type RawEvent struct {
	EventID int64           `json:"event_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type (
	PurchaseCompleted = generalDomain.PurchaseCompletedEvent
	PaymentRejected   = generalDomain.PaymentRejectedEvent
)
