package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Topics for order lifecycle events.
const (
	TopicOrderPaid      = "order.paid"
	TopicOrderFailed    = "order.failed"
	TopicOrderCancelled = "order.cancelled"
)

// OrderEvent is published whenever an order leaves the pending state.
type OrderEvent struct {
	EventType     string          `json:"event_type"`
	OrderID       string          `json:"order_id"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	CustomerEmail string          `json:"customer_email"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}
