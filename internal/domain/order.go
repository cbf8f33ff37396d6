package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the current status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusCancelled
}

// RestoresStock reports whether entering s must put reserved stock back.
func (s OrderStatus) RestoresStock() bool {
	return s == OrderStatusFailed || s == OrderStatusCancelled
}

// PaymentMethod represents how an order is paid.
type PaymentMethod string

const (
	PaymentMethodKhalti         PaymentMethod = "khalti"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// CustomerInfo holds the shipping contact handed to the payment gateway.
type CustomerInfo struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
	Phone string `validate:"required,min=7,max=15"`
}

// OrderItem is one line of an order. UnitPrice is the price at purchase time.
type OrderItem struct {
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// Subtotal returns UnitPrice * Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order represents a storefront order.
type Order struct {
	ID            string
	Items         []OrderItem
	TotalAmount   decimal.Decimal // currency units, two decimal places
	Status        OrderStatus
	Customer      CustomerInfo
	PaymentMethod PaymentMethod
	PaymentRef    string // gateway pidx recorded at initiation
	FailureReason string
	// VerifiedAmount is the paisa total the gateway reported when the order
	// was finalized by verification, zero otherwise.
	VerifiedAmount int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Finalization is the terminal state written to a pending order.
type Finalization struct {
	Status         OrderStatus
	Reason         FailureReason
	VerifiedAmount int64
}

// CancelWindow is how long after placement a customer may cancel.
const CancelWindow = 30 * time.Minute

// CanCancel reports whether the customer may still cancel the order at now.
func (o *Order) CanCancel(now time.Time) bool {
	if o.Status != OrderStatusPending {
		return false
	}
	return now.Sub(o.CreatedAt) <= CancelWindow
}
