package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrFractionalMinorUnit is returned when an amount has more precision than paisa.
var ErrFractionalMinorUnit = errors.New("amount is not a whole number of minor units")

// ToMinorUnits converts a currency amount into paisa.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Shift(2)
	if !minor.IsInteger() {
		return 0, ErrFractionalMinorUnit
	}
	return minor.IntPart(), nil
}

// PaymentAttempt is the short-lived record of one gateway initiation, kept in
// the customer's session until the callback consumes it.
type PaymentAttempt struct {
	OrderID         string    `json:"order_id"`
	PurchaseOrderID string    `json:"purchase_order_id"`
	ExpectedAmount  int64     `json:"expected_amount"` // paisa
	Pidx            string    `json:"pidx"`
	CreatedAt       time.Time `json:"created_at"`
}

// OutcomeStatus tags the result of reconciling a callback.
type OutcomeStatus string

const (
	OutcomePaid   OutcomeStatus = "Paid"
	OutcomeFailed OutcomeStatus = "Failed"
)

// FailureReason explains why an order did not end up paid.
type FailureReason string

const (
	ReasonNone            FailureReason = ""
	ReasonAmountMismatch  FailureReason = "amount_mismatch"
	ReasonPidxMismatch    FailureReason = "pidx_mismatch"
	ReasonGatewayStatus   FailureReason = "gateway_status"
	ReasonUserCanceled    FailureReason = "user_canceled"
	ReasonCancelledByUser FailureReason = "cancelled_by_user"
)

// AmountMismatchError records a verified amount that disagrees with the
// amount the attempt was initiated for. It is carried on a Failed outcome,
// never returned as an operation error.
type AmountMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *AmountMismatchError) Error() string {
	return "verified amount does not match expected amount"
}

// Outcome is the result of reconciling a payment for an order.
type Outcome struct {
	Status   OutcomeStatus
	OrderID  string
	Reason   FailureReason
	Mismatch *AmountMismatchError
}

// OutcomeFromOrder rebuilds the stored outcome of a finalized order.
func OutcomeFromOrder(o *Order) Outcome {
	if o.Status == OrderStatusPaid {
		return Outcome{Status: OutcomePaid, OrderID: o.ID}
	}
	outcome := Outcome{
		Status:  OutcomeFailed,
		OrderID: o.ID,
		Reason:  FailureReason(o.FailureReason),
	}
	if outcome.Reason == ReasonAmountMismatch {
		// Attempts are always initiated for the order total.
		expected, _ := ToMinorUnits(o.TotalAmount)
		outcome.Mismatch = &AmountMismatchError{Expected: expected, Actual: o.VerifiedAmount}
	}
	return outcome
}
