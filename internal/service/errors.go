package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when input is rejected before any I/O.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration is returned when the gateway credential is unusable.
	ErrConfiguration = errors.New("payment gateway is not configured")

	// ErrGateway is matched by every *GatewayError.
	ErrGateway = errors.New("payment gateway error")

	// ErrInvalidSession is returned when a callback has no matching attempt.
	ErrInvalidSession = errors.New("invalid payment session")

	// ErrPaymentInProgress is returned when another request is already
	// reconciling the same order.
	ErrPaymentInProgress = errors.New("payment verification already in progress")

	// ErrOrderNotPending is returned when a payment is started for an order
	// that already left the pending state.
	ErrOrderNotPending = errors.New("order is not pending")

	// ErrOrderNotCancellable is returned when an order can no longer be cancelled.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")

	// ErrNoPaymentRecorded is returned when verification is retried for an
	// order that was never sent to the gateway.
	ErrNoPaymentRecorded = errors.New("order has no recorded payment")
)

// GatewayError is a failure talking to the payment processor. The order is
// left untouched whenever one is returned.
type GatewayError struct {
	Op         string
	StatusCode int // zero for transport failures
	Err        error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrGateway) hold for any *GatewayError.
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
