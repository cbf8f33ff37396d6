package domain

import "time"

// AuditKind identifies the type of an audit event.
type AuditKind string

const (
	AuditPaymentInitiated   AuditKind = "payment.initiated"
	AuditInitiationFailed   AuditKind = "payment.initiation_failed"
	AuditPaymentVerified    AuditKind = "payment.verified"
	AuditPaymentFailed      AuditKind = "payment.failed"
	AuditAmountMismatch     AuditKind = "payment.amount_mismatch"
	AuditVerificationFailed AuditKind = "payment.verification_error"
	// AuditVerifiedAfterFinalize records a verification that arrived after
	// the order had already been finalized another way.
	AuditVerifiedAfterFinalize AuditKind = "payment.verified_after_finalize"
	AuditInvalidSession        AuditKind = "payment.invalid_session"
	AuditValidationFailed      AuditKind = "payment.validation_failed"
	AuditOrderCancelled        AuditKind = "order.cancelled"
	AuditCancelRefused         AuditKind = "order.cancel_refused"
)

// AuditEvent is one append-only entry in the payment audit trail.
type AuditEvent struct {
	ID        string
	Kind      AuditKind
	OrderID   string
	Pidx      string
	Amount    int64 // paisa, zero when not applicable
	Detail    map[string]any
	CreatedAt time.Time
}
