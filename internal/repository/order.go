package repository

import (
	"context"

	"fashionhub/internal/domain"
)

// OrderRepository defines the persistence operations for orders.
type OrderRepository interface {
	// Create persists a new order with its items and reserves stock for every
	// item in the same transaction. Returns ErrInsufficientStock if any item
	// cannot be reserved; nothing is written in that case.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order, including its items, by ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByPaymentRef retrieves the order a gateway pidx was recorded on.
	GetByPaymentRef(ctx context.Context, pidx string) (*domain.Order, error)

	// SetPaymentRef records the gateway pidx on a pending order.
	SetPaymentRef(ctx context.Context, id, pidx string) error

	// Finalize moves a pending order into a terminal status and records the
	// verified amount. When the target status restores stock, every item's
	// quantity is returned to inventory in the same transaction. Returns
	// ErrStatusConflict if the order is no longer pending, in which case
	// nothing is changed.
	Finalize(ctx context.Context, id string, f domain.Finalization) error
}

// AuditRepository is the append-only sink for payment audit events.
type AuditRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
}
