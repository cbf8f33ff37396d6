package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"fashionhub/internal/domain"
)

// AuditRepository appends payment audit events to payment_audit_events.
// Rows are only ever inserted.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new PostgreSQL audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{q: db}
}

// Append inserts an audit event.
func (r *AuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO payment_audit_events (id, kind, order_id, pidx, amount, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.Kind,
		nullString(event.OrderID),
		nullString(event.Pidx),
		event.Amount,
		string(detail),
		event.CreatedAt,
	)
	return err
}
