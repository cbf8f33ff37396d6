package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fashionhub/internal/domain"
	"fashionhub/internal/repository"
)

// Auditor records payment audit events. A failing sink is reported in the
// application log and never fails the payment flow.
type Auditor struct {
	repo repository.AuditRepository
}

// NewAuditor creates a new Auditor.
func NewAuditor(repo repository.AuditRepository) *Auditor {
	return &Auditor{repo: repo}
}

// Record appends an event to the audit trail.
func (a *Auditor) Record(ctx context.Context, event domain.AuditEvent) {
	if a == nil || a.repo == nil {
		return
	}

	event.ID = uuid.New().String()
	event.CreatedAt = time.Now()

	if err := a.repo.Append(ctx, &event); err != nil {
		log.Printf("[AUDIT] failed to append %s for order %s: %v", event.Kind, event.OrderID, err)
	}
}
