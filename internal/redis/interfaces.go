package redis

import (
	"context"
	"time"

	"fashionhub/internal/domain"
)

// AttemptStoreInterface defines session-scoped payment attempt storage.
type AttemptStoreInterface interface {
	Save(ctx context.Context, sessionID string, attempt *domain.PaymentAttempt) error
	Get(ctx context.Context, sessionID string) (*domain.PaymentAttempt, error)
	Delete(ctx context.Context, sessionID, pidx string) error
}

// LockStoreInterface defines the interface for distributed locking. Each
// acquisition yields its own token; only that token releases the lock.
type LockStoreInterface interface {
	AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (token string, acquired bool, err error)
	ReleaseOrderLock(ctx context.Context, orderID, token string) error
}

// CacheStoreInterface defines the order read cache.
type CacheStoreInterface interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	SetOrder(ctx context.Context, order *domain.Order) error
	InvalidateOrder(ctx context.Context, orderID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ AttemptStoreInterface = (*AttemptStore)(nil)
	_ LockStoreInterface    = (*LockStore)(nil)
	_ CacheStoreInterface   = (*CacheStore)(nil)
)
