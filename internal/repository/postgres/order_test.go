package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fashionhub/internal/domain"
	"fashionhub/internal/repository"
)

// newTestDB opens TEST_DATABASE_URL, applies the schema and skips the test
// when no database is configured.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, string(schema))
	require.NoError(t, err)

	return db
}

func seedStock(t *testing.T, db *sql.DB, productID string, stock int) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO inventory (product_id, stock) VALUES ($1, $2)`, productID, stock)
	require.NoError(t, err)
}

func stockOf(t *testing.T, db *sql.DB, productID string) int {
	t.Helper()
	var stock int
	require.NoError(t, db.QueryRow(`SELECT stock FROM inventory WHERE product_id = $1`, productID).Scan(&stock))
	return stock
}

func newOrder(productID string, qty int) *domain.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	price := decimal.RequireFromString("750.00")
	return &domain.Order{
		ID: uuid.New().String(),
		Items: []domain.OrderItem{
			{ProductID: productID, ProductName: "Blue Cotton Kurta", UnitPrice: price, Quantity: qty},
		},
		TotalAmount:   price.Mul(decimal.NewFromInt(int64(qty))),
		Status:        domain.OrderStatusPending,
		Customer:      domain.CustomerInfo{Name: "Sita", Email: "sita@example.com", Phone: "9800000001"},
		PaymentMethod: domain.PaymentMethodKhalti,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderRepository_CreateReservesStock(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()
	product := "p-" + uuid.New().String()
	seedStock(t, db, product, 5)

	order := newOrder(product, 2)
	require.NoError(t, repo.Create(ctx, order))
	assert.Equal(t, 3, stockOf(t, db, product))

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("1500")))
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)

	_, err = repo.GetByID(ctx, uuid.New().String())
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestOrderRepository_CreateInsufficientStock_RollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()
	product := "p-" + uuid.New().String()
	seedStock(t, db, product, 1)

	order := newOrder(product, 2)
	err := repo.Create(ctx, order)
	require.True(t, errors.Is(err, repository.ErrInsufficientStock), "got %v", err)

	assert.Equal(t, 1, stockOf(t, db, product))
	_, err = repo.GetByID(ctx, order.ID)
	assert.True(t, errors.Is(err, repository.ErrNotFound), "order must not survive a failed reservation")
}

func TestOrderRepository_FinalizeIsConditional(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()
	product := "p-" + uuid.New().String()
	seedStock(t, db, product, 5)

	order := newOrder(product, 2)
	require.NoError(t, repo.Create(ctx, order))
	pidx := "pidx-" + uuid.New().String()
	require.NoError(t, repo.SetPaymentRef(ctx, order.ID, pidx))

	mismatch := domain.Finalization{
		Status:         domain.OrderStatusFailed,
		Reason:         domain.ReasonAmountMismatch,
		VerifiedAmount: 140000,
	}
	require.NoError(t, repo.Finalize(ctx, order.ID, mismatch))
	assert.Equal(t, 5, stockOf(t, db, product))

	err := repo.Finalize(ctx, order.ID, mismatch)
	assert.True(t, errors.Is(err, repository.ErrStatusConflict), "got %v", err)
	assert.Equal(t, 5, stockOf(t, db, product), "stock must be restored once")

	err = repo.SetPaymentRef(ctx, order.ID, "pidx-late")
	assert.True(t, errors.Is(err, repository.ErrStatusConflict))

	got, err := repo.GetByPaymentRef(ctx, pidx)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, got.Status)
	assert.Equal(t, string(domain.ReasonAmountMismatch), got.FailureReason)
	assert.Equal(t, int64(140000), got.VerifiedAmount)

	err = repo.Finalize(ctx, uuid.New().String(), domain.Finalization{Status: domain.OrderStatusPaid})
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestOrderRepository_ConcurrentFinalize_OneWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()
	product := "p-" + uuid.New().String()
	seedStock(t, db, product, 5)

	order := newOrder(product, 1)
	require.NoError(t, repo.Create(ctx, order))

	const n = 8
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- repo.Finalize(ctx, order.ID, domain.Finalization{
				Status: domain.OrderStatusCancelled,
				Reason: domain.ReasonCancelledByUser,
			})
		}()
	}

	wins := 0
	for i := 0; i < n; i++ {
		err := <-results
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, repository.ErrStatusConflict), "got %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 5, stockOf(t, db, product))
}

func TestAuditRepository_Append(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db)

	event := &domain.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      domain.AuditAmountMismatch,
		OrderID:   "order-1",
		Pidx:      "pidx-1",
		Amount:    140000,
		Detail:    map[string]any{"expected_amount": 150000},
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Append(context.Background(), event))

	var kind string
	var expected int64
	require.NoError(t, db.QueryRow(
		`SELECT kind, (detail->>'expected_amount')::BIGINT FROM payment_audit_events WHERE id = $1`, event.ID,
	).Scan(&kind, &expected))
	assert.Equal(t, string(domain.AuditAmountMismatch), kind)
	assert.Equal(t, int64(150000), expected)
}
