package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"fashionhub/internal/domain"
	"fashionhub/internal/repository"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, customer_name, customer_email, customer_phone, total_amount, status,
	payment_method, payment_ref, failure_reason, verified_amount, created_at, updated_at
`

// Create persists a new order and reserves stock for its items.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return withTx(ctx, r.db, func(q Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			order.ID,
			order.Customer.Name,
			order.Customer.Email,
			order.Customer.Phone,
			order.TotalAmount,
			order.Status,
			order.PaymentMethod,
			nullString(order.PaymentRef),
			order.FailureReason,
			order.VerifiedAmount,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			_, err := q.ExecContext(ctx, `
				INSERT INTO order_items (order_id, position, product_id, product_name, unit_price, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				order.ID, i, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return reserveStock(ctx, q, order.Items)
	})
}

// reserveStock decrements inventory for every product in items. Products are
// locked in a stable order so concurrent checkouts cannot deadlock.
func reserveStock(ctx context.Context, q Querier, items []domain.OrderItem) error {
	quantities := make(map[string]int, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}

	productIDs := make([]string, 0, len(quantities))
	for id := range quantities {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	for _, id := range productIDs {
		result, err := q.ExecContext(ctx, `
			UPDATE inventory
			SET stock = stock - $1, updated_at = NOW()
			WHERE product_id = $2 AND stock >= $1`,
			quantities[id], id,
		)
		if err != nil {
			if isPQCode(err, checkViolation) {
				return fmt.Errorf("%w: product %s", repository.ErrInsufficientStock, id)
			}
			return fmt.Errorf("reserve stock: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: product %s", repository.ErrInsufficientStock, id)
		}
	}

	return nil
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetByPaymentRef retrieves the order a pidx was recorded on.
func (r *OrderRepository) GetByPaymentRef(ctx context.Context, pidx string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_ref = $1`, pidx)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg string) (*domain.Order, error) {
	var (
		order      domain.Order
		paymentRef sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&order.ID,
		&order.Customer.Name,
		&order.Customer.Email,
		&order.Customer.Phone,
		&order.TotalAmount,
		&order.Status,
		&order.PaymentMethod,
		&paymentRef,
		&order.FailureReason,
		&order.VerifiedAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	order.PaymentRef = paymentRef.String

	items, err := r.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *OrderRepository) getItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, unit_price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetPaymentRef records the gateway pidx on a pending order.
func (r *OrderRepository) SetPaymentRef(ctx context.Context, id, pidx string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_ref = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		pidx, id, domain.OrderStatusPending,
	)
	if err != nil {
		// payment_ref is unique; a pidx already bound elsewhere is a conflict.
		if isPQCode(err, uniqueViolation) {
			return fmt.Errorf("%w: payment reference already recorded", repository.ErrStatusConflict)
		}
		return err
	}

	return r.checkConditionalUpdate(ctx, r.db, result, id)
}

// Finalize moves a pending order into a terminal status, restoring stock when
// the target status requires it.
func (r *OrderRepository) Finalize(ctx context.Context, id string, f domain.Finalization) error {
	return withTx(ctx, r.db, func(q Querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE orders
			SET status = $1, failure_reason = $2, verified_amount = $3, updated_at = NOW()
			WHERE id = $4 AND status = $5`,
			f.Status, f.Reason, f.VerifiedAmount, id, domain.OrderStatusPending,
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		if err := r.checkConditionalUpdate(ctx, q, result, id); err != nil {
			return err
		}

		if !f.Status.RestoresStock() {
			return nil
		}

		_, err = q.ExecContext(ctx, `
			UPDATE inventory i
			SET stock = i.stock + r.qty, updated_at = NOW()
			FROM (
				SELECT product_id, SUM(quantity) AS qty
				FROM order_items WHERE order_id = $1
				GROUP BY product_id
			) r
			WHERE i.product_id = r.product_id`, id)
		if err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}

		return nil
	})
}

// checkConditionalUpdate tells a missing order apart from one whose status
// no longer matched the update's guard.
func (r *OrderRepository) checkConditionalUpdate(ctx context.Context, q Querier, result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStatusConflict
}
