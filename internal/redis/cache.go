package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"fashionhub/internal/domain"
)

// OrderCacheTTL is short because a pending order may be finalized at any time;
// every transition also invalidates explicitly.
const OrderCacheTTL = 15 * time.Second

const orderCachePrefix = "cache:order:"

// CacheStore handles order caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// CachedOrder represents a cached order entity.
type CachedOrder struct {
	ID            string            `json:"id"`
	Items         []CachedOrderItem `json:"items"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Status        string            `json:"status"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	CustomerPhone string            `json:"customer_phone"`
	PaymentMethod string            `json:"payment_method"`
	PaymentRef    string            `json:"payment_ref"`
	FailureReason string            `json:"failure_reason"`
	Verified      int64             `json:"verified_amount"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CachedOrderItem represents a cached order line.
type CachedOrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

// GetOrder retrieves an order from cache. Returns nil on a cache miss.
func (s *CacheStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	data, err := s.client.Get(ctx, orderCachePrefix+orderID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedOrder
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return cached.toDomain(), nil
}

// SetOrder stores an order in cache.
func (s *CacheStore) SetOrder(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(newCachedOrder(order))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, orderCachePrefix+order.ID, data, OrderCacheTTL).Err()
}

// InvalidateOrder removes an order from cache.
func (s *CacheStore) InvalidateOrder(ctx context.Context, orderID string) error {
	return s.client.Del(ctx, orderCachePrefix+orderID).Err()
}

func newCachedOrder(o *domain.Order) *CachedOrder {
	items := make([]CachedOrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, CachedOrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}

	return &CachedOrder{
		ID:            o.ID,
		Items:         items,
		TotalAmount:   o.TotalAmount,
		Status:        string(o.Status),
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		CustomerPhone: o.Customer.Phone,
		PaymentMethod: string(o.PaymentMethod),
		PaymentRef:    o.PaymentRef,
		FailureReason: o.FailureReason,
		Verified:      o.VerifiedAmount,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (c *CachedOrder) toDomain() *domain.Order {
	items := make([]domain.OrderItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}

	return &domain.Order{
		ID:          c.ID,
		Items:       items,
		TotalAmount: c.TotalAmount,
		Status:      domain.OrderStatus(c.Status),
		Customer: domain.CustomerInfo{
			Name:  c.CustomerName,
			Email: c.CustomerEmail,
			Phone: c.CustomerPhone,
		},
		PaymentMethod:  domain.PaymentMethod(c.PaymentMethod),
		PaymentRef:     c.PaymentRef,
		FailureReason:  c.FailureReason,
		VerifiedAmount: c.Verified,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
