package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fashionhub/internal/domain"
	"fashionhub/internal/events"
	"fashionhub/internal/khalti"
	"fashionhub/internal/redis"
	"fashionhub/internal/repository"
)

// OrderService handles order placement and customer cancellation.
// Cancellation takes the same per-order lock as payment reconciliation and
// asks the gateway about any recorded payment first.
type OrderService struct {
	orderRepo repository.OrderRepository
	locks     redis.LockStoreInterface
	cache     redis.CacheStoreInterface
	gateway   Gateway
	auditor   *Auditor
	publisher events.Publisher
	now       func() time.Time
}

// NewOrderService creates a new OrderService. cache and publisher may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	locks redis.LockStoreInterface,
	cache redis.CacheStoreInterface,
	gateway Gateway,
	auditor *Auditor,
	publisher events.Publisher,
) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		locks:     locks,
		cache:     cache,
		gateway:   gateway,
		auditor:   auditor,
		publisher: publisher,
		now:       time.Now,
	}
}

// PlaceOrderItem is one requested line.
type PlaceOrderItem struct {
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// PlaceOrderRequest contains the parameters for placing an order.
type PlaceOrderRequest struct {
	Customer      domain.CustomerInfo
	Items         []PlaceOrderItem
	PaymentMethod domain.PaymentMethod
}

// PlaceOrder creates a pending order and reserves stock for it.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, validationError("order must contain at least one item")
	}

	switch req.PaymentMethod {
	case "":
		req.PaymentMethod = domain.PaymentMethodKhalti
	case domain.PaymentMethodKhalti, domain.PaymentMethodCashOnDelivery:
	default:
		return nil, validationError("unsupported payment method")
	}

	if err := validateCustomer(req.Customer); err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, validationError("product id is required")
		}
		if it.Quantity <= 0 {
			return nil, validationError("quantity must be positive")
		}
		if !it.UnitPrice.IsPositive() {
			return nil, validationError("unit price must be positive")
		}

		item := domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice.Round(2),
			Quantity:    it.Quantity,
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
	}

	now := s.now()
	order := &domain.Order{
		ID:          uuid.New().String(),
		Items:       items,
		TotalAmount: total,
		Status:      domain.OrderStatusPending,
		Customer: domain.CustomerInfo{
			Name:  strings.TrimSpace(req.Customer.Name),
			Email: strings.TrimSpace(req.Customer.Email),
			Phone: strings.TrimSpace(req.Customer.Phone),
		},
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	log.Printf("[ORDER] placed order=%s total=%s items=%d method=%s", order.ID, order.TotalAmount.StringFixed(2), len(items), order.PaymentMethod)
	return order, nil
}

// GetOrder retrieves an order by ID, reading through the cache.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, validationError("order id is required")
	}

	if s.cache != nil {
		cached, err := s.cache.GetOrder(ctx, orderID)
		if err == nil && cached != nil {
			return cached, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetOrder(ctx, order)
	}

	return order, nil
}

// CancelOrder cancels a pending order within the cancellation window and
// returns its stock to inventory. An order whose payment the gateway reports
// as completed or still processing is not cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, validationError("order id is required")
	}

	unlock, err := lockOrder(ctx, s.locks, orderID, defaultLockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.CanCancel(s.now()) {
		return nil, ErrOrderNotCancellable
	}

	if order.PaymentRef != "" {
		if err := s.checkPaymentAllowsCancel(ctx, order); err != nil {
			return nil, err
		}
	}

	err = s.orderRepo.Finalize(ctx, order.ID, domain.Finalization{
		Status: domain.OrderStatusCancelled,
		Reason: domain.ReasonCancelledByUser,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrOrderNotCancellable
		}
		return nil, err
	}

	order.Status = domain.OrderStatusCancelled
	order.FailureReason = string(domain.ReasonCancelledByUser)

	if s.cache != nil {
		_ = s.cache.InvalidateOrder(ctx, order.ID)
	}

	log.Printf("[ORDER] cancelled order=%s", order.ID)
	s.auditor.Record(ctx, domain.AuditEvent{
		Kind:    domain.AuditOrderCancelled,
		OrderID: order.ID,
		Pidx:    order.PaymentRef,
		Detail:  map[string]any{"reason": string(domain.ReasonCancelledByUser)},
	})
	publishOrderEvent(ctx, s.publisher, order)

	return order, nil
}

// checkPaymentAllowsCancel looks up the order's recorded payment. A payment
// the gateway cannot report on, or that is completed or pending, blocks
// cancellation; completed payments are settled through verification instead.
func (s *OrderService) checkPaymentAllowsCancel(ctx context.Context, order *domain.Order) error {
	v, err := s.gateway.VerifyPayment(ctx, order.PaymentRef)
	if err != nil {
		log.Printf("[ORDER] cannot cancel order %s, payment lookup failed: %v", order.ID, err)
		return newGatewayError("verify", err)
	}

	var refusal error
	switch v.Status {
	case khalti.StatusCompleted:
		refusal = fmt.Errorf("%w: payment already completed", ErrOrderNotCancellable)
	case khalti.StatusPending:
		refusal = ErrPaymentInProgress
	default:
		return nil
	}

	log.Printf("[ORDER] refused to cancel order %s pidx=%s gateway_status=%q", order.ID, order.PaymentRef, v.Status)
	s.auditor.Record(ctx, domain.AuditEvent{
		Kind:    domain.AuditCancelRefused,
		OrderID: order.ID,
		Pidx:    order.PaymentRef,
		Amount:  v.TotalAmount,
		Detail: map[string]any{
			"gateway_status": v.Status,
			"transaction_id": v.TransactionID,
		},
	})
	return refusal
}

// publishOrderEvent announces that an order reached a terminal status.
// Delivery failures are logged; the order change is already committed.
func publishOrderEvent(ctx context.Context, publisher events.Publisher, order *domain.Order) {
	if publisher == nil {
		return
	}

	var topic string
	switch order.Status {
	case domain.OrderStatusPaid:
		topic = events.TopicOrderPaid
	case domain.OrderStatusFailed:
		topic = events.TopicOrderFailed
	case domain.OrderStatusCancelled:
		topic = events.TopicOrderCancelled
	default:
		return
	}

	err := publisher.Publish(ctx, events.OrderEvent{
		EventType:     topic,
		OrderID:       order.ID,
		Status:        string(order.Status),
		Reason:        order.FailureReason,
		TotalAmount:   order.TotalAmount,
		PaymentRef:    order.PaymentRef,
		CustomerEmail: order.Customer.Email,
		OccurredAt:    time.Now(),
	})
	if err != nil {
		log.Printf("[EVENT] failed to publish %s for order %s: %v", topic, order.ID, err)
	}
}
