package tests

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fashionhub/internal/domain"
	"fashionhub/internal/service"
)

const (
	testSecretKey = "live_secret_key_4f1c9a2b7d3e"
	testSiteURL   = "http://localhost:8080"
	testProduct   = "kurta-blue-m"
)

// paymentFixture bundles a PaymentService with the mocks behind it.
type paymentFixture struct {
	orders    *MockOrderRepository
	attempts  *MockAttemptStore
	locks     *MockLockStore
	cache     *MockCacheStore
	gateway   *MockGateway
	audit     *MockAuditRepository
	publisher *MockPublisher
	svc       *service.PaymentService
	orderSvc  *service.OrderService
}

func newPaymentFixture(secretKey string) *paymentFixture {
	f := &paymentFixture{
		orders:    NewMockOrderRepository(),
		attempts:  NewMockAttemptStore(),
		locks:     NewMockLockStore(),
		cache:     NewMockCacheStore(),
		gateway:   NewMockGateway(),
		audit:     NewMockAuditRepository(),
		publisher: NewMockPublisher(),
	}
	f.svc = service.NewPaymentService(
		f.orders,
		f.attempts,
		f.locks,
		f.cache,
		f.gateway,
		service.NewAuditor(f.audit),
		f.publisher,
		service.PaymentConfig{
			SecretKey:        secretKey,
			MerchantUsername: "fashionhub",
		},
	)
	f.orderSvc = service.NewOrderService(
		f.orders,
		f.locks,
		f.cache,
		f.gateway,
		service.NewAuditor(f.audit),
		f.publisher,
	)
	return f
}

// addPendingOrder stores a pending single-line order for total and leaves
// four units of the product in stock, as if one had just been reserved.
func (f *paymentFixture) addPendingOrder(id, total string) *domain.Order {
	price := decimal.RequireFromString(total)
	order := &domain.Order{
		ID: id,
		Items: []domain.OrderItem{{
			ProductID:   testProduct,
			ProductName: "Blue Cotton Kurta",
			UnitPrice:   price,
			Quantity:    1,
		}},
		TotalAmount: price,
		Status:      domain.OrderStatusPending,
		Customer: domain.CustomerInfo{
			Name:  "Sita Sharma",
			Email: "sita@example.com",
			Phone: "9800000001",
		},
		PaymentMethod: domain.PaymentMethodKhalti,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	f.orders.AddOrder(order)
	f.orders.SetStock(testProduct, 4)
	return order
}

// initiate starts a payment for orderID in session and fails the test on error.
func (f *paymentFixture) initiate(t *testing.T, sessionID, orderID string) *service.InitiatePaymentResult {
	t.Helper()

	result, err := f.svc.InitiatePayment(context.Background(), service.InitiatePaymentRequest{
		SessionID: sessionID,
		OrderID:   orderID,
		SiteURL:   testSiteURL,
	})
	if err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	return result
}

// callback delivers a gateway redirect for pidx to session.
func (f *paymentFixture) callback(sessionID, pidx string) (*domain.Outcome, error) {
	return f.svc.HandleCallback(context.Background(), service.CallbackRequest{
		SessionID: sessionID,
		Pidx:      pidx,
		Status:    "Completed",
	})
}
