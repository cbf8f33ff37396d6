package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fashionhub/internal/domain"
	"fashionhub/internal/events"
	"fashionhub/internal/khalti"
	"fashionhub/internal/redis"
	"fashionhub/internal/repository"
	"fashionhub/internal/service"
)

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository backed by
// an in-memory inventory, so stock reservation and restoration can be
// asserted.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	stock  map[string]int

	// Counters for verification
	CreateCallCount        int32
	FinalizeCallCount      int32
	SetPaymentRefCallCount int32

	// Error injection
	CreateError        error
	GetByIDError       error
	SetPaymentRefError error
	FinalizeError      error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
		stock:  make(map[string]int),
	}
}

// SetStock sets the available stock of a product.
func (m *MockOrderRepository) SetStock(productID string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = qty
}

// Stock returns the available stock of a product.
func (m *MockOrderRepository) Stock(productID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stock[productID]
}

// AddOrder stores an order as-is, without touching stock.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = copyOrder(order)
}

// GetOrder returns the stored order for test assertions.
func (m *MockOrderRepository) GetOrder(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	return copyOrder(o)
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]int)
	for _, item := range order.Items {
		wanted[item.ProductID] += item.Quantity
	}
	for id, qty := range wanted {
		if m.stock[id] < qty {
			return repository.ErrInsufficientStock
		}
	}
	for id, qty := range wanted {
		m.stock[id] -= qty
	}

	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if m.GetByIDError != nil {
		return nil, m.GetByIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *MockOrderRepository) GetByPaymentRef(ctx context.Context, pidx string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.PaymentRef == pidx {
			return copyOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockOrderRepository) SetPaymentRef(ctx context.Context, id, pidx string) error {
	atomic.AddInt32(&m.SetPaymentRefCallCount, 1)
	if m.SetPaymentRefError != nil {
		return m.SetPaymentRefError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if o.Status != domain.OrderStatusPending {
		return repository.ErrStatusConflict
	}
	o.PaymentRef = pidx
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MockOrderRepository) Finalize(ctx context.Context, id string, f domain.Finalization) error {
	atomic.AddInt32(&m.FinalizeCallCount, 1)
	if m.FinalizeError != nil {
		return m.FinalizeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if o.Status != domain.OrderStatusPending {
		return repository.ErrStatusConflict
	}

	o.Status = f.Status
	o.FailureReason = string(f.Reason)
	o.VerifiedAmount = f.VerifiedAmount
	o.UpdatedAt = time.Now()

	if f.Status.RestoresStock() {
		for _, item := range o.Items {
			m.stock[item.ProductID] += item.Quantity
		}
	}
	return nil
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

// ──────────────────────────────────────────────
// MOCK AUDIT REPOSITORY
// ──────────────────────────────────────────────

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	mu     sync.Mutex
	events []domain.AuditEvent

	// Error injection
	AppendError error
}

// NewMockAuditRepository creates a new mock audit repository.
func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

// Count returns how many events of kind were recorded.
func (m *MockAuditRepository) Count(kind domain.AuditKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Events returns a copy of every recorded event.
func (m *MockAuditRepository) Events() []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEvent(nil), m.events...)
}

// ──────────────────────────────────────────────
// MOCK ATTEMPT STORE
// ──────────────────────────────────────────────

// MockAttemptStore is a mock implementation of AttemptStore.
type MockAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domain.PaymentAttempt

	// Counters
	SaveCallCount   int32
	DeleteCallCount int32

	// Error injection
	SaveError error
	GetError  error
}

// NewMockAttemptStore creates a new mock attempt store.
func NewMockAttemptStore() *MockAttemptStore {
	return &MockAttemptStore{
		attempts: make(map[string]domain.PaymentAttempt),
	}
}

func (m *MockAttemptStore) Save(ctx context.Context, sessionID string, attempt *domain.PaymentAttempt) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[sessionID] = *attempt
	return nil
}

func (m *MockAttemptStore) Get(ctx context.Context, sessionID string) (*domain.PaymentAttempt, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[sessionID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MockAttemptStore) Delete(ctx context.Context, sessionID, pidx string) error {
	atomic.AddInt32(&m.DeleteCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.attempts[sessionID]; ok && a.Pidx == pidx {
		delete(m.attempts, sessionID)
	}
	return nil
}

// Has reports whether sessionID holds an attempt.
func (m *MockAttemptStore) Has(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.attempts[sessionID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu     sync.Mutex
	locks  map[string]mockLock
	nextID int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

type mockLock struct {
	token  string
	expiry time.Time
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]mockLock),
	}
}

func (m *MockLockStore) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return "", false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:order:" + orderID
	if l, exists := m.locks[key]; exists && time.Now().Before(l.expiry) {
		return "", false, nil
	}

	m.nextID++
	token := fmt.Sprintf("token-%d", m.nextID)
	m.locks[key] = mockLock{token: token, expiry: time.Now().Add(ttl)}
	return token, true, nil
}

func (m *MockLockStore) ReleaseOrderLock(ctx context.Context, orderID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "lock:order:" + orderID
	if l, exists := m.locks[key]; exists && l.token == token {
		delete(m.locks, key)
	}
	return nil
}

// IsLocked checks if an order is locked (for test assertions).
func (m *MockLockStore) IsLocked(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, exists := m.locks["lock:order:"+orderID]
	return exists && time.Now().Before(l.expiry)
}

// ──────────────────────────────────────────────
// MOCK CACHE STORE
// ──────────────────────────────────────────────

// MockCacheStore is a mock implementation of CacheStore.
type MockCacheStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	// Counters
	GetHitCount         int32
	InvalidateCallCount int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{
		orders: make(map[string]*domain.Order),
	}
}

func (m *MockCacheStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&m.GetHitCount, 1)
	return copyOrder(o), nil
}

func (m *MockCacheStore) SetOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MockCacheStore) InvalidateOrder(ctx context.Context, orderID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	return nil
}

// Has reports whether an order is cached.
func (m *MockCacheStore) Has(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[orderID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a mock Khalti gateway. Lookups answer from the results
// registered with SetLookup.
type MockGateway struct {
	mu      sync.Mutex
	lookups map[string]khalti.LookupResponse
	nextID  int

	// Requests seen by InitiatePayment
	Initiated []khalti.InitiateRequest

	// Counters
	InitiateCallCount int32
	VerifyCallCount   int32

	// Error injection
	InitiateError error
	VerifyError   error

	// VerifyDelay holds VerifyPayment open to widen race windows.
	VerifyDelay time.Duration
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		lookups: make(map[string]khalti.LookupResponse),
	}
}

func (m *MockGateway) InitiatePayment(ctx context.Context, req khalti.InitiateRequest) (*khalti.InitiateResponse, error) {
	atomic.AddInt32(&m.InitiateCallCount, 1)
	if m.InitiateError != nil {
		return nil, m.InitiateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Initiated = append(m.Initiated, req)
	m.nextID++
	pidx := fmt.Sprintf("pidx-%d", m.nextID)
	return &khalti.InitiateResponse{
		Pidx:       pidx,
		PaymentURL: "https://test-pay.khalti.com/?pidx=" + pidx,
		ExpiresAt:  time.Now().Add(30 * time.Minute).Format(time.RFC3339),
		ExpiresIn:  1800,
	}, nil
}

func (m *MockGateway) VerifyPayment(ctx context.Context, pidx string) (*khalti.LookupResponse, error) {
	atomic.AddInt32(&m.VerifyCallCount, 1)
	if m.VerifyDelay > 0 {
		time.Sleep(m.VerifyDelay)
	}
	if m.VerifyError != nil {
		return nil, m.VerifyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.lookups[pidx]
	if !ok {
		return nil, &khalti.APIError{StatusCode: 404, Detail: "Not found."}
	}
	return &resp, nil
}

// SetLookup registers the verification answer for pidx.
func (m *MockGateway) SetLookup(pidx, status string, totalAmount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[pidx] = khalti.LookupResponse{
		Pidx:          pidx,
		TotalAmount:   totalAmount,
		Status:        status,
		TransactionID: "txn-" + pidx,
	}
}

// SetLookupResponse registers a raw verification answer for pidx.
func (m *MockGateway) SetLookupResponse(pidx string, resp khalti.LookupResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[pidx] = resp
}

// TotalCalls returns every network call the gateway received.
func (m *MockGateway) TotalCalls() int32 {
	return atomic.LoadInt32(&m.InitiateCallCount) + atomic.LoadInt32(&m.VerifyCallCount)
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published order events.
type MockPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, event events.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.PublishError
}

// Topics returns the event types in publish order.
func (m *MockPublisher) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.events))
	for _, e := range m.events {
		topics = append(topics, e.EventType)
	}
	return topics
}

// Ensure mocks satisfy the interfaces they stand in for.
var (
	_ repository.OrderRepository  = (*MockOrderRepository)(nil)
	_ repository.AuditRepository  = (*MockAuditRepository)(nil)
	_ redis.AttemptStoreInterface = (*MockAttemptStore)(nil)
	_ redis.LockStoreInterface    = (*MockLockStore)(nil)
	_ redis.CacheStoreInterface   = (*MockCacheStore)(nil)
	_ events.Publisher            = (*MockPublisher)(nil)
	_ service.Gateway             = (*MockGateway)(nil)
)

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBConstraint = errors.New("mock: unique constraint violation")
	ErrMockTimeout      = errors.New("mock: operation timeout")
)
