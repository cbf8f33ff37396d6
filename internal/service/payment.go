package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"fashionhub/internal/domain"
	"fashionhub/internal/events"
	"fashionhub/internal/khalti"
	"fashionhub/internal/redis"
	"fashionhub/internal/repository"
)

// Gateway is the external payment processor.
type Gateway interface {
	InitiatePayment(ctx context.Context, req khalti.InitiateRequest) (*khalti.InitiateResponse, error)
	VerifyPayment(ctx context.Context, pidx string) (*khalti.LookupResponse, error)
}

// PaymentConfig holds the settings the payment workflow needs.
type PaymentConfig struct {
	SecretKey        string
	CallbackPath     string
	StoreName        string
	MerchantUsername string
	LockTTL          time.Duration
}

const (
	defaultCallbackPath = "/payments/khalti/callback"
	defaultStoreName    = "FashionHub"
	defaultLockTTL      = 45 * time.Second
)

// PaymentService coordinates payment initiation with the gateway and the
// reconciliation of its callbacks against orders.
type PaymentService struct {
	orderRepo repository.OrderRepository
	attempts  redis.AttemptStoreInterface
	locks     redis.LockStoreInterface
	cache     redis.CacheStoreInterface
	gateway   Gateway
	auditor   *Auditor
	publisher events.Publisher
	cfg       PaymentConfig
}

// NewPaymentService creates a new PaymentService. cache and publisher may be nil.
func NewPaymentService(
	orderRepo repository.OrderRepository,
	attempts redis.AttemptStoreInterface,
	locks redis.LockStoreInterface,
	cache redis.CacheStoreInterface,
	gateway Gateway,
	auditor *Auditor,
	publisher events.Publisher,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = defaultCallbackPath
	}
	if cfg.StoreName == "" {
		cfg.StoreName = defaultStoreName
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	return &PaymentService{
		orderRepo: orderRepo,
		attempts:  attempts,
		locks:     locks,
		cache:     cache,
		gateway:   gateway,
		auditor:   auditor,
		publisher: publisher,
		cfg:       cfg,
	}
}

// InitiatePaymentRequest contains the parameters for starting a payment.
type InitiatePaymentRequest struct {
	SessionID string
	OrderID   string
	Customer  domain.CustomerInfo // defaults to the order's contact when empty
	SiteURL   string              // scheme and host the customer is browsing
}

// InitiatePaymentResult tells the caller where to send the customer.
type InitiatePaymentResult struct {
	OrderID    string
	Pidx       string
	PaymentURL string
	ExpiresAt  string
}

// InitiatePayment registers the order's payment with the gateway and stores
// the attempt in the customer's session. The order stays pending and stock is
// untouched whether or not this succeeds.
func (s *PaymentService) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResult, error) {
	if err := khalti.CheckSecretKey(s.cfg.SecretKey); err != nil {
		log.Printf("[PAYMENT] refusing to initiate payment: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if req.OrderID == "" {
		return nil, validationError("order id is required")
	}
	if req.SessionID == "" {
		return nil, validationError("session is required")
	}

	siteURL, err := parseSiteURL(req.SiteURL)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if order.Status != domain.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	customer := req.Customer
	if customer == (domain.CustomerInfo{}) {
		customer = order.Customer
	}

	amount, err := s.validateInitiation(order, customer)
	if err != nil {
		s.auditor.Record(ctx, domain.AuditEvent{
			Kind:    domain.AuditValidationFailed,
			OrderID: order.ID,
			Detail:  map[string]any{"error": err.Error()},
		})
		return nil, err
	}

	payload := s.buildInitiateRequest(order, customer, amount, siteURL)

	resp, err := s.gateway.InitiatePayment(ctx, payload)
	if err != nil {
		gwErr := newGatewayError("initiate", err)
		log.Printf("[PAYMENT] initiation failed for order %s: %v", order.ID, err)
		s.auditor.Record(ctx, domain.AuditEvent{
			Kind:    domain.AuditInitiationFailed,
			OrderID: order.ID,
			Amount:  amount,
			Detail: map[string]any{
				"error":       err.Error(),
				"status_code": gwErr.StatusCode,
				"credential":  khalti.MaskKey(s.cfg.SecretKey),
			},
		})
		return nil, gwErr
	}

	if err := s.orderRepo.SetPaymentRef(ctx, order.ID, resp.Pidx); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrOrderNotPending
		}
		return nil, err
	}

	attempt := &domain.PaymentAttempt{
		OrderID:         order.ID,
		PurchaseOrderID: payload.PurchaseOrderID,
		ExpectedAmount:  amount,
		Pidx:            resp.Pidx,
		CreatedAt:       time.Now(),
	}
	if err := s.attempts.Save(ctx, req.SessionID, attempt); err != nil {
		return nil, fmt.Errorf("store payment attempt: %w", err)
	}

	s.invalidate(ctx, order.ID)

	log.Printf("[PAYMENT] initiated order=%s pidx=%s amount=%d", order.ID, resp.Pidx, amount)
	s.auditor.Record(ctx, domain.AuditEvent{
		Kind:    domain.AuditPaymentInitiated,
		OrderID: order.ID,
		Pidx:    resp.Pidx,
		Amount:  amount,
		Detail: map[string]any{
			"purchase_order_id": payload.PurchaseOrderID,
			"credential":        khalti.MaskKey(s.cfg.SecretKey),
		},
	})

	return &InitiatePaymentResult{
		OrderID:    order.ID,
		Pidx:       resp.Pidx,
		PaymentURL: resp.PaymentURL,
		ExpiresAt:  resp.ExpiresAt,
	}, nil
}

// validateInitiation checks the order amount and customer contact and returns
// the amount in paisa.
func (s *PaymentService) validateInitiation(order *domain.Order, customer domain.CustomerInfo) (int64, error) {
	if !order.TotalAmount.IsPositive() {
		return 0, validationError("order total must be positive")
	}

	amount, err := domain.ToMinorUnits(order.TotalAmount)
	if err != nil {
		return 0, validationError(err.Error())
	}

	if err := validateCustomer(customer); err != nil {
		return 0, err
	}

	return amount, nil
}

func (s *PaymentService) buildInitiateRequest(order *domain.Order, customer domain.CustomerInfo, amount int64, siteURL *url.URL) khalti.InitiateRequest {
	products := make([]khalti.ProductDetail, 0, len(order.Items))
	for _, item := range order.Items {
		unit, errUnit := domain.ToMinorUnits(item.UnitPrice)
		total, errTotal := domain.ToMinorUnits(item.Subtotal())
		if errUnit != nil || errTotal != nil {
			continue
		}
		products = append(products, khalti.ProductDetail{
			Identity:   item.ProductID,
			Name:       item.ProductName,
			TotalPrice: total,
			Quantity:   item.Quantity,
			UnitPrice:  unit,
		})
	}

	returnURL := siteURL.ResolveReference(&url.URL{Path: s.cfg.CallbackPath})
	websiteURL := siteURL.ResolveReference(&url.URL{Path: "/"})

	return khalti.InitiateRequest{
		ReturnURL:         returnURL.String(),
		WebsiteURL:        websiteURL.String(),
		Amount:            amount,
		PurchaseOrderID:   fmt.Sprintf("%s-%s", order.ID, uuid.New().String()[:8]),
		PurchaseOrderName: fmt.Sprintf("%s Order #%s", s.cfg.StoreName, order.ID),
		CustomerInfo: khalti.CustomerInfo{
			Name:  strings.TrimSpace(customer.Name),
			Email: strings.TrimSpace(customer.Email),
			Phone: strings.TrimSpace(customer.Phone),
		},
		AmountBreakdown:  []khalti.AmountBreakdown{{Label: "Total Amount", Amount: amount}},
		ProductDetails:   products,
		MerchantUsername: s.cfg.MerchantUsername,
		MerchantExtra:    "order_" + order.ID,
	}
}

func parseSiteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, validationError("site url must be an absolute http(s) url")
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// CallbackRequest carries the gateway's redirect query parameters. Every
// field is untrusted.
type CallbackRequest struct {
	SessionID     string
	Pidx          string
	Status        string
	TransactionID string
}

// HandleCallback reconciles a gateway redirect against the attempt stored in
// the customer's session. The callback's own status is advisory; the order is
// decided by the gateway's verification response. Replaying a callback for a
// finalized order returns the stored outcome without side effects.
func (s *PaymentService) HandleCallback(ctx context.Context, req CallbackRequest) (*domain.Outcome, error) {
	if req.Pidx == "" {
		s.recordInvalidSession(ctx, req, "missing pidx")
		return nil, ErrInvalidSession
	}

	var attempt *domain.PaymentAttempt
	if req.SessionID != "" {
		var err error
		attempt, err = s.attempts.Get(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load payment attempt: %w", err)
		}
	}

	if attempt == nil || attempt.Pidx != req.Pidx {
		if outcome, ok := s.finalizedOutcome(ctx, req.Pidx); ok {
			return outcome, nil
		}
		reason := "no attempt in session"
		if attempt != nil {
			reason = "pidx does not match session attempt"
		}
		s.recordInvalidSession(ctx, req, reason)
		return nil, ErrInvalidSession
	}

	log.Printf("[PAYMENT] callback order=%s pidx=%s reported_status=%q", attempt.OrderID, attempt.Pidx, req.Status)

	return s.reconcile(ctx, attempt.OrderID, attempt.Pidx, attempt.ExpectedAmount, func(ctx context.Context) {
		if err := s.attempts.Delete(ctx, req.SessionID, attempt.Pidx); err != nil {
			log.Printf("[PAYMENT] failed to discard attempt for order %s: %v", attempt.OrderID, err)
		}
	})
}

// RetryVerification re-runs gateway verification for a pending order whose
// earlier verification could not complete. The order's own total is the
// expected amount.
func (s *PaymentService) RetryVerification(ctx context.Context, orderID string) (*domain.Outcome, error) {
	if orderID == "" {
		return nil, validationError("order id is required")
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status.IsTerminal() {
		outcome := domain.OutcomeFromOrder(order)
		return &outcome, nil
	}

	if order.PaymentRef == "" {
		return nil, ErrNoPaymentRecorded
	}

	expected, err := domain.ToMinorUnits(order.TotalAmount)
	if err != nil {
		return nil, validationError(err.Error())
	}

	return s.reconcile(ctx, order.ID, order.PaymentRef, expected, nil)
}

// reconcile verifies pidx with the gateway and finalizes the order. discard
// runs once the order is terminal, whoever finalized it.
func (s *PaymentService) reconcile(ctx context.Context, orderID, pidx string, expected int64, discard func(context.Context)) (*domain.Outcome, error) {
	unlock, err := lockOrder(ctx, s.locks, orderID, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status.IsTerminal() {
		if discard != nil {
			discard(ctx)
		}
		outcome := domain.OutcomeFromOrder(order)
		return &outcome, nil
	}

	verification, err := s.gateway.VerifyPayment(ctx, pidx)
	if err != nil {
		gwErr := newGatewayError("verify", err)
		log.Printf("[PAYMENT] verification failed for order %s pidx=%s: %v", orderID, pidx, err)
		s.auditor.Record(ctx, domain.AuditEvent{
			Kind:    domain.AuditVerificationFailed,
			OrderID: orderID,
			Pidx:    pidx,
			Amount:  expected,
			Detail:  map[string]any{"error": err.Error(), "status_code": gwErr.StatusCode},
		})
		return nil, gwErr
	}

	outcome := decideOutcome(orderID, pidx, expected, verification)
	status := terminalStatus(outcome)

	err = s.orderRepo.Finalize(ctx, orderID, domain.Finalization{
		Status:         status,
		Reason:         outcome.Reason,
		VerifiedAmount: verification.TotalAmount,
	})
	if err != nil {
		if !errors.Is(err, repository.ErrStatusConflict) {
			return nil, err
		}

		// Finalized concurrently; report what was stored instead.
		current, getErr := s.orderRepo.GetByID(ctx, orderID)
		if getErr != nil {
			return nil, getErr
		}
		s.recordLateVerification(ctx, current, pidx, expected, verification)
		if discard != nil {
			discard(ctx)
		}
		stored := domain.OutcomeFromOrder(current)
		return &stored, nil
	}

	if discard != nil {
		discard(ctx)
	}
	s.invalidate(ctx, orderID)

	order.Status = status
	order.FailureReason = string(outcome.Reason)
	s.recordOutcome(ctx, order, pidx, expected, verification, outcome)
	s.publish(ctx, order)

	return &outcome, nil
}

// decideOutcome applies the paid invariant: the gateway reports Completed,
// for this pidx, with exactly the expected amount.
func decideOutcome(orderID, pidx string, expected int64, v *khalti.LookupResponse) domain.Outcome {
	failed := func(reason domain.FailureReason) domain.Outcome {
		return domain.Outcome{Status: domain.OutcomeFailed, OrderID: orderID, Reason: reason}
	}

	if v.Pidx != pidx {
		return failed(domain.ReasonPidxMismatch)
	}

	switch v.Status {
	case khalti.StatusCompleted:
	case khalti.StatusUserCanceled:
		return failed(domain.ReasonUserCanceled)
	default:
		return failed(domain.ReasonGatewayStatus)
	}

	if v.TotalAmount != expected {
		outcome := failed(domain.ReasonAmountMismatch)
		outcome.Mismatch = &domain.AmountMismatchError{Expected: expected, Actual: v.TotalAmount}
		return outcome
	}

	return domain.Outcome{Status: domain.OutcomePaid, OrderID: orderID}
}

func terminalStatus(outcome domain.Outcome) domain.OrderStatus {
	switch {
	case outcome.Status == domain.OutcomePaid:
		return domain.OrderStatusPaid
	case outcome.Reason == domain.ReasonUserCanceled:
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusFailed
	}
}

func (s *PaymentService) recordOutcome(ctx context.Context, order *domain.Order, pidx string, expected int64, v *khalti.LookupResponse, outcome domain.Outcome) {
	event := domain.AuditEvent{
		OrderID: order.ID,
		Pidx:    pidx,
		Amount:  v.TotalAmount,
		Detail: map[string]any{
			"expected_amount": expected,
			"gateway_status":  v.Status,
			"transaction_id":  v.TransactionID,
			"order_status":    string(order.Status),
		},
	}

	switch {
	case outcome.Status == domain.OutcomePaid:
		event.Kind = domain.AuditPaymentVerified
		log.Printf("[PAYMENT] order %s paid pidx=%s", order.ID, pidx)
	case outcome.Mismatch != nil:
		event.Kind = domain.AuditAmountMismatch
		log.Printf("[SECURITY] amount mismatch on order %s pidx=%s expected=%d verified=%d",
			order.ID, pidx, outcome.Mismatch.Expected, outcome.Mismatch.Actual)
	default:
		event.Kind = domain.AuditPaymentFailed
		event.Detail["reason"] = string(outcome.Reason)
		log.Printf("[PAYMENT] order %s %s reason=%s gateway_status=%q", order.ID, order.Status, outcome.Reason, v.Status)
	}

	s.auditor.Record(ctx, event)
}

// recordLateVerification keeps a verification result that lost the race to
// finalize the order. A completed payment on an order that did not end up paid
// needs a refund and is logged as a security event.
func (s *PaymentService) recordLateVerification(ctx context.Context, order *domain.Order, pidx string, expected int64, v *khalti.LookupResponse) {
	if v.Status == khalti.StatusCompleted && order.Status != domain.OrderStatusPaid {
		log.Printf("[SECURITY] payment completed on %s order %s pidx=%s verified=%d transaction=%s",
			order.Status, order.ID, pidx, v.TotalAmount, v.TransactionID)
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		Kind:    domain.AuditVerifiedAfterFinalize,
		OrderID: order.ID,
		Pidx:    pidx,
		Amount:  v.TotalAmount,
		Detail: map[string]any{
			"expected_amount": expected,
			"gateway_status":  v.Status,
			"transaction_id":  v.TransactionID,
			"order_status":    string(order.Status),
			"failure_reason":  order.FailureReason,
		},
	})
}

// finalizedOutcome returns the stored outcome of the order pidx was recorded
// on, if that order is already terminal.
func (s *PaymentService) finalizedOutcome(ctx context.Context, pidx string) (*domain.Outcome, bool) {
	order, err := s.orderRepo.GetByPaymentRef(ctx, pidx)
	if err != nil || !order.Status.IsTerminal() {
		return nil, false
	}
	outcome := domain.OutcomeFromOrder(order)
	return &outcome, true
}

func (s *PaymentService) recordInvalidSession(ctx context.Context, req CallbackRequest, reason string) {
	log.Printf("[SECURITY] rejected payment callback pidx=%q: %s", req.Pidx, reason)
	s.auditor.Record(ctx, domain.AuditEvent{
		Kind: domain.AuditInvalidSession,
		Pidx: req.Pidx,
		Detail: map[string]any{
			"reason":          reason,
			"reported_status": req.Status,
		},
	})
}

func (s *PaymentService) invalidate(ctx context.Context, orderID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateOrder(ctx, orderID); err != nil {
		log.Printf("[CACHE] failed to invalidate order %s: %v", orderID, err)
	}
}

func (s *PaymentService) publish(ctx context.Context, order *domain.Order) {
	publishOrderEvent(ctx, s.publisher, order)
}

// lockOrder takes the per-order lock that reconciliation and cancellation
// share. The returned func releases it.
func lockOrder(ctx context.Context, locks redis.LockStoreInterface, orderID string, ttl time.Duration) (func(), error) {
	token, acquired, err := locks.AcquireOrderLock(ctx, orderID, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}
	if !acquired {
		return nil, ErrPaymentInProgress
	}

	return func() {
		if err := locks.ReleaseOrderLock(context.WithoutCancel(ctx), orderID, token); err != nil {
			log.Printf("[LOCK] failed to release lock for order %s: %v", orderID, err)
		}
	}, nil
}

func newGatewayError(op string, err error) *GatewayError {
	gwErr := &GatewayError{Op: op, Err: err}

	var apiErr *khalti.APIError
	if errors.As(err, &apiErr) {
		gwErr.StatusCode = apiErr.StatusCode
	}
	return gwErr
}
