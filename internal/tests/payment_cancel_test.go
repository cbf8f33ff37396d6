package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"fashionhub/internal/domain"
	"fashionhub/internal/khalti"
	"fashionhub/internal/service"
)

// ──────────────────────────────────────────────
// 11. CANCELLATION DURING PAYMENT
// ──────────────────────────────────────────────

// waitLocked blocks until orderID's lock is held, so a concurrent call is
// known to be inside reconciliation.
func waitLocked(t *testing.T, locks *MockLockStore, orderID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !locks.IsLocked(orderID) {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for order lock")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCancelOrder_DuringVerification_WaitsForPayment(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(testSecretKey)
	f.addPendingOrder("order-1", "1500")
	result := f.initiate(t, "session-1", "order-1")
	f.gateway.SetLookup(result.Pidx, khalti.StatusCompleted, 150000)
	f.gateway.VerifyDelay = 200 * time.Millisecond

	type callbackResult struct {
		outcome *domain.Outcome
		err     error
	}
	done := make(chan callbackResult, 1)
	go func() {
		outcome, err := f.callback("session-1", result.Pidx)
		done <- callbackResult{outcome, err}
	}()

	waitLocked(t, f.locks, "order-1")

	_, err := f.orderSvc.CancelOrder(context.Background(), "order-1")
	if !errors.Is(err, service.ErrPaymentInProgress) {
		t.Fatalf("expected ErrPaymentInProgress while verifying, got: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("callback: %v", res.err)
	}
	if res.outcome.Status != domain.OutcomePaid {
		t.Fatalf("expected Paid, got %+v", res.outcome)
	}

	if got := f.orders.GetOrder("order-1").Status; got != domain.OrderStatusPaid {
		t.Errorf("expected order paid, got %s", got)
	}
	if got := f.orders.Stock(testProduct); got != 4 {
		t.Errorf("expected stock to stay consumed (4), got %d", got)
	}
	if f.audit.Count(domain.AuditPaymentVerified) != 1 {
		t.Error("expected settled payment to be audited")
	}
	if f.audit.Count(domain.AuditOrderCancelled) != 0 {
		t.Error("expected no cancellation")
	}

	// Once the payment is settled the order is no longer cancellable.
	_, err = f.orderSvc.CancelOrder(context.Background(), "order-1")
	if !errors.Is(err, service.ErrOrderNotCancellable) {
		t.Errorf("expected ErrOrderNotCancellable after payment, got: %v", err)
	}
}

func TestCancelOrder_GatewayStatusDecides(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status     string
		wantErr    error
		wantStatus domain.OrderStatus
		wantStock  int
	}{
		{khalti.StatusCompleted, service.ErrOrderNotCancellable, domain.OrderStatusPending, 4},
		{khalti.StatusPending, service.ErrPaymentInProgress, domain.OrderStatusPending, 4},
		{khalti.StatusInitiated, nil, domain.OrderStatusCancelled, 5},
		{khalti.StatusExpired, nil, domain.OrderStatusCancelled, 5},
		{khalti.StatusUserCanceled, nil, domain.OrderStatusCancelled, 5},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.status, func(t *testing.T) {
			t.Parallel()

			f := newPaymentFixture(testSecretKey)
			f.addPendingOrder("order-1", "1500")
			result := f.initiate(t, "session-1", "order-1")
			f.gateway.SetLookup(result.Pidx, tc.status, 150000)

			_, err := f.orderSvc.CancelOrder(context.Background(), "order-1")
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected cancel to succeed, got: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got: %v", tc.wantErr, err)
			}

			if got := f.orders.GetOrder("order-1").Status; got != tc.wantStatus {
				t.Errorf("expected %s, got %s", tc.wantStatus, got)
			}
			if got := f.orders.Stock(testProduct); got != tc.wantStock {
				t.Errorf("expected stock %d, got %d", tc.wantStock, got)
			}
			if tc.wantErr != nil && f.audit.Count(domain.AuditCancelRefused) != 1 {
				t.Error("expected refused cancellation to be audited")
			}
			if f.locks.IsLocked("order-1") {
				t.Error("expected order lock to be released")
			}
		})
	}
}

func TestCancelOrder_CompletedPayment_SettledByRetry(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(testSecretKey)
	f.addPendingOrder("order-1", "1500")
	result := f.initiate(t, "session-1", "order-1")
	f.gateway.SetLookup(result.Pidx, khalti.StatusCompleted, 150000)

	if _, err := f.orderSvc.CancelOrder(context.Background(), "order-1"); !errors.Is(err, service.ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable, got: %v", err)
	}

	outcome, err := f.svc.RetryVerification(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("retry verification: %v", err)
	}
	if outcome.Status != domain.OutcomePaid {
		t.Errorf("expected Paid, got %+v", outcome)
	}
}

func TestCancelOrder_GatewayUnavailable_OrderUntouched(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(testSecretKey)
	f.addPendingOrder("order-1", "1500")
	f.initiate(t, "session-1", "order-1")
	f.gateway.VerifyError = ErrMockTimeout

	_, err := f.orderSvc.CancelOrder(context.Background(), "order-1")
	if !errors.Is(err, service.ErrGateway) {
		t.Fatalf("expected ErrGateway, got: %v", err)
	}
	if got := f.orders.GetOrder("order-1").Status; got != domain.OrderStatusPending {
		t.Errorf("expected order to stay pending, got %s", got)
	}
	if got := f.orders.Stock(testProduct); got != 4 {
		t.Errorf("expected stock untouched, got %d", got)
	}
}

func TestCallback_VerifiedAfterOrderFinalized_IsAudited(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(testSecretKey)
	f.addPendingOrder("order-1", "1500")
	result := f.initiate(t, "session-1", "order-1")
	f.gateway.SetLookup(result.Pidx, khalti.StatusCompleted, 150000)
	f.gateway.VerifyDelay = 100 * time.Millisecond

	// A lock that lapsed mid-verification lets another writer finalize first.
	svc := service.NewPaymentService(
		f.orders, f.attempts, openLocks{}, f.cache, f.gateway,
		service.NewAuditor(f.audit), f.publisher,
		service.PaymentConfig{SecretKey: testSecretKey},
	)

	done := make(chan error, 1)
	var outcome *domain.Outcome
	go func() {
		var err error
		outcome, err = svc.HandleCallback(context.Background(), service.CallbackRequest{
			SessionID: "session-1",
			Pidx:      result.Pidx,
			Status:    khalti.StatusCompleted,
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	err := f.orders.Finalize(context.Background(), "order-1", domain.Finalization{
		Status: domain.OrderStatusCancelled,
		Reason: domain.ReasonCancelledByUser,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("callback: %v", err)
	}
	if outcome.Status != domain.OutcomeFailed || outcome.Reason != domain.ReasonCancelledByUser {
		t.Errorf("expected the stored cancelled outcome, got %+v", outcome)
	}

	if f.audit.Count(domain.AuditVerifiedAfterFinalize) != 1 {
		t.Fatal("expected the late verification to be audited")
	}
	for _, e := range f.audit.Events() {
		if e.Kind != domain.AuditVerifiedAfterFinalize {
			continue
		}
		if e.Amount != 150000 || e.Pidx != result.Pidx || e.Detail["gateway_status"] != khalti.StatusCompleted {
			t.Errorf("unexpected late verification event %+v", e)
		}
	}
	if f.audit.Count(domain.AuditPaymentVerified) != 0 {
		t.Error("late verification must not be recorded as a settled order")
	}
}
