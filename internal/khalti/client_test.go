package khalti

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", SecretKey: "live_secret_key_abc123", Timeout: 5 * time.Second})
}

func TestClient_InitiatePayment(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/epayment/initiate/", r.URL.Path)
		assert.Equal(t, "Key live_secret_key_abc123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body InitiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(150000), body.Amount)
		assert.Equal(t, "order-1-abcd1234", body.PurchaseOrderID)
		assert.Equal(t, "sita@example.com", body.CustomerInfo.Email)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"pidx": "bZQLD9wRVWo4CdESSfuSsB",
			"payment_url": "https://test-pay.khalti.com/?pidx=bZQLD9wRVWo4CdESSfuSsB",
			"expires_at": "2026-10-15T13:30:00+05:45",
			"expires_in": 1800
		}`))
	})

	resp, err := client.InitiatePayment(context.Background(), InitiateRequest{
		ReturnURL:       "http://localhost:8080/payments/khalti/callback",
		WebsiteURL:      "http://localhost:8080/",
		Amount:          150000,
		PurchaseOrderID: "order-1-abcd1234",
		CustomerInfo:    CustomerInfo{Name: "Sita", Email: "sita@example.com", Phone: "9800000001"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bZQLD9wRVWo4CdESSfuSsB", resp.Pidx)
	assert.Equal(t, 1800, resp.ExpiresIn)
}

func TestClient_InitiatePayment_IncompleteResponse(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pidx": "abc"}`))
	})

	_, err := client.InitiatePayment(context.Background(), InitiateRequest{Amount: 1000})
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClient_ErrorBodyDecoded(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "Invalid token.", "status_code": 401}`))
	})

	_, err := client.VerifyPayment(context.Background(), "pidx-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid token.", apiErr.Detail)
	assert.NotContains(t, err.Error(), "live_secret_key_abc123")
}

func TestClient_ValidationErrorKey(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"return_url": ["This field is required."], "error_key": "validation_error"}`))
	})

	_, err := client.InitiatePayment(context.Background(), InitiateRequest{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_error", apiErr.ErrorKey)
}

func TestClient_VerifyPayment(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/epayment/lookup/", r.URL.Path)

		var body LookupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pidx-1", body.Pidx)

		_, _ = w.Write([]byte(`{
			"pidx": "pidx-1",
			"total_amount": 150000,
			"status": "Completed",
			"transaction_id": "GFq9PFS7b2iYvL8Lir9oXe",
			"fee": 0,
			"refunded": false
		}`))
	})

	resp, err := client.VerifyPayment(context.Background(), "pidx-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, int64(150000), resp.TotalAmount)
	assert.Equal(t, "GFq9PFS7b2iYvL8Lir9oXe", resp.TransactionID)
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.VerifyPayment(ctx, "pidx-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewClient_CapsTimeout(t *testing.T) {
	testCases := []struct {
		configured time.Duration
		want       time.Duration
	}{
		{0, MaxTimeout},
		{time.Hour, MaxTimeout},
		{10 * time.Second, 10 * time.Second},
	}

	for _, tc := range testCases {
		c := NewClient(Config{BaseURL: "https://dev.khalti.com/api/v2", Timeout: tc.configured})
		assert.Equal(t, tc.want, c.httpClient.Timeout, "configured %s", tc.configured)
	}
}

func TestCheckSecretKey(t *testing.T) {
	assert.ErrorIs(t, CheckSecretKey(""), ErrMissingSecretKey)
	assert.ErrorIs(t, CheckSecretKey("  "), ErrMissingSecretKey)
	assert.ErrorIs(t, CheckSecretKey("your_khalti_secret_key_here"), ErrPlaceholderSecretKey)
	assert.ErrorIs(t, CheckSecretKey("Test_Secret_Key"), ErrPlaceholderSecretKey)
	assert.NoError(t, CheckSecretKey("live_secret_key_68791341fdd94846a146f0457ff7b455"))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "live****b455", MaskKey("live1234b455"))
	assert.Equal(t, "*****", MaskKey("short"))
	assert.Equal(t, "", MaskKey(""))
}
