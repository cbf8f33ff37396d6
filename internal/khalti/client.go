package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// MaxTimeout caps the per-request timeout regardless of configuration.
const MaxTimeout = 30 * time.Second

// placeholderKeys are values shipped in sample configuration.
var placeholderKeys = map[string]bool{
	"your_khalti_secret_key_here": true,
	"test_secret_key":             true,
	"changeme":                    true,
}

var (
	// ErrMissingSecretKey is returned when no secret key is configured.
	ErrMissingSecretKey = errors.New("khalti secret key is not set")

	// ErrPlaceholderSecretKey is returned when the secret key is a sample value.
	ErrPlaceholderSecretKey = errors.New("khalti secret key is a placeholder")
)

// CheckSecretKey reports whether key is usable for live calls.
func CheckSecretKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingSecretKey
	}
	if placeholderKeys[strings.ToLower(key)] {
		return ErrPlaceholderSecretKey
	}
	return nil
}

// MaskKey hides all but the first and last four characters of a credential.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// APIError is a non-success response from the gateway.
type APIError struct {
	StatusCode int
	Detail     string
	ErrorKey   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("khalti: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("khalti: status %d", e.StatusCode)
}

// Config holds the gateway connection settings.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client talks to the Khalti ePayment API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Client. Outbound requests are traced as New Relic
// external segments when the request context carries a transaction.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
	}
}

// InitiatePayment registers a payment and returns where to send the customer.
func (c *Client) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	var resp InitiateResponse
	if err := c.post(ctx, "/epayment/initiate/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Pidx == "" || resp.PaymentURL == "" {
		return nil, errors.New("khalti: initiate response missing pidx or payment_url")
	}
	return &resp, nil
}

// VerifyPayment asks the gateway for the authoritative state of a payment.
func (c *Client) VerifyPayment(ctx context.Context, pidx string) (*LookupResponse, error) {
	var resp LookupResponse
	if err := c.post(ctx, "/epayment/lookup/", LookupRequest{Pidx: pidx}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("khalti: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("khalti: build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("khalti: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("khalti: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("khalti: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var body struct {
		Detail   string `json:"detail"`
		ErrorKey string `json:"error_key"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Detail = body.Detail
		apiErr.ErrorKey = body.ErrorKey
	}
	return apiErr
}
