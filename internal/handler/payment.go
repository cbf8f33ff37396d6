package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"fashionhub/internal/domain"
	"fashionhub/internal/middleware"
	"fashionhub/internal/service"
)

// PaymentHandler handles HTTP requests for Khalti payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
	publicURL      string
}

// NewPaymentHandler creates a new PaymentHandler. publicURL, when set, is the
// scheme and host used for gateway return URLs instead of the request's.
func NewPaymentHandler(paymentService *service.PaymentService, publicURL string) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		publicURL:      strings.TrimRight(publicURL, "/"),
	}
}

// InitiatePaymentRequest is the optional HTTP request body for starting a
// payment. An empty customer falls back to the order's contact details.
type InitiatePaymentRequest struct {
	Customer *CustomerRequest `json:"customer,omitempty"`
}

// InitiatePaymentResponse is the HTTP response for a started payment.
type InitiatePaymentResponse struct {
	OrderID    string `json:"order_id"`
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// OutcomeResponse is the HTTP response for a reconciled payment.
type OutcomeResponse struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Expected int64  `json:"expected_amount,omitempty"`
	Actual   int64  `json:"verified_amount,omitempty"`
}

// InitiateKhalti handles POST /v1/orders/:id/pay/khalti
func (h *PaymentHandler) InitiateKhalti(c *gin.Context) {
	var req InitiatePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation"})
			return
		}
	}

	var customer domain.CustomerInfo
	if req.Customer != nil {
		customer = domain.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		}
	}

	result, err := h.paymentService.InitiatePayment(c.Request.Context(), service.InitiatePaymentRequest{
		SessionID: middleware.SessionID(c),
		OrderID:   c.Param("id"),
		Customer:  customer,
		SiteURL:   h.siteURL(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if wantsHTML(c) {
		c.Redirect(http.StatusSeeOther, result.PaymentURL)
		return
	}

	respondJSON(c, http.StatusOK, InitiatePaymentResponse{
		OrderID:    result.OrderID,
		Pidx:       result.Pidx,
		PaymentURL: result.PaymentURL,
		ExpiresAt:  result.ExpiresAt,
	})
}

// KhaltiCallback handles GET /payments/khalti/callback. The customer's
// browser lands here after the gateway, so every answer is a redirect to a
// storefront page.
func (h *PaymentHandler) KhaltiCallback(c *gin.Context) {
	outcome, err := h.paymentService.HandleCallback(c.Request.Context(), service.CallbackRequest{
		SessionID:     middleware.SessionID(c),
		Pidx:          c.Query("pidx"),
		Status:        c.Query("status"),
		TransactionID: c.Query("transaction_id"),
	})
	if err != nil {
		c.Redirect(http.StatusFound, "/cart?payment_error="+url.QueryEscape(errorCode(err)))
		return
	}

	page := "failed"
	if outcome.Status == domain.OutcomePaid {
		page = "success"
	}
	c.Redirect(http.StatusFound, "/orders/"+url.PathEscape(outcome.OrderID)+"/"+page)
}

// RetryVerification handles POST /v1/admin/orders/:id/verify
func (h *PaymentHandler) RetryVerification(c *gin.Context) {
	outcome, err := h.paymentService.RetryVerification(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOutcomeResponse(outcome))
}

func toOutcomeResponse(o *domain.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		OrderID: o.OrderID,
		Status:  string(o.Status),
		Reason:  string(o.Reason),
	}
	if o.Mismatch != nil {
		resp.Expected = o.Mismatch.Expected
		resp.Actual = o.Mismatch.Actual
	}
	return resp
}

// siteURL is the origin the customer is browsing, honouring a reverse proxy's
// X-Forwarded-Proto. Without a public URL the client's Host header is trusted,
// so production deployments set server.public_url.
func (h *PaymentHandler) siteURL(c *gin.Context) string {
	if h.publicURL != "" {
		return h.publicURL
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}
