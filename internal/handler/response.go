package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fashionhub/internal/repository"
	"fashionhub/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Gateway and configuration failures get a generic message; their details
// stay in the server log and the audit trail.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: publicMessage(err), Code: errorCode(err)})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, service.ErrOrderNotPending),
		errors.Is(err, service.ErrOrderNotCancellable),
		errors.Is(err, service.ErrPaymentInProgress),
		errors.Is(err, service.ErrNoPaymentRecorded):
		return http.StatusConflict

	// Callback did not belong to this browser session
	case errors.Is(err, service.ErrInvalidSession):
		return http.StatusForbidden

	// Upstream gateway
	case errors.Is(err, service.ErrGateway):
		return http.StatusBadGateway

	// Default to internal server error, including ErrConfiguration
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrGateway):
		return "payment service is temporarily unavailable, please try again"
	case errors.Is(err, service.ErrConfiguration):
		return "online payment is currently unavailable"
	case mapErrorToHTTPStatus(err) == http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}

// errorCode is a stable identifier for the storefront, also used as the
// payment_error query parameter on callback redirects.
func errorCode(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrValidation):
		return "validation"
	case errors.Is(err, repository.ErrInsufficientStock):
		return "out_of_stock"
	case errors.Is(err, service.ErrOrderNotPending), errors.Is(err, service.ErrOrderNotCancellable):
		return "order_state"
	case errors.Is(err, service.ErrPaymentInProgress):
		return "in_progress"
	case errors.Is(err, service.ErrNoPaymentRecorded):
		return "no_payment"
	case errors.Is(err, service.ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, service.ErrGateway):
		return "gateway"
	case errors.Is(err, service.ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}
