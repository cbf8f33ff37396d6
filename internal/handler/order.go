package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fashionhub/internal/domain"
	"fashionhub/internal/service"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CustomerRequest is the contact block of a checkout.
type CustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// OrderItemRequest is one cart line.
type OrderItemRequest struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

// CreateOrderRequest is the HTTP request body for checkout.
type CreateOrderRequest struct {
	Customer      CustomerRequest    `json:"customer"`
	Items         []OrderItemRequest `json:"items"`
	PaymentMethod string             `json:"payment_method,omitempty"` // khalti, cash_on_delivery
}

// OrderItemResponse is one line of an order.
type OrderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

// OrderResponse is the HTTP response for order operations.
type OrderResponse struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	TotalAmount   string              `json:"total_amount"`
	PaymentMethod string              `json:"payment_method"`
	PaymentRef    string              `json:"payment_ref,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Customer      CustomerRequest     `json:"customer"`
	Items         []OrderItemResponse `json:"items"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	items := make([]service.PlaceOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.PlaceOrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), service.PlaceOrderRequest{
		Customer: domain.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Items:         items,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toOrderResponse(order))
}

// GetOrder handles GET /v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

// CancelOrder handles POST /v1/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	order, err := h.orderService.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal().StringFixed(2),
		})
	}

	return OrderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount.StringFixed(2),
		PaymentMethod: string(o.PaymentMethod),
		PaymentRef:    o.PaymentRef,
		FailureReason: o.FailureReason,
		Customer: CustomerRequest{
			Name:  o.Customer.Name,
			Email: o.Customer.Email,
			Phone: o.Customer.Phone,
		},
		Items:     items,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.Format(time.RFC3339),
	}
}
