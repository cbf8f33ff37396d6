package khalti

// Lookup statuses reported by the gateway.
const (
	StatusCompleted         = "Completed"
	StatusPending           = "Pending"
	StatusInitiated         = "Initiated"
	StatusRefunded          = "Refunded"
	StatusPartiallyRefunded = "Partially Refunded"
	StatusExpired           = "Expired"
	StatusUserCanceled      = "User canceled"
)

// CustomerInfo is the payer contact sent with an initiation.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// AmountBreakdown is one labelled component of the total amount.
type AmountBreakdown struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// ProductDetail describes one purchased line. Prices are in paisa.
type ProductDetail struct {
	Identity   string `json:"identity"`
	Name       string `json:"name"`
	TotalPrice int64  `json:"total_price"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

// InitiateRequest is the body of POST /epayment/initiate/.
type InitiateRequest struct {
	ReturnURL         string            `json:"return_url"`
	WebsiteURL        string            `json:"website_url"`
	Amount            int64             `json:"amount"`
	PurchaseOrderID   string            `json:"purchase_order_id"`
	PurchaseOrderName string            `json:"purchase_order_name"`
	CustomerInfo      CustomerInfo      `json:"customer_info"`
	AmountBreakdown   []AmountBreakdown `json:"amount_breakdown,omitempty"`
	ProductDetails    []ProductDetail   `json:"product_details,omitempty"`
	MerchantUsername  string            `json:"merchant_username,omitempty"`
	MerchantExtra     string            `json:"merchant_extra,omitempty"`
}

// InitiateResponse is the gateway's answer to an initiation.
type InitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
	ExpiresIn  int    `json:"expires_in"`
}

// LookupRequest is the body of POST /epayment/lookup/.
type LookupRequest struct {
	Pidx string `json:"pidx"`
}

// LookupResponse is the gateway's verified view of a payment.
type LookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"total_amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Fee           int64  `json:"fee"`
	Refunded      bool   `json:"refunded"`
}
