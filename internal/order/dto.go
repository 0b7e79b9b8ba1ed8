package order

import "encoding/json"

// CreateOrderItem is one line of an order request.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID      string          `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity       int             `json:"quantity"   example:"2"`
	UnitPrice      string          `json:"unit_price" example:"39.90"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
}

// CreateOrderRequest is the order creation payload. The caller identity
// comes from the authenticated session, never from the body.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items          []CreateOrderItem `json:"items"`
	TotalAmount    string            `json:"total_amount"    example:"35.00"`
	DeliveryFee    string            `json:"delivery_fee,omitempty"    example:"5.00"`
	PaymentMethod  string            `json:"payment_method,omitempty"  example:"pix"`
	DeliveryMethod string            `json:"delivery_method,omitempty" example:"delivery"`
	AddressID      *string           `json:"address_id,omitempty"`
	CustomerName   string            `json:"customer_name,omitempty"`
	CustomerPhone  string            `json:"customer_phone,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// CreateOrderResult pairs the persisted order with the payer-facing
// payment data.
// swagger:model CreateOrderResult
type CreateOrderResult struct {
	Order   *Order  `json:"order"`
	Items   []Item  `json:"items"`
	Payment Display `json:"payment"`
}

// Display is what the payment screen needs to collect a PIX payment.
type Display struct {
	PaymentID  string `json:"payment_id"`
	PixCode    string `json:"pix_code"`
	PixCodeB64 string `json:"pix_code_base64,omitempty"`
	TicketURL  string `json:"ticket_url,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}
