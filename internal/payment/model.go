package payment

import "time"

// Intent mirrors the gateway-side payment created for an order. The ID is
// the gateway's payment id preserved verbatim; the webhook path correlates
// deliveries through it.
type Intent struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	Amount     string    `json:"amount"` // NUMERIC -> string
	Status     string    `json:"status"`
	PixCode    string    `json:"pix_code"`
	PixCodeB64 string    `json:"pix_code_base64,omitempty"`
	TicketURL  string    `json:"ticket_url,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
