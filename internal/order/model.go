package order

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusPreparing  Status = "preparing"
	StatusReady      Status = "ready"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRejected PaymentStatus = "rejected"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusPreparing: true,
		StatusCancelled: true,
	},
	StatusPreparing: {
		StatusReady:     true,
		StatusCancelled: true,
	},
	StatusReady: {
		StatusDelivering: true,
		StatusDelivered:  true,
		StatusCancelled:  true,
	},
	StatusDelivering: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether an order may move from one status to
// another. Same-status "transitions" are not allowed here; callers treat
// them as no-ops.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// MapGatewayStatus derives the internal state pair from the gateway's
// authoritative payment status. It is a pure function of that status, never
// a relative transition, so re-applying it is always safe. Unknown statuses
// report ok=false and must be acknowledged without effect.
func MapGatewayStatus(gatewayStatus string) (Status, PaymentStatus, bool) {
	switch gatewayStatus {
	case "approved":
		return StatusConfirmed, PaymentPaid, true
	case "rejected", "cancelled":
		return StatusCancelled, PaymentRejected, true
	case "pending", "in_process":
		return StatusPending, PaymentPending, true
	default:
		return "", "", false
	}
}

type Order struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	PaymentMethod  string        `json:"payment_method,omitempty"`
	DeliveryMethod string        `json:"delivery_method,omitempty"`
	Total          string        `json:"total"` // NUMERIC -> string
	DeliveryFee    string        `json:"delivery_fee,omitempty"`
	AddressID      *string       `json:"address_id,omitempty"`
	CustomerName   string        `json:"customer_name,omitempty"`
	CustomerPhone  string        `json:"customer_phone,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type Item struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      string          `json:"unit_price"`
	LineTotal      string          `json:"line_total"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
}
