// Package payment holds the PIX gateway client and the local mirror of
// payment intents.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the external payment API surface the service depends on.
type Gateway interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	UpdateReference(ctx context.Context, id, externalReference string) error
}

type CreatePaymentRequest struct {
	Amount            decimal.Decimal
	Description       string
	PayerEmail        string
	ExternalReference string
	NotificationURL   string
	IdempotencyKey    string
}

// Payment is the gateway's authoritative payment object. Amount parses the
// wire number exactly, so minor-unit comparisons never go through floats.
type Payment struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
	LiveMode          bool            `json:"live_mode"`
	DateOfExpiration  time.Time       `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// PixClient talks to a MercadoPago-compatible payments API.
type PixClient struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
	PixKey  string
}

func NewPixClient(baseURL, token, pixKey string) *PixClient {
	return &PixClient{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: baseURL,
		Token:   token,
		PixKey:  pixKey,
	}
}

func (c *PixClient) CreatePayment(ctx context.Context, in CreatePaymentRequest) (*Payment, error) {
	fields := map[string]any{
		"transaction_amount": json.Number(in.Amount.StringFixed(2)),
		"description":        in.Description,
		"payment_method_id":  "pix",
		"external_reference": in.ExternalReference,
		"notification_url":   in.NotificationURL,
		"payer":              map[string]string{"email": in.PayerEmail},
	}
	if c.PixKey != "" {
		fields["pix_key"] = c.PixKey
	}
	body, _ := json.Marshal(fields)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if in.IdempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", in.IdempotencyKey)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway: create payment: %s", res.Status)
	}
	var p Payment
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *PixClient) GetPayment(ctx context.Context, id string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/payments/%s", c.BaseURL, id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: get payment %s: %s", id, res.Status)
	}
	var p Payment
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateReference attaches the real order id to an already-created payment.
func (c *PixClient) UpdateReference(ctx context.Context, id, externalReference string) error {
	body, _ := json.Marshal(map[string]string{"external_reference": externalReference})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/v1/payments/%s", c.BaseURL, id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: update reference on %s: %s", id, res.Status)
	}
	return nil
}
