package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCreatePayment_SendsPixRequest(t *testing.T) {
	var gotAuth, gotIdem string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("X-Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"id": 12345678,
			"status": "pending",
			"transaction_amount": 35.00,
			"external_reference": "tmp-ref",
			"payment_method_id": "pix",
			"live_mode": true,
			"point_of_interaction": {"transaction_data": {"qr_code": "000201...", "qr_code_base64": "aGVsbG8=", "ticket_url": "https://pay.example/t/1"}}
		}`))
	}))
	defer srv.Close()

	c := NewPixClient(srv.URL, "test-token", "pix-key")
	p, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount:            decimal.RequireFromString("35.00"),
		Description:       "order",
		PayerEmail:        "a@b.c",
		ExternalReference: "tmp-ref",
		NotificationURL:   "https://menu.example/webhooks/payment",
		IdempotencyKey:    "idem-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer test-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotIdem != "idem-1" {
		t.Fatalf("idempotency header = %q", gotIdem)
	}
	if gotBody["payment_method_id"] != "pix" || gotBody["external_reference"] != "tmp-ref" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	if p.ID.String() != "12345678" {
		t.Fatalf("payment id = %q", p.ID.String())
	}
	if !p.TransactionAmount.Equal(decimal.RequireFromString("35.00")) {
		t.Fatalf("amount = %s", p.TransactionAmount)
	}
	if p.PointOfInteraction.TransactionData.QRCode == "" {
		t.Fatal("missing pix code")
	}
}

func TestGetPayment_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewPixClient(srv.URL, "t", "k")
	if _, err := c.GetPayment(context.Background(), "999"); err == nil {
		t.Fatal("expected error on 404")
	}
}
