package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/order"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/payment"
)

//
// ---------- STUBS & FAKES ----------
//

type fakeGateway struct {
	payments map[string]*payment.Payment
	getCalls int
	getErr   error
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req payment.CreatePaymentRequest) (*payment.Payment, error) {
	return nil, errors.New("not used")
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	g.getCalls++
	if g.getErr != nil {
		return nil, g.getErr
	}
	if p, ok := g.payments[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("gateway: get payment %s: 404 Not Found", id)
}

func (g *fakeGateway) UpdateReference(ctx context.Context, id, ref string) error { return nil }

type stubOrders struct {
	orders      map[string]*order.Order
	getCalls    int
	updateCalls int
	updateErr   error
}

func (s *stubOrders) CreateOrder(ctx context.Context, o *order.Order) error { return nil }
func (s *stubOrders) CreateItems(ctx context.Context, items []order.Item) error {
	return nil
}
func (s *stubOrders) DeleteOrder(ctx context.Context, id string) error { return nil }
func (s *stubOrders) GetItems(ctx context.Context, orderID string) ([]order.Item, error) {
	return nil, nil
}
func (s *stubOrders) ListByUser(ctx context.Context, userID string, limit, offset int) ([]order.Order, error) {
	return nil, nil
}

func (s *stubOrders) GetByID(ctx context.Context, id string) (*order.Order, error) {
	s.getCalls++
	if o, ok := s.orders[id]; ok {
		return o, nil
	}
	return nil, order.ErrNotFound
}

func (s *stubOrders) UpdatePaymentState(ctx context.Context, id string, st order.Status, ps order.PaymentStatus, method string) error {
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status, o.PaymentStatus = st, ps
	if method != "" {
		o.PaymentMethod = method
	}
	return nil
}

type stubIntents struct {
	mirrors  map[string]*payment.Intent
	statuses map[string]string
}

func (s *stubIntents) Create(ctx context.Context, in *payment.Intent) error { return nil }
func (s *stubIntents) GetByID(ctx context.Context, id string) (*payment.Intent, error) {
	if in, ok := s.mirrors[id]; ok {
		return in, nil
	}
	return nil, payment.ErrNotFound
}
func (s *stubIntents) GetByOrderID(ctx context.Context, orderID string) (*payment.Intent, error) {
	return nil, payment.ErrNotFound
}
func (s *stubIntents) UpdateStatus(ctx context.Context, id, status string) error {
	if s.statuses == nil {
		return payment.ErrNotFound
	}
	s.statuses[id] = status
	return nil
}

type env struct {
	gateway *fakeGateway
	orders  *stubOrders
	intents *stubIntents
	router  *gin.Engine
	orderID string
	secret  string
}

const testSecret = "whsec_test"

// newEnv wires a handler around one pending order of 35.00 with an approved
// gateway payment for the same amount.
func newEnv(t *testing.T, gatewayStatus string) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orderID := uuid.NewString()
	p := &payment.Payment{
		ID:                json.Number("555001"),
		Status:            gatewayStatus,
		ExternalReference: orderID,
		TransactionAmount: decimal.RequireFromString("35.00"),
		PaymentMethodID:   "pix",
		LiveMode:          true,
	}

	e := &env{
		gateway: &fakeGateway{payments: map[string]*payment.Payment{"555001": p}},
		orders: &stubOrders{orders: map[string]*order.Order{
			orderID: {ID: orderID, UserID: "u1", Status: order.StatusPending, PaymentStatus: order.PaymentPending, Total: "35.00"},
		}},
		intents: &stubIntents{statuses: map[string]string{}},
		orderID: orderID,
		secret:  testSecret,
	}

	h := NewHandler(e.secret, []string{"192.0.2.0/24"}, false, e.gateway, e.orders, e.intents)
	e.router = gin.New()
	e.router.POST("/webhooks/payment", h.HandleNotification)
	return e
}

func (e *env) deliver(t *testing.T, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	e.router.ServeHTTP(w, req)
	return w
}

func paymentBody(id string) string {
	return fmt.Sprintf(`{"type":"payment","data":{"id":%q}}`, id)
}

func signedBody(secret, body string) string {
	return Sign(secret, "1700000000", []byte(body))
}

//
// ---------- TESTS ----------
//

func TestHandleNotification_ApprovedReconcilesOrder(t *testing.T) {
	e := newEnv(t, "approved")
	body := paymentBody("555001")

	w := e.deliver(t, body, signedBody(testSecret, body))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	o := e.orders.orders[e.orderID]
	if o.Status != order.StatusConfirmed || o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("order state = %s/%s", o.Status, o.PaymentStatus)
	}
	if o.PaymentMethod != "pix" {
		t.Fatalf("payment method = %q", o.PaymentMethod)
	}
	if e.intents.statuses["555001"] != "approved" {
		t.Fatalf("intent mirror not updated: %v", e.intents.statuses)
	}
}

func TestHandleNotification_Idempotent(t *testing.T) {
	e := newEnv(t, "approved")
	body := paymentBody("555001")
	sig := signedBody(testSecret, body)

	for i := 0; i < 2; i++ {
		if w := e.deliver(t, body, sig); w.Code != http.StatusOK {
			t.Fatalf("delivery %d: status=%d", i+1, w.Code)
		}
	}

	o := e.orders.orders[e.orderID]
	if o.Status != order.StatusConfirmed || o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("order state = %s/%s", o.Status, o.PaymentStatus)
	}
	if e.orders.updateCalls != 1 {
		t.Fatalf("second delivery was not a no-op: updates=%d", e.orders.updateCalls)
	}
}

func TestHandleNotification_TamperedPayloadRejectedBeforeLookup(t *testing.T) {
	e := newEnv(t, "approved")
	body := paymentBody("555001")
	sig := signedBody(testSecret, body)
	tampered := paymentBody("999999")

	w := e.deliver(t, tampered, sig)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", w.Code)
	}
	if e.gateway.getCalls != 0 || e.orders.getCalls != 0 {
		t.Fatalf("lookups performed on unauthenticated delivery: gateway=%d orders=%d", e.gateway.getCalls, e.orders.getCalls)
	}
}

func TestHandleNotification_MissingSignatureRejected(t *testing.T) {
	e := newEnv(t, "approved")
	body := paymentBody("555001")
	if w := e.deliver(t, body, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", w.Code)
	}
}

func TestHandleNotification_AmountMismatchIsFraud(t *testing.T) {
	e := newEnv(t, "approved")
	e.orders.orders[e.orderID].Total = "50.00"
	e.gateway.payments["555001"].TransactionAmount = decimal.RequireFromString("49.99")
	body := paymentBody("555001")

	w := e.deliver(t, body, signedBody(testSecret, body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	o := e.orders.orders[e.orderID]
	if o.Status != order.StatusPending || o.PaymentStatus != order.PaymentPending {
		t.Fatalf("order mutated on fraud signal: %s/%s", o.Status, o.PaymentStatus)
	}
}

func TestHandleNotification_BadOrigin(t *testing.T) {
	e := newEnv(t, "approved")
	h := NewHandler(testSecret, []string{"10.0.0.0/8"}, false, e.gateway, e.orders, e.intents)
	r := gin.New()
	r.POST("/webhooks/payment", h.HandleNotification)

	body := paymentBody("555001")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signedBody(testSecret, body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", w.Code)
	}
}

func TestHandleNotification_NoCIDRsDisablesOriginCheck(t *testing.T) {
	e := newEnv(t, "approved")
	h := NewHandler(testSecret, nil, true, e.gateway, e.orders, e.intents)
	r := gin.New()
	r.POST("/webhooks/payment", h.HandleNotification)

	// httptest requests arrive from 192.0.2.1, a public address.
	body := paymentBody("555001")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signedBody(testSecret, body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	if o := e.orders.orders[e.orderID]; o.Status != order.StatusConfirmed {
		t.Fatalf("delivery not applied: %s", o.Status)
	}
}

func TestHandleNotification_NonPaymentTypeAcknowledged(t *testing.T) {
	e := newEnv(t, "approved")
	body := `{"type":"merchant_order","data":{"id":"1"}}`

	w := e.deliver(t, body, signedBody(testSecret, body))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if e.gateway.getCalls != 0 {
		t.Fatal("re-fetched payment for a non-payment notification")
	}
}

func TestHandleNotification_UnknownOrder(t *testing.T) {
	e := newEnv(t, "approved")
	e.gateway.payments["555001"].ExternalReference = uuid.NewString()
	body := paymentBody("555001")

	if w := e.deliver(t, body, signedBody(testSecret, body)); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
}

func TestHandleNotification_StaleReferenceResolvedThroughIntentMirror(t *testing.T) {
	e := newEnv(t, "approved")
	// The reference attach never landed: the payment still carries the
	// placeholder minted before the order row existed.
	e.gateway.payments["555001"].ExternalReference = uuid.NewString()
	e.intents.mirrors = map[string]*payment.Intent{
		"555001": {ID: "555001", OrderID: e.orderID, Amount: "35.00", Status: "pending"},
	}
	body := paymentBody("555001")

	w := e.deliver(t, body, signedBody(testSecret, body))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	o := e.orders.orders[e.orderID]
	if o.Status != order.StatusConfirmed || o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("order stranded despite intent mirror: %s/%s", o.Status, o.PaymentStatus)
	}
}

func TestHandleNotification_MalformedReference(t *testing.T) {
	e := newEnv(t, "approved")
	e.gateway.payments["555001"].ExternalReference = "not-a-uuid'; DROP TABLE orders;--"
	body := paymentBody("555001")

	if w := e.deliver(t, body, signedBody(testSecret, body)); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if e.orders.updateCalls != 0 {
		t.Fatal("order mutated on malformed reference")
	}
}

func TestHandleNotification_SandboxPaymentIgnored(t *testing.T) {
	e := newEnv(t, "approved")
	e.gateway.payments["555001"].LiveMode = false
	body := paymentBody("555001")

	if w := e.deliver(t, body, signedBody(testSecret, body)); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if e.orders.updateCalls != 0 {
		t.Fatal("sandbox payment mutated an order")
	}
}

func TestHandleNotification_UnknownStatusAcknowledged(t *testing.T) {
	e := newEnv(t, "charged_back")
	body := paymentBody("555001")

	if w := e.deliver(t, body, signedBody(testSecret, body)); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if e.orders.updateCalls != 0 {
		t.Fatal("unknown status applied")
	}
}

func TestHandleNotification_PaidOrderNeverRegresses(t *testing.T) {
	e := newEnv(t, "pending")
	e.orders.orders[e.orderID].Status = order.StatusConfirmed
	e.orders.orders[e.orderID].PaymentStatus = order.PaymentPaid
	body := paymentBody("555001")

	if w := e.deliver(t, body, signedBody(testSecret, body)); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	o := e.orders.orders[e.orderID]
	if o.Status != order.StatusConfirmed || o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("paid order regressed: %s/%s", o.Status, o.PaymentStatus)
	}
}

func TestHandleNotification_PersistenceFailureAsks500(t *testing.T) {
	e := newEnv(t, "approved")
	e.orders.updateErr = errors.New("connection reset")
	body := paymentBody("555001")

	if w := e.deliver(t, body, signedBody(testSecret, body)); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500 so the gateway retries", w.Code)
	}
}

func TestHandleNotification_RefetchFailureAsks500(t *testing.T) {
	e := newEnv(t, "approved")
	e.gateway.getErr = errors.New("gateway timeout")
	body := paymentBody("555001")

	if w := e.deliver(t, body, signedBody(testSecret, body)); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", w.Code)
	}
}

func TestHandleNotification_NoSecretDegradedMode(t *testing.T) {
	e := newEnv(t, "approved")
	h := NewHandler("", []string{"192.0.2.0/24"}, false, e.gateway, e.orders, e.intents)
	r := gin.New()
	r.POST("/webhooks/payment", h.HandleNotification)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(paymentBody("555001")))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	o := e.orders.orders[e.orderID]
	if o.Status != order.StatusConfirmed {
		t.Fatalf("degraded-mode delivery not applied: %s", o.Status)
	}
}

func TestParseSignature(t *testing.T) {
	ts, v1, ok := parseSignature("ts=1700000000,v1=abcdef")
	if !ok || ts != "1700000000" || v1 != "abcdef" {
		t.Fatalf("got %q %q %v", ts, v1, ok)
	}
	if _, _, ok := parseSignature("v1=abcdef"); ok {
		t.Fatal("accepted header without ts")
	}
	if _, _, ok := parseSignature(""); ok {
		t.Fatal("accepted empty header")
	}
}
