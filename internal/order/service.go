package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/payment"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/reservation"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/schedule"
)

var (
	ErrInvalidRequest = errors.New("invalid order request")
	ErrGateway        = errors.New("payment gateway error")
	ErrPersistence    = errors.New("order persistence error")
)

// StoreClosedError carries the next-opening hint for the client.
type StoreClosedError struct {
	Reason      string
	NextOpening string
}

func (e *StoreClosedError) Error() string { return e.Reason }

// ValidationError aggregates every product problem found in the request.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "product validation failed: " + strings.Join(e.Details, "; ")
}

// Caller identifies the authenticated user placing the order.
type Caller struct {
	ID    string
	Email string
}

type AdmissionGate interface {
	Admit(callerID string) error
}

type StoreGate interface {
	Check(ctx context.Context, now time.Time) schedule.Availability
}

type Validator interface {
	Validate(ctx context.Context, lines []reservation.Line) ([]string, error)
}

type Ledger interface {
	Reserve(lines []reservation.Line)
	Release(lines []reservation.Line)
}

// Service runs the order admission workflow: gates, stock reservation, then
// payment creation before any order row exists. The gateway call comes
// first on purpose: the customer must never see a "placed" order that has
// no payment vehicle behind it.
type Service struct {
	gate      AdmissionGate
	store     StoreGate
	validator Validator
	ledger    Ledger
	gateway   payment.Gateway
	orders    Repository
	intents   payment.Repository
	notifyURL string

	now func() time.Time
}

func NewService(gate AdmissionGate, store StoreGate, validator Validator, ledger Ledger,
	gateway payment.Gateway, orders Repository, intents payment.Repository, notifyURL string) *Service {
	return &Service{
		gate:      gate,
		store:     store,
		validator: validator,
		ledger:    ledger,
		gateway:   gateway,
		orders:    orders,
		intents:   intents,
		notifyURL: notifyURL,
		now:       time.Now,
	}
}

func (s *Service) CreateOrder(ctx context.Context, caller Caller, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := s.gate.Admit(caller.ID); err != nil {
		return nil, err
	}

	if avail := s.store.Check(ctx, s.now()); !avail.Open {
		return nil, &StoreClosedError{Reason: avail.Reason, NextOpening: avail.NextOpening}
	}

	total, err := validateShape(req)
	if err != nil {
		return nil, err
	}

	lines := make([]reservation.Line, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, reservation.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	details, err := s.validator.Validate(ctx, lines)
	if err != nil {
		return nil, fmt.Errorf("service: validating products: %w", err)
	}
	if len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}

	s.ledger.Reserve(lines)

	// External side effect first: a payment the caller can act on must exist
	// before any order row does.
	tmpRef := uuid.NewString()
	pay, err := s.gateway.CreatePayment(ctx, payment.CreatePaymentRequest{
		Amount:            total,
		Description:       "digital menu order",
		PayerEmail:        caller.Email,
		ExternalReference: tmpRef,
		NotificationURL:   s.notifyURL,
		IdempotencyKey:    uuid.NewString(),
	})
	if err != nil {
		s.ledger.Release(lines)
		log.Error().Err(err).Str("user_id", caller.ID).Msg("service: gateway refused payment creation")
		return nil, fmt.Errorf("service: creating payment: %w", ErrGateway)
	}
	payID := pay.ID.String()

	o := &Order{
		ID:             uuid.NewString(),
		UserID:         caller.ID,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		PaymentMethod:  req.PaymentMethod,
		DeliveryMethod: req.DeliveryMethod,
		Total:          total.StringFixed(2),
		DeliveryFee:    zeroIfEmpty(req.DeliveryFee),
		AddressID:      req.AddressID,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Notes:          req.Notes,
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		s.ledger.Release(lines)
		// The gateway payment now has no order behind it. An operator has to
		// reconcile it; see DESIGN.md.
		log.Error().Err(err).
			Str("payment_id", payID).
			Str("user_id", caller.ID).
			Msg("service: PRIORITY order insert failed after payment creation, payment intent is orphaned")
		return nil, fmt.Errorf("service: inserting order: %w", ErrPersistence)
	}

	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		unit := decimal.RequireFromString(it.UnitPrice)
		items = append(items, Item{
			ID:             uuid.NewString(),
			OrderID:        o.ID,
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPrice:      unit.StringFixed(2),
			LineTotal:      unit.Mul(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2),
			Customizations: it.Customizations,
		})
	}
	if err := s.orders.CreateItems(ctx, items); err != nil {
		if delErr := s.orders.DeleteOrder(ctx, o.ID); delErr != nil {
			log.Error().Err(delErr).Str("order_id", o.ID).Msg("service: compensating order delete failed")
		}
		s.ledger.Release(lines)
		log.Error().Err(err).
			Str("order_id", o.ID).
			Str("payment_id", payID).
			Msg("service: PRIORITY item insert failed after payment creation, payment intent is orphaned")
		return nil, fmt.Errorf("service: inserting order items: %w", ErrPersistence)
	}

	// Best effort: swap the temporary correlation token for the real order
	// id. The webhook path can still resolve the order through the payment
	// id mirror if this never lands.
	if err := s.gateway.UpdateReference(ctx, payID, o.ID); err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Str("payment_id", payID).Msg("service: could not attach order id to payment reference")
	}

	intent := &payment.Intent{
		ID:         payID,
		OrderID:    o.ID,
		Amount:     o.Total,
		Status:     pay.Status,
		PixCode:    pay.PointOfInteraction.TransactionData.QRCode,
		PixCodeB64: pay.PointOfInteraction.TransactionData.QRCodeBase64,
		TicketURL:  pay.PointOfInteraction.TransactionData.TicketURL,
		ExpiresAt:  pay.DateOfExpiration,
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		// The order and the gateway payment are both authoritative already;
		// only the local mirror is missing.
		log.Error().Err(err).Str("order_id", o.ID).Str("payment_id", payID).Msg("service: PRIORITY storing payment intent mirror failed")
	}

	log.Info().
		Str("order_id", o.ID).
		Str("payment_id", payID).
		Str("user_id", caller.ID).
		Str("total", o.Total).
		Msg("service: order created, awaiting payment")

	return &CreateOrderResult{
		Order: o,
		Items: items,
		Payment: Display{
			PaymentID:  payID,
			PixCode:    intent.PixCode,
			PixCodeB64: intent.PixCodeB64,
			TicketURL:  intent.TicketURL,
			ExpiresAt:  formatExpiry(pay.DateOfExpiration),
		},
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, callerID, orderID string) (*Order, []Item, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.UserID != callerID {
		return nil, nil, ErrNotFound
	}
	items, err := s.orders.GetItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (s *Service) ListOrders(ctx context.Context, callerID string, limit, offset int) ([]Order, error) {
	return s.orders.ListByUser(ctx, callerID, limit, offset)
}

func (s *Service) GetPayment(ctx context.Context, callerID, orderID string) (*payment.Intent, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != callerID {
		return nil, ErrNotFound
	}
	return s.intents.GetByOrderID(ctx, orderID)
}

// validateShape checks the request form and that the declared total matches
// the line math plus the delivery fee, returning the verified total.
func validateShape(req CreateOrderRequest) (decimal.Decimal, error) {
	if len(req.Items) == 0 {
		return decimal.Zero, fmt.Errorf("%w: order must contain at least one item", ErrInvalidRequest)
	}

	sum := decimal.Zero
	for _, it := range req.Items {
		if it.ProductID == "" {
			return decimal.Zero, fmt.Errorf("%w: item is missing product_id", ErrInvalidRequest)
		}
		if it.Quantity <= 0 {
			return decimal.Zero, fmt.Errorf("%w: item quantity for product %s must be positive", ErrInvalidRequest, it.ProductID)
		}
		unit, err := decimal.NewFromString(it.UnitPrice)
		if err != nil || unit.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: item unit price for product %s is malformed", ErrInvalidRequest, it.ProductID)
		}
		sum = sum.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if req.DeliveryFee != "" {
		fee, err := decimal.NewFromString(req.DeliveryFee)
		if err != nil || fee.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: delivery fee is malformed", ErrInvalidRequest)
		}
		sum = sum.Add(fee)
	}

	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || !total.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: total amount is malformed", ErrInvalidRequest)
	}
	if !total.Equal(sum) {
		return decimal.Zero, fmt.Errorf("%w: total amount %s does not match item sum %s", ErrInvalidRequest, total.StringFixed(2), sum.StringFixed(2))
	}
	return total, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0.00"
	}
	return s
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
