// Package webhook reconciles asynchronous payment notifications into order
// state. Deliveries are at-least-once and untrusted: the handler
// authenticates each one and then acts only on the payment object
// re-fetched from the gateway, never on the notification body.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/order"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/payment"
)

const SignatureHeader = "X-Signature"

type Handler struct {
	secret       string
	cidrs        []*net.IPNet
	allowPrivate bool
	gateway      payment.Gateway
	orders       order.Repository
	intents      payment.Repository
}

func NewHandler(secret string, gatewayCIDRs []string, allowPrivate bool,
	gateway payment.Gateway, orders order.Repository, intents payment.Repository) *Handler {
	h := &Handler{
		secret:       secret,
		allowPrivate: allowPrivate,
		gateway:      gateway,
		orders:       orders,
		intents:      intents,
	}
	for _, c := range gatewayCIDRs {
		if _, ipnet, err := net.ParseCIDR(c); err == nil {
			h.cidrs = append(h.cidrs, ipnet)
		} else {
			log.Error().Str("cidr", c).Msg("webhook: ignoring malformed gateway CIDR")
		}
	}
	if secret == "" {
		log.Warn().Msg("webhook: no shared secret configured, signature verification is DISABLED")
	}
	if len(h.cidrs) == 0 {
		log.Warn().Msg("webhook: no gateway CIDRs configured, origin check is DISABLED")
	}
	return h
}

// The gateway sends payment ids as strings in notifications even though the
// payment object itself carries a numeric id.
type notification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (h *Handler) HandleNotification(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		if !h.verifySignature(c.GetHeader(SignatureHeader), raw) {
			log.Error().
				Str("remote_ip", c.ClientIP()).
				Str("reason", "bad signature").
				Msg("webhook: FRAUD rejected notification")
			c.Status(http.StatusUnauthorized)
			return
		}
	} else {
		log.Warn().Str("remote_ip", c.ClientIP()).Msg("webhook: accepting UNVERIFIED notification, no secret configured")
	}

	if !h.originAllowed(c.ClientIP()) {
		log.Error().
			Str("remote_ip", c.ClientIP()).
			Str("reason", "origin outside gateway ranges").
			Msg("webhook: FRAUD rejected notification")
		c.Status(http.StatusForbidden)
		return
	}

	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if n.Type != "payment" {
		// Other notification types are acknowledged and ignored.
		c.Status(http.StatusOK)
		return
	}

	// Never trust the body's view of the payment: re-fetch by id.
	pay, err := h.gateway.GetPayment(c.Request.Context(), n.Data.ID)
	if err != nil {
		log.Error().Err(err).Str("payment_id", n.Data.ID).Msg("webhook: could not re-fetch payment, asking gateway to retry")
		c.Status(http.StatusInternalServerError)
		return
	}

	if !pay.LiveMode {
		log.Info().Str("payment_id", pay.ID.String()).Msg("webhook: ignoring sandbox payment")
		c.Status(http.StatusOK)
		return
	}

	orderID := pay.ExternalReference
	if _, err := uuid.Parse(orderID); err != nil {
		log.Error().
			Str("payment_id", pay.ID.String()).
			Str("reference", orderID).
			Str("reason", "malformed correlation reference").
			Msg("webhook: FRAUD rejected notification")
		c.Status(http.StatusBadRequest)
		return
	}

	o, err := h.orders.GetByID(c.Request.Context(), orderID)
	if errors.Is(err, order.ErrNotFound) {
		// The reference may still be the placeholder minted before the order
		// row existed. The intent mirror is keyed by the gateway payment id
		// and knows the real order.
		if in, inErr := h.intents.GetByID(c.Request.Context(), pay.ID.String()); inErr == nil {
			log.Info().
				Str("payment_id", pay.ID.String()).
				Str("order_id", in.OrderID).
				Msg("webhook: stale correlation reference, resolved order through intent mirror")
			orderID = in.OrderID
			o, err = h.orders.GetByID(c.Request.Context(), orderID)
		}
	}
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// An order is never created from a webhook.
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusInternalServerError)
		return
	}

	total, err := decimal.NewFromString(o.Total)
	if err != nil || !total.Equal(pay.TransactionAmount) {
		log.Error().
			Str("order_id", o.ID).
			Str("payment_id", pay.ID.String()).
			Str("order_total", o.Total).
			Str("payment_amount", pay.TransactionAmount.String()).
			Str("reason", "amount mismatch").
			Msg("webhook: FRAUD rejected notification")
		c.Status(http.StatusBadRequest)
		return
	}

	st, ps, known := order.MapGatewayStatus(pay.Status)
	if !known {
		log.Warn().Str("payment_id", pay.ID.String()).Str("status", pay.Status).Msg("webhook: unknown gateway status, acknowledged without effect")
		c.Status(http.StatusOK)
		return
	}

	if o.Status == st && o.PaymentStatus == ps {
		// Redelivery of an already-applied state.
		c.Status(http.StatusOK)
		return
	}
	if o.PaymentStatus == order.PaymentPaid && ps != order.PaymentPaid {
		log.Warn().Str("order_id", o.ID).Str("gateway_status", pay.Status).Msg("webhook: refusing to regress a paid order")
		c.Status(http.StatusOK)
		return
	}
	if o.Status != st && !order.CanTransition(o.Status, st) {
		log.Warn().
			Str("order_id", o.ID).
			Str("from", string(o.Status)).
			Str("to", string(st)).
			Msg("webhook: out-of-order notification, acknowledged without effect")
		c.Status(http.StatusOK)
		return
	}

	if err := h.orders.UpdatePaymentState(c.Request.Context(), o.ID, st, ps, pay.PaymentMethodID); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("webhook: order update failed, asking gateway to retry")
		c.Status(http.StatusInternalServerError)
		return
	}

	if pay.PaymentMethodID == "pix" {
		if err := h.intents.UpdateStatus(c.Request.Context(), pay.ID.String(), pay.Status); err != nil {
			if errors.Is(err, payment.ErrNotFound) {
				log.Warn().Str("payment_id", pay.ID.String()).Msg("webhook: no local intent mirror to update")
			} else {
				log.Error().Err(err).Str("payment_id", pay.ID.String()).Msg("webhook: intent update failed, asking gateway to retry")
				c.Status(http.StatusInternalServerError)
				return
			}
		}
	}

	log.Info().
		Str("order_id", o.ID).
		Str("payment_id", pay.ID.String()).
		Str("status", string(st)).
		Str("payment_status", string(ps)).
		Msg("webhook: order state reconciled")
	c.Status(http.StatusOK)
}

// verifySignature recomputes HMAC-SHA256 over "<ts>.<payload>" and compares
// it against the v1 hash embedded in a "ts=<unix>,v1=<hex>" header.
func (h *Handler) verifySignature(header string, payload []byte) bool {
	ts, v1, ok := parseSignature(header)
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	want, err := hex.DecodeString(v1)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), want)
}

func parseSignature(header string) (ts, v1 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	return ts, v1, ts != "" && v1 != ""
}

func (h *Handler) originAllowed(remote string) bool {
	if len(h.cidrs) == 0 {
		return true
	}
	ip := net.ParseIP(remote)
	if ip == nil {
		return false
	}
	if h.allowPrivate && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}
	for _, c := range h.cidrs {
		if c.Contains(ip) {
			return true
		}
	}
	return false
}

// Sign computes the signature header value for a payload; used by tests and
// local tooling to emulate the gateway.
func Sign(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
