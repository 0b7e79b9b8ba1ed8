// Package reservation keeps short-lived holds against per-product demand
// while a payment is pending. The ledger is process-local and approximate:
// it is a backpressure signal, not an inventory count.
package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Line struct {
	ProductID string
	Quantity  int
}

type hold struct {
	quantity  int
	expiresAt time.Time
}

type Ledger struct {
	mu    sync.Mutex
	holds map[string]*hold
	ttl   time.Duration

	now func() time.Time
}

func NewLedger(ttl time.Duration) *Ledger {
	return &Ledger{
		holds: make(map[string]*hold),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Reserve adds each line's quantity to the product's bucket and refreshes
// the bucket expiry to now+TTL.
func (l *Ledger) Reserve(lines []Line) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp := l.now().Add(l.ttl)
	for _, ln := range lines {
		h, ok := l.holds[ln.ProductID]
		if !ok {
			h = &hold{}
			l.holds[ln.ProductID] = h
		}
		h.quantity += ln.Quantity
		h.expiresAt = exp
	}
}

// Release subtracts quantities, floored at zero; empty buckets are removed.
func (l *Ledger) Release(lines []Line) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ln := range lines {
		h, ok := l.holds[ln.ProductID]
		if !ok {
			continue
		}
		h.quantity -= ln.Quantity
		if h.quantity <= 0 {
			delete(l.holds, ln.ProductID)
		}
	}
}

// Reserved reports the outstanding held quantity for a product.
func (l *Ledger) Reserved(productID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.holds[productID]; ok {
		return h.quantity
	}
	return 0
}

// Run sweeps expired buckets every interval until ctx is cancelled. The
// sweep bounds a hold's lifetime even when a release path was missed.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweep()
		}
	}
}

func (l *Ledger) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, h := range l.holds {
		if now.After(h.expiresAt) {
			log.Debug().Str("product_id", id).Int("quantity", h.quantity).Msg("reservation: sweeping expired hold")
			delete(l.holds, id)
		}
	}
}
