package product

import (
	"context"
	"fmt"

	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/reservation"
)

// ReservationReader reports the outstanding held quantity for a product.
type ReservationReader interface {
	Reserved(productID string) int
}

// Validator checks that every line of a proposed order refers to an
// existing, available product that is not already buried under pending
// reservations. It reports all problems at once, not just the first.
type Validator struct {
	repo     Repository
	reserved ReservationReader
	ceiling  int
}

func NewValidator(repo Repository, reserved ReservationReader, ceiling int) *Validator {
	return &Validator{repo: repo, reserved: reserved, ceiling: ceiling}
}

func (v *Validator) Validate(ctx context.Context, lines []reservation.Line) ([]string, error) {
	seen := make(map[string]bool, len(lines))
	var ids []string
	for _, ln := range lines {
		if !seen[ln.ProductID] {
			seen[ln.ProductID] = true
			ids = append(ids, ln.ProductID)
		}
	}

	products, err := v.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("validator: fetching products: %w", err)
	}

	var errs []string
	for _, ln := range lines {
		p, ok := products[ln.ProductID]
		if !ok {
			errs = append(errs, fmt.Sprintf("product %s does not exist", ln.ProductID))
			continue
		}
		if !p.Available {
			errs = append(errs, fmt.Sprintf("product %s is unavailable", p.Name))
			continue
		}
		if v.reserved.Reserved(ln.ProductID) >= v.ceiling {
			errs = append(errs, fmt.Sprintf("product %s has too much concurrent demand, try again shortly", p.Name))
		}
	}
	return errs, nil
}
