// Package product provides the repository and the order-time availability
// validator for menu products.
package product

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// GetByIDs fetches the given products in one round trip; missing ids are
// simply absent from the result map.
func (r *PGRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, name, price::text, available, created_at, updated_at
		FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = &p
	}
	return out, rows.Err()
}
