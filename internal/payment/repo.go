package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("payment intent not found")

type Repository interface {
	Create(ctx context.Context, in *Intent) error
	GetByID(ctx context.Context, id string) (*Intent, error)
	GetByOrderID(ctx context.Context, orderID string) (*Intent, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, in *Intent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO payment_intents (id, order_id, amount, status, pix_code, pix_code_b64, ticket_url, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
	`, in.ID, in.OrderID, in.Amount, in.Status, in.PixCode, in.PixCodeB64, in.TicketURL, in.ExpiresAt)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var in Intent
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, amount::text, status, pix_code, pix_code_b64, ticket_url, expires_at, created_at, updated_at
		FROM payment_intents WHERE id=$1
	`, id).Scan(&in.ID, &in.OrderID, &in.Amount, &in.Status, &in.PixCode, &in.PixCodeB64, &in.TicketURL, &in.ExpiresAt, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &in, nil
}

func (r *PGRepo) GetByOrderID(ctx context.Context, orderID string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var in Intent
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, amount::text, status, pix_code, pix_code_b64, ticket_url, expires_at, created_at, updated_at
		FROM payment_intents WHERE order_id=$1
		ORDER BY created_at DESC LIMIT 1
	`, orderID).Scan(&in.ID, &in.OrderID, &in.Amount, &in.Status, &in.PixCode, &in.PixCodeB64, &in.TicketURL, &in.ExpiresAt, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &in, nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE payment_intents
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
