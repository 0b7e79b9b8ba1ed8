package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

// Repository persists orders with single-row writes. Order and item
// creation are deliberately separate calls: the orchestrator compensates
// with DeleteOrder when the item batch fails, instead of relying on a
// multi-row transaction.
type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	CreateItems(ctx context.Context, items []Item) error
	DeleteOrder(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetItems(ctx context.Context, orderID string) ([]Item, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	UpdatePaymentState(ctx context.Context, id string, status Status, paymentStatus PaymentStatus, paymentMethod string) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) CreateOrder(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, payment_status, payment_method, delivery_method,
		                    total, delivery_fee, address_id, customer_name, customer_phone, notes,
		                    created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
	`, o.ID, o.UserID, o.Status, o.PaymentStatus, o.PaymentMethod, o.DeliveryMethod,
		o.Total, o.DeliveryFee, o.AddressID, o.CustomerName, o.CustomerPhone, o.Notes)
	return err
}

func (r *PGRepo) CreateItems(ctx context.Context, items []Item) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, it := range items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, line_total, customizations)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice, it.LineTotal, it.Customizations); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGRepo) DeleteOrder(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Order
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, status, payment_status, payment_method, delivery_method,
		       total::text, delivery_fee::text, address_id, customer_name, customer_phone, notes,
		       created_at, updated_at
		FROM orders WHERE id=$1
	`, id).Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.DeliveryMethod,
		&o.Total, &o.DeliveryFee, &o.AddressID, &o.CustomerName, &o.CustomerPhone, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *PGRepo) GetItems(ctx context.Context, orderID string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price::text, line_total::text, customizations
		FROM order_items WHERE order_id=$1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineTotal, &it.Customizations); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, status, payment_status, payment_method, delivery_method,
		       total::text, delivery_fee::text, address_id, customer_name, customer_phone, notes,
		       created_at, updated_at
		FROM orders WHERE user_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.DeliveryMethod,
			&o.Total, &o.DeliveryFee, &o.AddressID, &o.CustomerName, &o.CustomerPhone, &o.Notes,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdatePaymentState(ctx context.Context, id string, status Status, paymentStatus PaymentStatus, paymentMethod string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, payment_method = COALESCE(NULLIF($4,''), payment_method), updated_at = NOW()
		WHERE id = $1
	`, id, status, paymentStatus, paymentMethod)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
