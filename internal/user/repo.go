// Package user resolves authenticated sessions to caller identities.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrSessionExpired = errors.New("session expired")
)

type Repository interface {
	GetSession(ctx context.Context, token string) (*Session, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetSession(ctx context.Context, token string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT s.token, s.user_id, u.email, s.expires_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token=$1
	`, token).Scan(&s.Token, &s.UserID, &s.Email, &s.ExpiresAt)
	if err != nil {
		return nil, ErrNotFound
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return &s, nil
}
