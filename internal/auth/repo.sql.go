package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promanage/promanage/internal/platform/db"
	"github.com/promanage/promanage/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, COALESCE(name, ''), password_hash, is_active FROM users WHERE email = $1`,
		email).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreatePasswordReset stores a single-use reset token.
func (r *PGRepository) CreatePasswordReset(ctx context.Context, resetToken string, userID int64, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		resetToken, userID, expiresAt)
	return err
}

// ResetPassword redeems a reset token and stores the new hash. Token
// deletion and the password update commit together or not at all.
func (r *PGRepository) ResetPassword(ctx context.Context, resetToken, passwordHash string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var userID int64
		err := tx.QueryRow(ctx,
			`DELETE FROM password_resets WHERE token = $1 AND expires_at > NOW() RETURNING user_id`,
			resetToken).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
			userID, passwordHash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// DeleteExpiredPasswordResets prunes stale reset rows; the worker runs this
// on a schedule.
func (r *PGRepository) DeleteExpiredPasswordResets(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
