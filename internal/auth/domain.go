package auth

import (
	"context"
	"time"
)

// User is the credential-bearing account record.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
}

// Repository abstracts persistence used by authentication flows.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreatePasswordReset(ctx context.Context, resetToken string, userID int64, expiresAt time.Time) error
	// ResetPassword consumes the reset token and stores the new hash in one
	// transaction.
	ResetPassword(ctx context.Context, resetToken, passwordHash string) error
	DeleteExpiredPasswordResets(ctx context.Context) (int64, error)
}

// MailEnqueuer hands reset mails off to the background worker.
type MailEnqueuer interface {
	EnqueueResetMail(ctx context.Context, to, resetToken string) error
}
