package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/promanage/promanage/internal/permstore"
	"github.com/promanage/promanage/internal/shared"
	"github.com/promanage/promanage/internal/token"
)

const resetTokenTTL = 2 * time.Hour

// dummyHash keeps the bcrypt cost on login failure paths that never reach a
// real compare, so response timing does not reveal whether the account
// exists.
var dummyHash = func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("promanage-timing-pad"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
}()

// RoleSource yields the stored role value for a user, used as the role claim
// of freshly issued access credentials.
type RoleSource interface {
	FindUserByID(ctx context.Context, id int64) (permstore.User, error)
}

// TokenPair is the credential set handed out at login.
type TokenPair struct {
	Access  string
	Refresh string
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	roles    RoleSource
	codec    *token.Codec
	denylist token.Denylist
	mailer   MailEnqueuer
	logger   *slog.Logger
}

// NewService constructs a Service. denylist and mailer may be nil.
func NewService(repo Repository, roles RoleSource, codec *token.Codec, denylist token.Denylist, mailer MailEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, codec: codec, denylist: denylist, mailer: mailer, logger: logger}
}

// Login validates email/password credentials and mints a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, TokenPair{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, TokenPair{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, TokenPair{}, shared.ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh exchanges a valid refresh credential for a new access credential.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, *token.Claims, error) {
	claims, ok := s.codec.VerifyRefresh(refreshToken)
	if !ok {
		return "", nil, shared.ErrUnauthorized
	}
	if s.denylist != nil && s.denylist.IsRevoked(ctx, claims.ID) {
		return "", nil, shared.ErrUnauthorized
	}
	access, err := s.codec.IssueAccess(claims.Subject, s.roleFor(ctx, claims.Subject))
	if err != nil {
		return "", nil, err
	}
	return access, claims, nil
}

// Logout revokes the presented credentials so they stop working before their
// natural expiry.
func (s *Service) Logout(ctx context.Context, accessClaims *token.Claims, refreshToken string) {
	if s.denylist == nil {
		return
	}
	if accessClaims != nil {
		s.revoke(ctx, accessClaims)
	}
	if refreshToken != "" {
		if claims, ok := s.codec.VerifyRefresh(refreshToken); ok {
			s.revoke(ctx, claims)
		}
	}
}

// ForgotPassword stores a reset token and queues the mail. The outcome is
// identical whether or not the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	resetToken := hex.EncodeToString(buf)
	if err := s.repo.CreatePasswordReset(ctx, resetToken, user.ID, time.Now().Add(resetTokenTTL)); err != nil {
		return err
	}
	if s.mailer != nil {
		if err := s.mailer.EnqueueResetMail(ctx, user.Email, resetToken); err != nil && s.logger != nil {
			s.logger.Warn("enqueue reset mail", slog.Any("error", err))
		}
	}
	return nil
}

// ResetPassword redeems a reset token and stores the new password hash.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.ResetPassword(ctx, resetToken, string(hash)); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrInvalidCredentials
		}
		return err
	}
	return nil
}

func (s *Service) issuePair(ctx context.Context, userID int64) (TokenPair, error) {
	subject := strconv.FormatInt(userID, 10)
	access, err := s.codec.IssueAccess(subject, s.roleFor(ctx, subject))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.IssueRefresh(subject)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *Service) roleFor(ctx context.Context, subject string) string {
	if s.roles == nil {
		return ""
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return ""
	}
	user, err := s.roles.FindUserByID(ctx, id)
	if err != nil {
		return ""
	}
	return user.Role
}

func (s *Service) revoke(ctx context.Context, claims *token.Claims) {
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.denylist.Revoke(ctx, claims.ID, ttl); err != nil && s.logger != nil {
		s.logger.Warn("revoke credential", slog.Any("error", err))
	}
}
