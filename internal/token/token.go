// Package token issues and verifies the compact signed credentials that
// carry a ProManage identity between requests.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Credential types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the payload of a ProManage credential.
type Claims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies credentials with a shared HMAC-SHA256 secret.
// Verification is a pure function of the token string, the secret, and the
// clock; it performs no I/O.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	skew       time.Duration

	// now is swapped in tests.
	now func() time.Time
}

// NewCodec constructs a Codec. skew absorbs clock drift between issuer and
// verifier when checking exp/nbf/iat.
func NewCodec(secret string, accessTTL, refreshTTL, skew time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		skew:       skew,
		now:        time.Now,
	}
}

// IssueAccess mints a short-lived access credential for the given user.
func (c *Codec) IssueAccess(userID, role string) (string, error) {
	return c.issue(userID, role, TypeAccess, c.accessTTL)
}

// IssueRefresh mints a long-lived refresh credential.
func (c *Codec) IssueRefresh(userID string) (string, error) {
	return c.issue(userID, "", TypeRefresh, c.refreshTTL)
}

func (c *Codec) issue(userID, role, typ string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature and time bounds. Malformed, tampered, and expired
// tokens all come back as ok=false; callers treat invalid and absent
// credentials uniformly.
func (c *Codec) Verify(tokenString string) (*Claims, bool) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.skew),
		jwt.WithTimeFunc(c.nowFunc()),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	return claims, true
}

// VerifyAccess verifies the token and requires it to be an access credential
// with a subject.
func (c *Codec) VerifyAccess(tokenString string) (*Claims, bool) {
	claims, ok := c.Verify(tokenString)
	if !ok || claims.Type != TypeAccess || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

// VerifyRefresh is the refresh-side counterpart of VerifyAccess.
func (c *Codec) VerifyRefresh(tokenString string) (*Claims, bool) {
	claims, ok := c.Verify(tokenString)
	if !ok || claims.Type != TypeRefresh || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

// AccessTTL reports the configured access credential lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh credential lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) nowFunc() func() time.Time {
	if c.now != nil {
		return c.now
	}
	return time.Now
}
