package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked credential IDs so a logout is effective before the
// credential expires. Entries carry a TTL equal to the remaining credential
// lifetime; redis expiry does the pruning.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) bool
}

// RedisDenylist is the redis-backed Denylist shared across instances. A
// redis outage fails open.
type RedisDenylist struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisDenylist constructs a RedisDenylist.
func NewRedisDenylist(client *redis.Client, logger *slog.Logger) *RedisDenylist {
	return &RedisDenylist{client: client, logger: logger}
}

// Revoke marks a credential ID as revoked for ttl.
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.key(jti), "1", ttl).Err()
}

// IsRevoked reports whether the credential ID has been revoked.
func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	n, err := d.client.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("denylist lookup failed", slog.Any("error", err))
		}
		return false
	}
	return n > 0
}

func (d *RedisDenylist) key(jti string) string {
	return "revoked:" + jti
}
