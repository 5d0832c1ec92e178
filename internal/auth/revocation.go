package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations keeps signed-out token ids in Redis until the token would have expired.
type Revocations struct {
	client *redis.Client
}

// NewRevocations builds the revocation list. A nil client disables it.
func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{client: client}
}

func revocationKey(jti string) string {
	return "auth:revoked:" + jti
}

// Revoke marks the token id revoked until expiresAt.
func (r *Revocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if r == nil || r.client == nil || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revocationKey(jti), 1, ttl).Err()
}

// IsRevoked reports whether the token id was revoked.
func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r == nil || r.client == nil || jti == "" {
		return false, nil
	}
	err := r.client.Get(ctx, revocationKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
