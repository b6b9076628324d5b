package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AttemptGuard allows one in-flight checkout attempt per user cart.
type AttemptGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewAttemptGuard creates a guard whose locks expire after ttl so a crashed
// attempt cannot block the cart forever.
func NewAttemptGuard(client redis.Cmdable, ttl time.Duration) *AttemptGuard {
	return &AttemptGuard{client: client, ttl: ttl}
}

func lockKey(userID string) string {
	return "checkout:lock:" + userID
}

// Acquire takes the lock for userID with owner token. It returns false when
// another attempt holds it.
func (g *AttemptGuard) Acquire(ctx context.Context, userID, token string) (bool, error) {
	err := g.client.SetArgs(ctx, lockKey(userID), token, redis.SetArgs{Mode: "NX", TTL: g.ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Release drops the lock only if token still owns it.
func (g *AttemptGuard) Release(ctx context.Context, userID, token string) error {
	return releaseScript.Run(ctx, g.client, []string{lockKey(userID)}, token).Err()
}
