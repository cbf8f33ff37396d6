package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const orderLockPrefix = "lock:order:"

// releaseLockScript deletes the lock only while it still holds the caller's
// token. A lock that expired and was taken by someone else is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockStore serializes work on an order across goroutines and instances.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireOrderLock attempts to acquire the lock for an order. On success it
// returns the owner token that ReleaseOrderLock needs; acquired is false if
// the lock is already held.
func (s *LockStore) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, orderLockPrefix+orderID, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseOrderLock releases the lock if it is still held under token.
func (s *LockStore) ReleaseOrderLock(ctx context.Context, orderID, token string) error {
	return releaseLockScript.Run(ctx, s.client, []string{orderLockPrefix + orderID}, token).Err()
}
