package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the per-account critical section could
// not be entered within the bounded wait.
var ErrLockNotAcquired = errors.New("account lock not acquired within wait")

// acquirePollInterval is how often a blocked acquirer re-attempts SET NX.
const acquirePollInterval = 25 * time.Millisecond

// releaseScript deletes the lock key only when it still holds the caller's
// token, so a holder that exceeded the TTL cannot release a successor's lock.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// AccountLock implements ports.AccountLocker with Redis SET NX. The TTL is
// the critical section's maximum hold time: a stuck holder is force-released
// when it expires, and its late release is a no-op thanks to the token check.
type AccountLock struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewAccountLock creates a Redis-backed per-account lock.
func NewAccountLock(client *goredis.Client, ttl, wait time.Duration) *AccountLock {
	return &AccountLock{
		client: client,
		prefix: "lock:account:",
		ttl:    ttl,
		wait:   wait,
	}
}

// Acquire enters the critical section for accountID. Holders of different
// accounts never contend. The returned release function is idempotent.
func (l *AccountLock) Acquire(ctx context.Context, accountID uuid.UUID) (func(), error) {
	key := l.prefix + accountID.String()
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock acquire: %w", err)
		}
		if ok {
			var once sync.Once
			release := func() {
				once.Do(func() {
					// Release must not inherit a caller's cancelled context.
					// On failure the key expires via TTL anyway.
					rctx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					_ = releaseScript.Run(rctx, l.client, []string{key}, token).Err()
				})
			}
			return release, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}
