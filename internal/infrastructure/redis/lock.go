package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release and extend run as Lua so the ownership check and the mutation are
// one atomic step; a plain GET-then-DEL could delete a lock that expired and
// was re-acquired by another worker in between.
var (
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a Redis SET NX lock with a random owner token. The queue
// drain scheduler takes one per coupon so only a single worker drains a given
// queue at a time, which is what keeps issuance FCFS across instances.
type DistributedLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire returns false without error when another owner holds the lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}

	l.acquired = success
	return success, nil
}

// Extend resets the expiry to ttl from now, provided this instance still owns
// the lock.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return errors.New("lock not acquired")
	}

	result, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return errors.New("lock not held or expired")
	}
	return nil
}

// Release is a no-op if the lock was never acquired, so it is safe to defer
// unconditionally.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return errors.New("lock not held or already released")
	}

	l.acquired = false
	return nil
}
