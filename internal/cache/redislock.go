package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisLock implements RefreshLock on top of a single Redis instance,
// using one atomic SET NX PX inside a Lua script, the same scripted
// check-and-set a Lua-based rate limiter uses, but a plain lock instead
// of a sliding window counter.
type redisLock struct {
	client *redis.Client
}

// NewRedisLock wraps an existing Redis client as a RefreshLock. Passing
// a nil client disables the debounce optimization entirely — every
// replica refreshes independently.
func NewRedisLock(client *redis.Client) RefreshLock {
	if client == nil {
		return nil
	}
	return &redisLock{client: client}
}

// lockScript atomically acquires a named lock if and only if nobody
// else currently holds it, setting it to expire after ttl regardless.
const lockScript = `
	local key = KEYS[1]
	local ttl_ms = tonumber(ARGV[1])
	if redis.call('SET', key, '1', 'NX', 'PX', ttl_ms) then
		return 1
	end
	return 0
`

// TryLock implements RefreshLock.
func (l *redisLock) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := "rp-notify:cache-refresh:" + name
	result, err := l.client.Eval(ctx, lockScript, []string{key}, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("cache refresh lock eval failed: %w", err)
	}
	return result == 1, nil
}
