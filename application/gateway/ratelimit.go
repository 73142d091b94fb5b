package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// A Limiter decides whether the client identified by key may make
// another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed window counter shared by every gateway
// using the same redis server.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// NewRedisLimiter allows limit requests per window and client.
func NewRedisLimiter(addr string, limit int, window time.Duration) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "keywitness:ratelimit:",
		limit:  limit,
		window: window,
	}, nil
}

// Allow counts one request of key in the current window.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	current, err := allowScript.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return current <= int64(r.limit), nil
}

// Close closes the redis client.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
