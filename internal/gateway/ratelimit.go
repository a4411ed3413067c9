// internal/gateway/ratelimit.go
package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimiter is a distributed fixed-window counter. Every subject gets one
// Redis key per window; the first increment arms the expiry.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRateLimiter(client redis.UniversalClient, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "gateway:rate_limit"
	}
	return &RateLimiter{client: client, prefix: prefix}
}

// Consume counts one request for the subject and reports whether it is still
// within the limit, plus the Retry-After seconds when it is not.
func (r *RateLimiter) Consume(ctx context.Context, subject string, limit int, window time.Duration) (allowed bool, retryAfter int, err error) {
	if limit <= 0 || window <= 0 {
		return true, 0, nil
	}

	key := fmt.Sprintf("%s:%s", r.prefix, subject)
	raw, err := fixedWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected limiter ttl type: %T", values[1])
	}

	if count <= int64(limit) {
		return true, 0, nil
	}

	retry := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retry < 1 {
		retry = 1
	}
	return false, retry, nil
}
