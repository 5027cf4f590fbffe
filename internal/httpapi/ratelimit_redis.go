package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRateLimiter is a fixed-window limiter shared by every instance that
// points at the same Redis.
type RedisRateLimiter struct {
	rdb        redis.Scripter
	limit      int
	window     time.Duration
	prefix     string
	trustProxy bool
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, trustProxy bool) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "booking:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, trustProxy: trustProxy}
}

// Middleware lets requests through on Redis errors when failOpen is set and
// answers 503 otherwise.
func (rl *RedisRateLimiter) Middleware(logger zerolog.Logger, failOpen bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.prefix + ":" + clientIP(r, rl.trustProxy)
		count, err := rl.incr(r.Context(), key)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("redis rate limiter error")
			if failOpen {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "rate_limiter_unavailable", "rate limiter unavailable")
			return
		}
		if count > int64(rl.limit) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	ms := rl.window.Milliseconds()
	if ms <= 0 {
		ms = int64(time.Minute / time.Millisecond)
	}
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, ms).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
