package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// windowScript counts a hit and starts the window's expiry on the first one,
// returning the count and the milliseconds left in the window.
var windowScript = redis.NewScript(`
local n = redis.call("incr", KEYS[1])
if n == 1 then
	redis.call("pexpire", KEYS[1], ARGV[1])
end
return {n, redis.call("pttl", KEYS[1])}
`)

// RedisRateLimitMiddleware is a fixed-window limiter shared by every replica,
// keyed like RateLimitMiddleware. Each window allows floor(rps*window)+burst
// requests. While Redis is unreachable requests are limited per replica by an
// in-memory limiter instead of being refused.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	local := RateLimitMiddleware(rps, burst)
	if client == nil {
		return local
	}
	if window < time.Second {
		window = time.Second
	}
	allowed := int64(rps*window.Seconds()) + int64(burst)
	limit := strconv.FormatInt(allowed, 10)

	return func(c *gin.Context) {
		bucket := time.Now().UnixMilli() / window.Milliseconds()
		key := fmt.Sprintf("rl:%s:%d", clientKey(c), bucket)

		res, err := windowScript.Run(c.Request.Context(), client, []string{key}, window.Milliseconds()).Int64Slice()
		if err != nil || len(res) != 2 {
			logger.Warnf("rate limit: redis unavailable, limiting locally: %v", err)
			local(c)
			return
		}
		count, ttl := res[0], time.Duration(res[1])*time.Millisecond

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(allowed-count, 0), 10))
		if count > allowed {
			retry := int64((ttl + time.Second - 1) / time.Second)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
