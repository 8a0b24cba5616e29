package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"unitrack/api/internal/httpx"
)

// RateLimit enforces a sliding window per client IP, backed by a redis
// sorted set of request timestamps. A redis outage fails open: dropping
// requests because the limiter is down would be worse than not limiting.
func RateLimit(client *redis.Client, limit int, window time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		now := time.Now()
		key := "ratelimit:" + c.ClientIP()
		windowStart := now.Add(-window).UnixNano()

		pipe := client.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
		countCmd := pipe.ZCard(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		count := countCmd.Val()
		c.Writer.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))

		if count >= int64(limit) {
			retryAfter := window
			if oldest, err := client.ZRangeWithScores(ctx, key, 0, 0).Result(); err == nil && len(oldest) > 0 {
				elapsed := now.Sub(time.Unix(0, int64(oldest[0].Score)))
				if remaining := window - elapsed; remaining > 0 {
					retryAfter = remaining
				}
			}

			c.Writer.Header().Set("X-RateLimit-Remaining", "0")
			c.Writer.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			httpx.AbortError(c, http.StatusTooManyRequests, httpx.CodeRateLimited,
				fmt.Sprintf("too many requests, retry in %s", retryAfter.Round(time.Second)))
			return
		}

		pipe = client.TxPipeline()
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
		pipe.Expire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Msg("rate limiter record failed")
		}

		c.Writer.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-count-1, 10))
		c.Next()
	}
}
