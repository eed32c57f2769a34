package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"haven/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Redis     *redis.Client // nil selects the in-process limiter
	Requests  int
	Window    time.Duration
	KeyPrefix string
	SkipPaths []string
}

type RateLimiter struct {
	config RateLimitConfig
	local  *utils.KeyedWindowLimiter
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	if config.Requests <= 0 {
		config.Requests = 100
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	rl := &RateLimiter{config: config}
	if config.Redis == nil {
		rl.local = utils.NewKeyedWindowLimiter(config.Requests, config.Window)
	}
	return rl
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := rl.getKey(c)
		now := time.Now()

		allowed, remaining, err := rl.check(c.Request.Context(), key, now)
		if err != nil {
			logrus.Errorf("Rate limit check failed: %v", err)
			// Allow request to proceed on error
			c.Next()
			return
		}

		resetTime := now.Add(rl.config.Window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
			logrus.WithFields(logrus.Fields{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Rate limit exceeded")
			utils.RateLimitResponse(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) check(ctx context.Context, key string, now time.Time) (bool, int, error) {
	if rl.local != nil {
		allowed, remaining := rl.local.Allow(key, now)
		return allowed, remaining, nil
	}
	return rl.checkRedis(ctx, key, now)
}

// checkRedis is a sliding window log over a sorted set.
func (rl *RateLimiter) checkRedis(ctx context.Context, key string, now time.Time) (bool, int, error) {
	window := rl.config.Window
	member := fmt.Sprintf("%d", now.UnixNano())

	pipe := rl.config.Redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-window).UnixNano()))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, key, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	current := count.Val()
	remaining := rl.config.Requests - int(current) - 1
	if remaining < 0 {
		remaining = 0
	}

	allowed := current < int64(rl.config.Requests)
	if !allowed {
		rl.config.Redis.ZRem(ctx, key, member)
	}
	return allowed, remaining, nil
}

// getKey limits per device when authenticated and per client IP otherwise.
func (rl *RateLimiter) getKey(c *gin.Context) string {
	if scope, ok := GetScope(c); ok {
		return fmt.Sprintf("%s:scope:%s", rl.config.KeyPrefix, scope)
	}
	return fmt.Sprintf("%s:ip:%s", rl.config.KeyPrefix, c.ClientIP())
}

func (rl *RateLimiter) shouldSkipPath(path string) bool {
	for _, skipPath := range rl.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// RateLimitMiddleware creates the API limiter for the environment.
func RateLimitMiddleware(redisClient *redis.Client, requests int, window time.Duration, environment string) gin.HandlerFunc {
	if environment == "development" {
		requests *= 100
	}
	return NewRateLimiter(RateLimitConfig{
		Redis:     redisClient,
		Requests:  requests,
		Window:    window,
		KeyPrefix: "rate_limit",
		SkipPaths: []string{"/health", "/ws"},
	}).Middleware()
}

// AuthRateLimit guards token issuance.
func AuthRateLimit(redisClient *redis.Client) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{
		Redis:     redisClient,
		Requests:  10,
		Window:    time.Minute,
		KeyPrefix: "auth_rate_limit",
	}).Middleware()
}
