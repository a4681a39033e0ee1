package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// All limiter keys live under this prefix so counters are easy to find
// and flush in redis.
const keyPrefix = "archon:ratelimit"

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result contains the outcome of a rate limit check
type Result struct {
	Allowed           bool  // Whether the request is allowed
	CurrentCount      int64 // Current count in the window
	Limit             int64 // The limit that was checked
	RetryAfterSeconds int64 // Seconds until the window resets (0 if allowed)
}

// RateLimiter enforces fixed-window limits in redis. Each check is a
// single Lua round trip, so increment and expiry are atomic.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	log    Logger
}

// NewRateLimiter creates a new rate limiter with the embedded Lua script
func NewRateLimiter(redisClient *redis.Client, log Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

// CheckGlobalLimit charges the service-wide counter
func (r *RateLimiter) CheckGlobalLimit(ctx context.Context, limit int64) (*Result, error) {
	return r.check(ctx, key("global"), limit, tierWindowSeconds)
}

// CheckUserLimit charges one user's counter
func (r *RateLimiter) CheckUserLimit(ctx context.Context, username string, limit int64, windowSec int) (*Result, error) {
	return r.check(ctx, key("user", username), limit, windowSec)
}

// CheckTieredLimit charges the user's budget for the given workflow
// complexity tier. Each tier has its own counter so simple workflows
// are never starved by heavy ones.
func (r *RateLimiter) CheckTieredLimit(ctx context.Context, username string, tier WorkflowTier) (*Result, error) {
	return r.check(ctx, key("user", username, "tier", string(tier)), tier.Limit(), tierWindowSeconds)
}

func key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}

func (r *RateLimiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := r.script.Run(ctx, r.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		r.log.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	result, err := parseScriptReply(raw)
	if err != nil {
		return nil, err
	}

	if !result.Allowed {
		r.log.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds)
	} else {
		r.log.Debug("rate limit check passed",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit)
	}

	return result, nil
}

// parseScriptReply decodes the {allowed, count, limit, retry_after}
// reply array.
func parseScriptReply(raw interface{}) (*Result, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script reply: %T", raw)
	}

	nums := make([]int64, len(arr))
	for i, v := range arr {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("rate limit script reply element %d is %T, want int64", i, v)
		}
		nums[i] = n
	}

	return &Result{
		Allowed:           nums[0] == 1,
		CurrentCount:      nums[1],
		Limit:             nums[2],
		RetryAfterSeconds: nums[3],
	}, nil
}
