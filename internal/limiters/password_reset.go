package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrResetRedisUnavailable = errors.New("reset redis unavailable")

// PasswordResetConfig sets how many requests an identifier may make inside
// a rolling Window.
type PasswordResetConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
	Now         func() time.Time
}

// ResetDecision reports whether a request may proceed. RetryAfter is set
// when it may not.
type ResetDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// KEYS[1] window key. ARGV: now ms, window ms, limit, member.
var rollingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, retry}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// PasswordResetLimiter enforces a rolling window in Redis. The check and the
// insert run in one script so concurrent requests cannot both squeeze in.
type PasswordResetLimiter struct {
	redis  redis.UniversalClient
	config PasswordResetConfig
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sapr"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PasswordResetLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow records a request for fingerprint if the window has room.
func (l *PasswordResetLimiter) Allow(ctx context.Context, fingerprint string) (ResetDecision, error) {
	if l == nil || l.redis == nil {
		return ResetDecision{Allowed: true}, nil
	}

	now := l.config.Now().UnixMilli()
	window := l.config.Window.Milliseconds()

	res, err := rollingWindowScript.Run(ctx, l.redis,
		[]string{l.key(fingerprint)},
		now, window, l.config.MaxRequests, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return ResetDecision{}, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if len(res) != 2 {
		return ResetDecision{}, fmt.Errorf("%w: unexpected script reply", ErrResetRedisUnavailable)
	}

	if res[0] == 1 {
		return ResetDecision{Allowed: true}, nil
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = time.Second
	}
	return ResetDecision{RetryAfter: retry}, nil
}

func (l *PasswordResetLimiter) key(fingerprint string) string {
	return l.config.KeyPrefix + ":" + fingerprint
}
