package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/estate-auth/pkg/database"
)

// RedisOTPGuard implements OTPIssueGuard with SET NX keys in Redis
type RedisOTPGuard struct {
	redis *database.Redis
}

// NewRedisOTPGuard creates a new Redis-backed OTP issuance guard
func NewRedisOTPGuard(redis *database.Redis) *RedisOTPGuard {
	return &RedisOTPGuard{redis: redis}
}

func otpGuardKey(userID string) string {
	return fmt.Sprintf("otp:issue:%s", userID)
}

// Acquire takes the per-user guard for ttl
func (g *RedisOTPGuard) Acquire(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	ok, err := g.redis.Client.SetNX(ctx, otpGuardKey(userID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire otp guard: %w", err)
	}
	return ok, nil
}

// Release drops the guard before its TTL
func (g *RedisOTPGuard) Release(ctx context.Context, userID string) error {
	if err := g.redis.Client.Del(ctx, otpGuardKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to release otp guard: %w", err)
	}
	return nil
}
