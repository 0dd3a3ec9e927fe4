package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/tuition-api/pkg/cache"
)

// ErrOTPNotFound is returned when no live code exists for a phone.
var ErrOTPNotFound = errors.New("otp not found")

// OTPRepository keeps hashed one-time codes in Redis.
type OTPRepository struct {
	client *redis.Client
}

// NewOTPRepository constructs an OTP repository.
func NewOTPRepository(client *redis.Client) *OTPRepository {
	return &OTPRepository{client: client}
}

func otpKey(phone string) string      { return cache.Key("otp", phone) }
func attemptsKey(phone string) string { return cache.Key("otp", phone, "attempts") }
func cooldownKey(phone string) string { return cache.Key("otp", phone, "cooldown") }

// AcquireCooldown claims the resend window. It reports false while a previous
// code is still inside its cooldown.
func (r *OTPRepository) AcquireCooldown(ctx context.Context, phone string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, cooldownKey(phone), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("otp cooldown: %w", err)
	}
	return ok, nil
}

// ReleaseCooldown drops the resend window, used when delivery failed.
func (r *OTPRepository) ReleaseCooldown(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, cooldownKey(phone)).Err(); err != nil {
		return fmt.Errorf("otp release cooldown: %w", err)
	}
	return nil
}

// Save stores the code hash and resets the attempt counter.
func (r *OTPRepository) Save(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, otpKey(phone), codeHash, ttl)
	pipe.Del(ctx, attemptsKey(phone))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("otp save: %w", err)
	}
	return nil
}

// Get returns the stored code hash.
func (r *OTPRepository) Get(ctx context.Context, phone string) (string, error) {
	hash, err := r.client.Get(ctx, otpKey(phone)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrOTPNotFound
		}
		return "", fmt.Errorf("otp get: %w", err)
	}
	return hash, nil
}

// IncrementAttempts counts a verification attempt. The counter expires with the code.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, phone string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, attemptsKey(phone))
	pipe.Expire(ctx, attemptsKey(phone), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("otp attempts: %w", err)
	}
	return incr.Val(), nil
}

// Delete removes the code and its counter.
func (r *OTPRepository) Delete(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, otpKey(phone), attemptsKey(phone)).Err(); err != nil {
		return fmt.Errorf("otp delete: %w", err)
	}
	return nil
}
