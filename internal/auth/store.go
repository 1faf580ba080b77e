// internal/auth/store.go
// Short-lived auth state kept in Redis: password reset tokens and
// failed login counters

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrResetTokenNotFound is returned for unknown or expired reset tokens
var ErrResetTokenNotFound = errors.New("reset token not found")

// TokenStore holds state that expires on its own
type TokenStore interface {
	SaveResetToken(ctx context.Context, token string, userID int64, ttl time.Duration) error
	ResetTokenUser(ctx context.Context, token string) (int64, error)
	ConsumeResetToken(ctx context.Context, token string) (int64, error)
	IncrFailedLogins(ctx context.Context, username string, window time.Duration) (int64, error)
	FailedLogins(ctx context.Context, username string) (int64, error)
	ClearFailedLogins(ctx context.Context, username string) error
	Ping(ctx context.Context) error
}

// redisTokenStore implements TokenStore using Redis
type redisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a Redis backed TokenStore
func NewRedisTokenStore(client *redis.Client) TokenStore {
	return &redisTokenStore{client: client}
}

func resetKey(token string) string {
	return fmt.Sprintf("password_reset:%s", token)
}

func failedLoginKey(username string) string {
	return fmt.Sprintf("failed_login:%s", strings.ToLower(username))
}

// SaveResetToken maps a reset token to its user for ttl
func (s *redisTokenStore) SaveResetToken(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, resetKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	return nil
}

// ResetTokenUser returns the user of a reset token and leaves it in place
func (s *redisTokenStore) ResetTokenUser(ctx context.Context, token string) (int64, error) {
	return parseResetToken(s.client.Get(ctx, resetKey(token)).Result())
}

// ConsumeResetToken returns the user of a reset token and deletes it
func (s *redisTokenStore) ConsumeResetToken(ctx context.Context, token string) (int64, error) {
	return parseResetToken(s.client.GetDel(ctx, resetKey(token)).Result())
}

func parseResetToken(value string, err error) (int64, error) {
	if errors.Is(err, redis.Nil) {
		return 0, ErrResetTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read reset token: %w", err)
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ErrResetTokenNotFound
	}

	return userID, nil
}

// IncrFailedLogins counts a failed attempt. The window starts at the first failure.
func (s *redisTokenStore) IncrFailedLogins(ctx context.Context, username string, window time.Duration) (int64, error) {
	key := failedLoginKey(username)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to record login attempt: %w", err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, fmt.Errorf("failed to set login attempt window: %w", err)
		}
	}

	return count, nil
}

// FailedLogins returns the current failure count
func (s *redisTokenStore) FailedLogins(ctx context.Context, username string) (int64, error) {
	count, err := s.client.Get(ctx, failedLoginKey(username)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read login attempts: %w", err)
	}
	return count, nil
}

// ClearFailedLogins resets the failure count after a successful login
func (s *redisTokenStore) ClearFailedLogins(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, failedLoginKey(username)).Err(); err != nil {
		return fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *redisTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
