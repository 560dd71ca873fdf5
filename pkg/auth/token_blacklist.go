package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "token:blacklist:"

// Revocations answers whether an access token was revoked before expiry
type Revocations interface {
	IsRevoked(ctx context.Context, claims *Claims) (bool, error)
}

// TokenBlacklist manages revoked tokens using Redis
type TokenBlacklist struct {
	redis *redis.Client
}

var _ Revocations = (*TokenBlacklist)(nil)

// NewTokenBlacklist creates a new token blacklist service
func NewTokenBlacklist(redisClient *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{redis: redisClient}
}

// Blacklist revokes a token id until its expiration
func (b *TokenBlacklist) Blacklist(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	return b.redis.Set(ctx, blacklistPrefix+tokenID, "1", ttl).Err()
}

// BlacklistUserTokens revokes every token of a user issued before now
func (b *TokenBlacklist) BlacklistUserTokens(ctx context.Context, userID string, ttl time.Duration) error {
	key := blacklistPrefix + "user:" + userID
	return b.redis.Set(ctx, key, time.Now().Unix(), ttl).Err()
}

// IsRevoked checks the token id and the user wide cutoff
func (b *TokenBlacklist) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	if claims.ID != "" {
		exists, err := b.redis.Exists(ctx, blacklistPrefix+claims.ID).Result()
		if err != nil {
			return false, fmt.Errorf("failed to check blacklist: %w", err)
		}
		if exists > 0 {
			return true, nil
		}
	}

	val, err := b.redis.Get(ctx, blacklistPrefix+"user:"+claims.UserID.String()).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user blacklist: %w", err)
	}
	if claims.IssuedAt == nil {
		return true, nil
	}
	return claims.IssuedAt.Unix() < val, nil
}
