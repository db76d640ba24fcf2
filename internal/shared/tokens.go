package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore issues and resolves opaque bearer tokens backed by Redis.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a new token bound to an owner id.
func (s *TokenStore) Issue(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner id required")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.client.Set(ctx, s.key(token), ownerID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the owner id for a token, refreshing its lifetime.
func (s *TokenStore) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	ownerID, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	return ownerID, nil
}

// Revoke deletes a token.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.client.Del(ctx, s.key(token)).Err()
}

// TTL exposes the configured token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

func (s *TokenStore) key(token string) string {
	return "token:" + token
}
