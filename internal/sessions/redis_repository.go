package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxExtendRetries = 5

// RedisRepository implements Repository using Redis as the backing store.
// Sessions are stored as JSON under key "session:<token>" with TTL = expiresAt - now.
// The TTL only reclaims space; expiry is decided by the Service clock.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(token string) string {
	return r.prefix + token
}

func ttlUntil(expiresAt time.Time) time.Duration {
	exp := time.Until(expiresAt)
	if exp <= 0 {
		// ensure a minimal TTL so Redis won't store expired sessions forever
		exp = time.Second
	}
	return exp
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.key(s.Token), b, ttlUntil(s.ExpiresAt)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("session token collision")
	}
	return nil
}

func (r *RedisRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Extend rewrites the record inside a WATCH transaction so concurrent
// refreshes of the same token cannot move expiresAt backwards.
func (r *RedisRepository) Extend(ctx context.Context, token string, expiresAt, refreshedAt time.Time) (bool, error) {
	key := r.key(token)
	var changed bool
	txf := func(tx *redis.Tx) error {
		changed = false
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var s Session
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if !s.ExpiresAt.Before(expiresAt) {
			return nil
		}
		s.ExpiresAt = expiresAt
		s.LastRefreshedAt = refreshedAt
		nb, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, ttlUntil(expiresAt))
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}

	for i := 0; i < maxExtendRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return changed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, err
	}
	return false, fmt.Errorf("session extend: gave up after %d conflicting updates", maxExtendRetries)
}

func (r *RedisRepository) DeleteByToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}
