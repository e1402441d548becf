package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations records access tokens that were revoked before their expiry,
// and which access tokens each session has minted. A nil *Revocations or one
// without a client is a no-op.
type Revocations struct {
	client        *redis.Client
	prefix        string
	sessionPrefix string
}

func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{client: client, prefix: "revoked:access:", sessionPrefix: "access:session:"}
}

func (r *Revocations) enabled() bool { return r != nil && r.client != nil }

// Revoke marks the token id as revoked for ttl, normally the time left until
// the token's own expiry.
func (r *Revocations) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if !r.enabled() || ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+id, "1", ttl).Err()
}

// IsRevoked returns true when the token id is in the revocation list.
func (r *Revocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	if !r.enabled() {
		return false, nil
	}
	exists, err := r.client.Exists(ctx, r.prefix+id).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// the raw session token never appears in a key
func (r *Revocations) sessionKey(sessionToken string) string {
	sum := sha256.Sum256([]byte(sessionToken))
	return r.sessionPrefix + hex.EncodeToString(sum[:])
}

// Track records that the access token id was issued from sessionToken. The
// set lives as long as the newest token, ttl.
func (r *Revocations) Track(ctx context.Context, sessionToken, id string, ttl time.Duration) error {
	if !r.enabled() || ttl <= 0 {
		return nil
	}
	key := r.sessionKey(sessionToken)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, id)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// RevokeSession revokes every access token tracked for sessionToken for ttl,
// the longest lifetime an access token can have.
func (r *Revocations) RevokeSession(ctx context.Context, sessionToken string, ttl time.Duration) error {
	if !r.enabled() {
		return nil
	}
	key := r.sessionKey(sessionToken)
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.Revoke(ctx, id, ttl); err != nil {
			return err
		}
	}
	return r.client.Del(ctx, key).Err()
}
