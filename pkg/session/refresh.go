package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidRefreshToken means the token is unknown or expired.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReplay means an already rotated token was presented;
	// the whole family is revoked.
	ErrRefreshTokenReplay = errors.New("refresh token replay detected")
)

// RefreshStore keeps refresh token families in Redis. Each rotation
// issues a new token in the same family; presenting a superseded token
// kills the family.
//
// Keys: <p>:rt:<hash> -> family id, <p>:rf:<family> -> {user, current},
// <p>:ru:<user> -> set of families.
type RefreshStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRefreshStore builds a store whose tokens live for ttl.
func NewRefreshStore(client *redis.Client, prefix string, ttl time.Duration) *RefreshStore {
	if prefix == "" {
		prefix = "donormatch"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RefreshStore{client: client, prefix: prefix, ttl: ttl}
}

// TTL is the refresh token lifetime.
func (s *RefreshStore) TTL() time.Duration { return s.ttl }

// Issue starts a new family for userID.
func (s *RefreshStore) Issue(userID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	token := randomID(32)
	family := randomID(16)
	hash := tokenHash(token)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.tokenKey(hash), family, s.ttl)
		p.HSet(ctx, s.familyKey(family), "user", userID, "current", hash)
		p.Expire(ctx, s.familyKey(family), s.ttl)
		p.SAdd(ctx, s.userKey(userID), family)
		p.Expire(ctx, s.userKey(userID), s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// Rotate exchanges token for a new one and returns the owning user.
func (s *RefreshStore) Rotate(token string) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	hash := tokenHash(token)
	family, err := s.client.Get(ctx, s.tokenKey(hash)).Result()
	if err == redis.Nil {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", err
	}

	var (
		userID   string
		newToken string
		replay   bool
	)
	famKey := s.familyKey(family)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, famKey).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return ErrInvalidRefreshToken
		}
		userID = vals["user"]
		if vals["current"] != hash {
			replay = true
			return nil
		}
		newToken = randomID(32)
		newHash := tokenHash(newToken)
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.tokenKey(newHash), family, s.ttl)
			// the old token stays known so a replay can be detected
			p.Expire(ctx, s.tokenKey(hash), s.ttl)
			p.HSet(ctx, famKey, "current", newHash)
			p.Expire(ctx, famKey, s.ttl)
			return nil
		})
		return err
	}, famKey)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// lost a race with a concurrent rotation of the same token
			return "", "", ErrRefreshTokenReplay
		}
		return "", "", err
	}
	if replay {
		if err := s.revokeFamily(ctx, family, userID); err != nil {
			return "", "", err
		}
		return "", "", ErrRefreshTokenReplay
	}
	return userID, newToken, nil
}

// Revoke kills the family token belongs to. Unknown tokens are ignored.
func (s *RefreshStore) Revoke(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	family, err := s.client.Get(ctx, s.tokenKey(tokenHash(token))).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	userID, err := s.client.HGet(ctx, s.familyKey(family), "user").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	return s.revokeFamily(ctx, family, userID)
}

// RevokeUser kills every family of userID.
func (s *RefreshStore) RevokeUser(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	families, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return err
	}
	for _, family := range families {
		if err := s.revokeFamily(ctx, family, userID); err != nil {
			return err
		}
	}
	return nil
}

// revokeFamily drops the family record; its token keys then resolve to
// nothing and are treated as invalid until they expire.
func (s *RefreshStore) revokeFamily(ctx context.Context, family, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.familyKey(family))
		if userID != "" {
			p.SRem(ctx, s.userKey(userID), family)
		}
		return nil
	})
	return err
}

func (s *RefreshStore) tokenKey(hash string) string    { return s.prefix + ":rt:" + hash }
func (s *RefreshStore) familyKey(family string) string { return s.prefix + ":rf:" + family }
func (s *RefreshStore) userKey(userID string) string   { return s.prefix + ":ru:" + userID }

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
