package stepauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errTrustBackend = errors.New("trust backend unavailable")

// trustStore records which client addresses have completed step-up for a
// user. Presence in the set skips the challenge; absence means "not yet
// trusted". Stored as a Redis set under trusted_ips_<userID>.
type trustStore struct {
	redis  *redis.Client
	prefix string
}

func newTrustStore(redisClient *redis.Client, prefix string) *trustStore {
	return &trustStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *trustStore) key(userID string) string {
	return s.prefix + "_" + userID
}

// Contains reports whether the address is trusted for the user. An empty
// address is never trusted.
func (s *trustStore) Contains(ctx context.Context, userID, address string) (bool, error) {
	if address == "" {
		return false, nil
	}

	member, err := s.redis.SIsMember(ctx, s.key(userID), address).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errTrustBackend, err)
	}
	return member, nil
}

// Add marks the address trusted and refreshes the set's lifetime. The TTL
// applies to the whole set, so every confirmation extends trust for all of a
// user's addresses rather than tracking per-address expiry.
func (s *trustStore) Add(ctx context.Context, userID, address string, ttl time.Duration) error {
	if address == "" {
		return errors.New("cannot trust an empty address")
	}

	key := s.key(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, address)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errTrustBackend, err)
	}
	return nil
}

// RevokeAll drops every trusted address for the user. Called after a
// password reset so the next professional login re-challenges.
func (s *trustStore) RevokeAll(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errTrustBackend, err)
	}
	return n > 0, nil
}
