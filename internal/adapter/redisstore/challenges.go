package redisstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/domain"

	"github.com/go-redis/redis/v8"
)

const challengePrefix = "challenge:"

// ChallengeStore keeps two-factor challenge records in Redis, each expiring
// with its challenge.
type ChallengeStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ domain.ChallengeRepository = (*ChallengeStore)(nil)

// NewChallengeStore creates a challenge store on client.
func NewChallengeStore(client redis.UniversalClient) *ChallengeStore {
	return &ChallengeStore{client: client, now: time.Now}
}

// SaveChallenge stores c until its expiry.
func (s *ChallengeStore) SaveChallenge(ctx context.Context, c *domain.Challenge) error {
	ttl := c.Expires.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("redisstore: encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengePrefix+c.ID, buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set challenge: %w", err)
	}
	return nil
}

// GetChallenge returns nil, nil when the record is gone.
func (s *ChallengeStore) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	data, err := s.client.Get(ctx, challengePrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get challenge: %w", err)
	}
	var c domain.Challenge
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
		return nil, fmt.Errorf("redisstore: decode challenge: %w", err)
	}
	return &c, nil
}

// DeleteChallenge reports whether this call removed the record.
func (s *ChallengeStore) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, challengePrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: delete challenge: %w", err)
	}
	return n > 0, nil
}
