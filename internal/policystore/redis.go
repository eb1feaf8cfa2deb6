package policystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// DefaultRedisKey is the key the policy is stored under when none is configured.
const DefaultRedisKey = "scheduler:availability-policy"

// RedisStore shares the policy between processes through a Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a store using key on client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// LoadPolicy returns the stored policy, or the default when the key is unset.
func (s *RedisStore) LoadPolicy(ctx context.Context) (scheduler.Policy, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return scheduler.DefaultPolicy(), nil
	}
	if err != nil {
		return scheduler.Policy{}, fmt.Errorf("policystore: get %s: %w", s.key, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return scheduler.Policy{}, fmt.Errorf("policystore: unmarshal %s: %w", s.key, err)
	}
	return doc.Policy()
}

// SavePolicy stores the policy without expiry.
func (s *RedisStore) SavePolicy(ctx context.Context, policy scheduler.Policy) error {
	data, err := json.Marshal(FromPolicy(policy))
	if err != nil {
		return fmt.Errorf("policystore: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("policystore: set %s: %w", s.key, err)
	}
	return nil
}
