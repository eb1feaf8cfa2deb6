package policystore

import (
	"context"
	"sync"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// MemoryStore keeps the policy in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	policy *scheduler.Policy
}

// NewMemoryStore returns a store that reports the default policy until one is saved.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadPolicy returns a copy of the saved policy, or the default policy.
func (s *MemoryStore) LoadPolicy(ctx context.Context) (scheduler.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.policy == nil {
		return scheduler.DefaultPolicy(), nil
	}
	return s.policy.Clone(), nil
}

// SavePolicy replaces the stored policy.
func (s *MemoryStore) SavePolicy(ctx context.Context, policy scheduler.Policy) error {
	saved := policy.Clone()
	s.mu.Lock()
	s.policy = &saved
	s.mu.Unlock()
	return nil
}
