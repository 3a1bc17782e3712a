package session

import (
	"context"
	"sync"
	"time"

	"github.com/wobblecap/wobblecap/pkg/observability"
)

const backendMemory = "memory"

// MemoryStore keeps challenges in process memory.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
	now        func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]Challenge),
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(ctx, id, false)
}

func (s *MemoryStore) Take(ctx context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(ctx, id, true)
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(ctx context.Context, id string, consume bool) (*Challenge, error) {
	c, ok := s.challenges[id]
	if !ok {
		observability.Store().OnChallengeMiss(ctx, backendMemory)
		return nil, ErrNotFound
	}
	if c.expiredAt(s.now()) {
		delete(s.challenges, id)
		observability.Store().OnChallengeMiss(ctx, backendMemory)
		return nil, ErrExpired
	}
	if consume {
		delete(s.challenges, id)
	}
	observability.Store().OnChallengeHit(ctx, backendMemory)
	return &c, nil
}

func (s *MemoryStore) Set(ctx context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkSet(c, s.now()); err != nil {
		return err
	}
	s.challenges[c.ID] = *c
	observability.Store().OnChallengeSet(ctx, backendMemory)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, id)
	return nil
}

func (s *MemoryStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, c := range s.challenges {
		if c.expiredAt(now) {
			delete(s.challenges, id)
		}
	}
	return nil
}

// Len returns the number of stored challenges, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
