package campaigns

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory campaign store for tests and early development.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Campaign
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Campaign{}}
}

func (s *MemoryStore) Create(ctx context.Context, c Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.rows[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if c.State != from {
		return ErrBadTransition
	}
	c.State = to
	if to == StateActive && c.StartedAt == nil {
		now := time.Now()
		c.StartedAt = &now
	}
	if to == StateCompleted {
		now := time.Now()
		c.CompletedAt = &now
	}
	c.UpdatedAt = time.Now()
	s.rows[id] = c
	return nil
}

func (s *MemoryStore) AddTotal(ctx context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.TotalCalls += n
	c.UpdatedAt = time.Now()
	s.rows[id] = c
	return nil
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, id string, d Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if d.Succeeded {
		c.SucceededCalls++
	}
	if d.Failed {
		c.FailedCalls++
	}
	if d.Positive {
		c.PositiveCount++
	}
	if d.Negative {
		c.NegativeCount++
	}
	c.UpdatedAt = time.Now()
	s.rows[id] = c
	return nil
}
