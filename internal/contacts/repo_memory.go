package contacts

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a simple in-memory contact store for tests and early development.
type MemoryStore struct {
	mu      sync.Mutex
	byPhone map[string]Contact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPhone: map[string]Contact{}}
}

// Put seeds or replaces a contact. Test helper.
func (s *MemoryStore) Put(c Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPhone[c.Phone] = c
}

func (s *MemoryStore) Upsert(ctx context.Context, c Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byPhone[c.Phone]; ok {
		c.ID = prev.ID
		c.Attempts = prev.Attempts
		c.LastAttemptAt = prev.LastAttemptAt
		c.CreatedAt = prev.CreatedAt
	} else {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()
	s.byPhone[c.Phone] = c
	return nil
}

func (s *MemoryStore) GetByPhone(ctx context.Context, phone string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPhone[phone]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, phone string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPhone[phone]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	s.byPhone[phone] = c
	return nil
}

func (s *MemoryStore) RecordAttempt(ctx context.Context, phone string, attempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPhone[phone]
	if !ok {
		return ErrNotFound
	}
	c.Attempts = attempts
	c.LastAttemptAt = &at
	c.UpdatedAt = time.Now()
	s.byPhone[phone] = c
	return nil
}
