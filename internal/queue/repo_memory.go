package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore mirrors PGStore semantics for tests and early development.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Item
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Item{}, now: time.Now}
}

// SetClock overrides the store clock; tests use it to age attempts.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryStore) Enqueue(ctx context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.CreatedAt = s.now()
	it.UpdatedAt = it.CreatedAt
	s.rows[it.ID] = it
	return nil
}

func (s *MemoryStore) EnqueueBatch(ctx context.Context, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, it := range items {
		it.CreatedAt = now
		it.UpdatedAt = now
		s.rows[it.ID] = it
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.rows[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (s *MemoryStore) NextPending(ctx context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	calling := map[[2]string]bool{}
	for _, it := range s.rows {
		if it.Status == StatusCalling {
			calling[[2]string{it.CampaignID, it.Phone}] = true
		}
	}

	var items []Item
	for _, it := range s.rows {
		if it.Status != StatusPending {
			continue
		}
		if calling[[2]string{it.CampaignID, it.Phone}] {
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) MarkCalling(ctx context.Context, id, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.rows[id]
	if !ok || it.Status != StatusPending {
		return ErrNotClaimable
	}
	now := s.now()
	it.Status = StatusCalling
	it.Attempts++
	it.CallID = callID
	it.LastAttemptAt = &now
	it.UpdatedAt = now
	s.rows[id] = it
	return nil
}

func (s *MemoryStore) CountCalling(ctx context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.rows {
		if it.Status == StatusCalling && (campaignID == "" || it.CampaignID == campaignID) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id string, qualified bool, finalLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.rows[id]
	if !ok || it.Status != StatusCalling {
		return ErrNotClaimable
	}
	it.Status = StatusCompleted
	it.Qualified = qualified
	it.FinalLabel = finalLabel
	it.CallID = ""
	it.UpdatedAt = s.now()
	s.rows[id] = it
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, id, message string, retryable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.rows[id]
	if !ok || it.Status != StatusCalling {
		return ErrNotClaimable
	}
	if retryable && it.Attempts < it.MaxAttempts {
		it.Status = StatusPending
	} else {
		it.Status = StatusFailed
	}
	it.ErrorMessage = message
	it.CallID = ""
	it.UpdatedAt = s.now()
	s.rows[id] = it
	return nil
}

func (s *MemoryStore) ReclaimStuck(ctx context.Context, cutoffSeconds int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-time.Duration(cutoffSeconds) * time.Second)

	var reclaimed []Item
	for id, it := range s.rows {
		if it.Status != StatusCalling || it.LastAttemptAt == nil || !it.LastAttemptAt.Before(cutoff) {
			continue
		}
		if it.Attempts < it.MaxAttempts {
			it.Status = StatusPending
		} else {
			it.Status = StatusFailed
			it.ErrorMessage = "call attempt timed out"
		}
		it.CallID = ""
		it.UpdatedAt = s.now()
		s.rows[id] = it
		reclaimed = append(reclaimed, it)
	}
	return reclaimed, nil
}

func (s *MemoryStore) ListUnreconciled(ctx context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []Item
	for _, it := range s.rows {
		if it.Status.Terminal() && !it.Reconciled {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.Before(items[j].UpdatedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) MarkReconciled(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.rows[id]
	if !ok || !it.Status.Terminal() || it.Reconciled {
		return false, nil
	}
	it.Reconciled = true
	it.UpdatedAt = s.now()
	s.rows[id] = it
	return true, nil
}

func (s *MemoryStore) FailPending(ctx context.Context, campaignID, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, it := range s.rows {
		if it.CampaignID != campaignID || it.Status != StatusPending {
			continue
		}
		it.Status = StatusFailed
		it.ErrorMessage = message
		it.UpdatedAt = s.now()
		s.rows[id] = it
		n++
	}
	return n, nil
}
