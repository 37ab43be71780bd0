package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seed(t *testing.T, s *MemoryStore, it Item) Item {
	t.Helper()
	if it.Status == "" {
		it.Status = StatusPending
	}
	if it.MaxAttempts == 0 {
		it.MaxAttempts = 3
	}
	if err := s.Enqueue(context.Background(), it); err != nil {
		t.Fatalf("enqueue %s: %v", it.ID, err)
	}
	got, err := s.Get(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("get %s: %v", it.ID, err)
	}
	return got
}

func TestEnqueueBatch(t *testing.T) {
	s := NewMemoryStore()
	items := []Item{
		{ID: "a", CampaignID: "c1", Phone: "+33600000001", Status: StatusPending, MaxAttempts: 3},
		{ID: "b", CampaignID: "c1", Phone: "+33600000002", Status: StatusPending, MaxAttempts: 3, Priority: 5},
	}
	if err := s.EnqueueBatch(context.Background(), items); err != nil {
		t.Fatalf("enqueue batch: %v", err)
	}
	got, err := s.NextPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Fatalf("unexpected items: %+v", got)
	}
}

func TestNextPending_OrderAndExclusion(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	seed(t, s, Item{ID: "a", CampaignID: "c1", Phone: "+33600000001", Priority: 0})
	seed(t, s, Item{ID: "b", CampaignID: "c1", Phone: "+33600000002", Priority: 5})
	seed(t, s, Item{ID: "c", CampaignID: "c1", Phone: "+33600000003", Priority: 5})

	items, err := s.NextPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if len(items) != 3 || items[0].ID != "b" || items[1].ID != "c" || items[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", items)
	}

	// A calling item shadows same campaign+phone pending duplicates.
	if err := s.MarkCalling(context.Background(), "b", "chan-1"); err != nil {
		t.Fatalf("mark calling: %v", err)
	}
	seed(t, s, Item{ID: "b2", CampaignID: "c1", Phone: "+33600000002", Priority: 9})

	items, _ = s.NextPending(context.Background(), 10)
	for _, it := range items {
		if it.ID == "b2" {
			t.Fatalf("duplicate phone admitted while calling: %+v", items)
		}
	}
}

func TestMarkCalling_SingleClaim(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, Item{ID: "a", CampaignID: "c1", Phone: "+33600000001"})

	if err := s.MarkCalling(context.Background(), "a", "chan-1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.MarkCalling(context.Background(), "a", "chan-2"); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("second claim: expected ErrNotClaimable, got %v", err)
	}

	it, _ := s.Get(context.Background(), "a")
	if it.Attempts != 1 || it.CallID != "chan-1" || it.LastAttemptAt == nil {
		t.Fatalf("claim bookkeeping: %+v", it)
	}
}

func TestFail_RetryableReturnsToPending(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, Item{ID: "a", CampaignID: "c1", Phone: "+33600000001", MaxAttempts: 2})

	_ = s.MarkCalling(context.Background(), "a", "chan-1")
	if err := s.Fail(context.Background(), "a", "no answer", true); err != nil {
		t.Fatalf("fail: %v", err)
	}
	it, _ := s.Get(context.Background(), "a")
	if it.Status != StatusPending || it.Attempts != 1 {
		t.Fatalf("expected retry, got %+v", it)
	}

	// Second retryable failure exhausts max_attempts.
	_ = s.MarkCalling(context.Background(), "a", "chan-2")
	if err := s.Fail(context.Background(), "a", "no answer", true); err != nil {
		t.Fatalf("fail: %v", err)
	}
	it, _ = s.Get(context.Background(), "a")
	if it.Status != StatusFailed || it.ErrorMessage != "no answer" {
		t.Fatalf("expected terminal failure, got %+v", it)
	}
}

func TestFail_NonRetryableIsTerminal(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, Item{ID: "a", CampaignID: "c1", Phone: "+33600000001", MaxAttempts: 3})

	_ = s.MarkCalling(context.Background(), "a", "chan-1")
	if err := s.Fail(context.Background(), "a", "invalid number", false); err != nil {
		t.Fatalf("fail: %v", err)
	}
	it, _ := s.Get(context.Background(), "a")
	if it.Status != StatusFailed || it.Attempts != 1 {
		t.Fatalf("expected terminal failure on first attempt, got %+v", it)
	}
}

func TestReclaimStuck(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	seed(t, s, Item{ID: "stuck", CampaignID: "c1", Phone: "+33600000001", MaxAttempts: 3})
	seed(t, s, Item{ID: "spent", CampaignID: "c1", Phone: "+33600000002", MaxAttempts: 1})
	seed(t, s, Item{ID: "fresh", CampaignID: "c1", Phone: "+33600000003", MaxAttempts: 3})

	_ = s.MarkCalling(context.Background(), "stuck", "chan-1")
	_ = s.MarkCalling(context.Background(), "spent", "chan-2")

	// Age the first two attempts past the cutoff, then start a fresh one.
	now = now.Add(5 * time.Minute)
	_ = s.MarkCalling(context.Background(), "fresh", "chan-3")

	reclaimed, err := s.ReclaimStuck(context.Background(), 120)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 2 {
		t.Fatalf("expected 2 reclaimed, got %+v", reclaimed)
	}

	stuck, _ := s.Get(context.Background(), "stuck")
	if stuck.Status != StatusPending {
		t.Fatalf("stuck with attempts left should return to pending: %+v", stuck)
	}
	spent, _ := s.Get(context.Background(), "spent")
	if spent.Status != StatusFailed {
		t.Fatalf("stuck with no attempts left should fail: %+v", spent)
	}
	fresh, _ := s.Get(context.Background(), "fresh")
	if fresh.Status != StatusCalling {
		t.Fatalf("fresh attempt must not be reclaimed: %+v", fresh)
	}
}

func TestMarkReconciled_ExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, Item{ID: "a", CampaignID: "c1", Phone: "+33600000001"})
	_ = s.MarkCalling(context.Background(), "a", "chan-1")
	_ = s.Complete(context.Background(), "a", true, "affirmative")

	it, _ := s.Get(context.Background(), "a")
	if !it.Qualified || it.FinalLabel != "affirmative" {
		t.Fatalf("result not recorded: %+v", it)
	}

	applied, err := s.MarkReconciled(context.Background(), "a")
	if err != nil || !applied {
		t.Fatalf("first reconcile: applied=%v err=%v", applied, err)
	}
	applied, err = s.MarkReconciled(context.Background(), "a")
	if err != nil || applied {
		t.Fatalf("second reconcile must be a no-op: applied=%v err=%v", applied, err)
	}

	// Non-terminal items are never reconcilable.
	seed(t, s, Item{ID: "b", CampaignID: "c1", Phone: "+33600000002"})
	applied, _ = s.MarkReconciled(context.Background(), "b")
	if applied {
		t.Fatal("pending item must not reconcile")
	}
}

func TestFailPending(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, Item{ID: "a", CampaignID: "c1", Phone: "+33600000001"})
	seed(t, s, Item{ID: "b", CampaignID: "c1", Phone: "+33600000002"})
	seed(t, s, Item{ID: "other", CampaignID: "c2", Phone: "+33600000003"})
	_ = s.MarkCalling(context.Background(), "b", "chan-1")

	n, err := s.FailPending(context.Background(), "c1", "campaign stopped")
	if err != nil || n != 1 {
		t.Fatalf("fail pending: n=%d err=%v", n, err)
	}
	a, _ := s.Get(context.Background(), "a")
	if a.Status != StatusFailed || a.ErrorMessage != "campaign stopped" {
		t.Fatalf("unexpected item: %+v", a)
	}
	b, _ := s.Get(context.Background(), "b")
	if b.Status != StatusCalling {
		t.Fatalf("calling item must not be touched: %+v", b)
	}
	other, _ := s.Get(context.Background(), "other")
	if other.Status != StatusPending {
		t.Fatalf("other campaign must not be touched: %+v", other)
	}
}
