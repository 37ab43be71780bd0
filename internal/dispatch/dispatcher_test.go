package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"callwave/internal/campaigns"
	"callwave/internal/classify"
	"callwave/internal/contacts"
	"callwave/internal/interactions"
	"callwave/internal/queue"
	"callwave/internal/scenario"
	"callwave/internal/telephony"
	"callwave/internal/transcribe"
)

type rig struct {
	d         *Dispatcher
	queue     *queue.MemoryStore
	campaigns *campaigns.MemoryStore
	contacts  *contacts.MemoryStore
	driver    *telephony.FakeDriver
	texts     map[string]string
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	lib, err := scenario.Load(t.TempDir())
	if err != nil {
		t.Fatalf("loading scenarios: %v", err)
	}
	r := &rig{
		queue:     queue.NewMemoryStore(),
		campaigns: campaigns.NewMemoryStore(),
		contacts:  contacts.NewMemoryStore(),
		driver:    telephony.NewFakeDriver(),
		texts:     map[string]string{},
	}
	if opts.LaunchSpacing == 0 {
		opts.LaunchSpacing = time.Millisecond
	}
	r.d = New(opts, Deps{
		Queue:        r.queue,
		Campaigns:    r.campaigns,
		Contacts:     r.contacts,
		Scenarios:    lib,
		Driver:       r.driver,
		Transcriber:  &transcribe.Fake{Texts: r.texts},
		Classifier:   classify.NewKeywordClassifier(),
		Interactions: interactions.NewMemoryStore(),
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return r
}

func (r *rig) activeCampaign(t *testing.T, id string) {
	t.Helper()
	if err := r.campaigns.Create(context.Background(), campaigns.Campaign{
		ID: id, Name: id, Scenario: "production", State: campaigns.StatePending,
	}); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if err := r.campaigns.Transition(context.Background(), id, campaigns.StatePending, campaigns.StateActive); err != nil {
		t.Fatalf("activate campaign: %v", err)
	}
}

func (r *rig) enqueue(t *testing.T, it queue.Item) {
	t.Helper()
	if it.Status == "" {
		it.Status = queue.StatusPending
	}
	if it.MaxAttempts == 0 {
		it.MaxAttempts = 3
	}
	if it.Scenario == "" {
		it.Scenario = "production"
	}
	if err := r.queue.Enqueue(context.Background(), it); err != nil {
		t.Fatalf("enqueue %s: %v", it.ID, err)
	}
}

func (r *rig) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.d.ActiveCalls() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions still active: %d", r.d.ActiveCalls())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTick_QualifiedCallEndToEnd(t *testing.T) {
	r := newRig(t, Options{})
	r.activeCampaign(t, "c1")
	r.contacts.Put(contacts.Contact{Phone: "+33600000001", Status: contacts.StatusQueued})
	r.enqueue(t, queue.Item{ID: "a", CampaignID: "c1", Phone: "+33600000001"})

	// The far end answers every question positively and picks a callback slot.
	recs := []string{"rec-hello", "rec-q1", "rec-q2", "rec-q3", "rec-leads", "rec-confirm"}
	var captures []telephony.Recording
	for _, p := range recs {
		captures = append(captures, telephony.Recording{Path: p, SpeechDuration: time.Second})
	}
	r.driver.Script("+33600000001", telephony.FakeScript{Answer: telephony.DetectHuman, Captures: captures})
	r.texts["rec-hello"] = "oui je vous écoute"
	r.texts["rec-q1"] = "j'ai quarante ans"
	r.texts["rec-q2"] = "oui tout à fait"
	r.texts["rec-q3"] = "d'accord"
	r.texts["rec-leads"] = "oui bien sûr"
	r.texts["rec-confirm"] = "plutôt le matin"

	r.d.Tick(context.Background())
	r.waitIdle(t)

	it, err := r.queue.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.Status != queue.StatusCompleted || !it.Qualified {
		t.Fatalf("expected qualified completion, got %+v", it)
	}
	c, _ := r.contacts.GetByPhone(context.Background(), "+33600000001")
	if c.Status != contacts.StatusLeads || c.Attempts != 1 {
		t.Fatalf("contact not promoted to lead: %+v", c)
	}

	// The next pass reconciles the item into campaign counters, once.
	r.d.Tick(context.Background())
	r.d.Tick(context.Background())
	camp, _ := r.campaigns.Get(context.Background(), "c1")
	if camp.SucceededCalls != 1 || camp.PositiveCount != 1 || camp.FailedCalls != 0 {
		t.Fatalf("counters applied wrong: %+v", camp)
	}
	it, _ = r.queue.Get(context.Background(), "a")
	if !it.Reconciled {
		t.Fatalf("item not reconciled: %+v", it)
	}
}

func TestTick_UnansweredCallRetries(t *testing.T) {
	r := newRig(t, Options{})
	r.activeCampaign(t, "c1")
	r.contacts.Put(contacts.Contact{Phone: "+33600000002", Status: contacts.StatusQueued})
	r.enqueue(t, queue.Item{ID: "a", CampaignID: "c1", Phone: "+33600000002"})
	r.driver.Script("+33600000002", telephony.FakeScript{AnswerErr: errors.New("no answer")})

	r.d.Tick(context.Background())
	r.waitIdle(t)

	it, _ := r.queue.Get(context.Background(), "a")
	if it.Status != queue.StatusPending || it.Attempts != 1 {
		t.Fatalf("expected retryable failure back to pending, got %+v", it)
	}
	c, _ := r.contacts.GetByPhone(context.Background(), "+33600000002")
	if c.Status != contacts.StatusNoAnswer || c.Attempts != 1 {
		t.Fatalf("unexpected contact: %+v", c)
	}
}

func TestTick_PausedCampaignAdmitsNothing(t *testing.T) {
	r := newRig(t, Options{})
	r.activeCampaign(t, "c1")
	if err := r.campaigns.Transition(context.Background(), "c1", campaigns.StateActive, campaigns.StatePaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	r.enqueue(t, queue.Item{ID: "a", CampaignID: "c1", Phone: "+33600000003"})

	r.d.Tick(context.Background())
	r.waitIdle(t)

	if placed := r.driver.Placed(); len(placed) != 0 {
		t.Fatalf("paused campaign must not dial: %v", placed)
	}
	it, _ := r.queue.Get(context.Background(), "a")
	if it.Status != queue.StatusPending {
		t.Fatalf("item must stay queued while paused: %+v", it)
	}
}

func TestTick_StoppedCampaignDropsPending(t *testing.T) {
	r := newRig(t, Options{})
	r.activeCampaign(t, "c1")
	if err := r.campaigns.Transition(context.Background(), "c1", campaigns.StateActive, campaigns.StateCompleted); err != nil {
		t.Fatalf("stop: %v", err)
	}
	r.enqueue(t, queue.Item{ID: "a", CampaignID: "c1", Phone: "+33600000004"})
	r.enqueue(t, queue.Item{ID: "b", CampaignID: "c1", Phone: "+33600000005"})

	r.d.Tick(context.Background())
	r.waitIdle(t)

	if placed := r.driver.Placed(); len(placed) != 0 {
		t.Fatalf("stopped campaign must not dial: %v", placed)
	}
	for _, id := range []string{"a", "b"} {
		it, _ := r.queue.Get(context.Background(), id)
		if it.Status != queue.StatusFailed || it.ErrorMessage != "campaign stopped" {
			t.Fatalf("item %s not dropped: %+v", id, it)
		}
	}
}

func TestTick_OriginateFailureConsumesAttempt(t *testing.T) {
	r := newRig(t, Options{})
	r.activeCampaign(t, "c1")
	r.enqueue(t, queue.Item{ID: "a", CampaignID: "c1", Phone: "+33600000006", MaxAttempts: 1})
	r.driver.PlaceErr = errors.New("endpoint unavailable")

	r.d.Tick(context.Background())
	r.waitIdle(t)

	it, _ := r.queue.Get(context.Background(), "a")
	if it.Status != queue.StatusFailed || it.Attempts != 1 {
		t.Fatalf("undialable number must burn its attempt: %+v", it)
	}
}

func TestTick_ReclaimsStuckItems(t *testing.T) {
	r := newRig(t, Options{StuckCallTimeout: 2 * time.Minute})
	r.activeCampaign(t, "c1")

	past := time.Now().Add(-10 * time.Minute)
	r.queue.SetClock(func() time.Time { return past })
	r.enqueue(t, queue.Item{ID: "a", CampaignID: "c1", Phone: "+33600000007"})
	if err := r.queue.MarkCalling(context.Background(), "a", "chan-lost"); err != nil {
		t.Fatalf("mark calling: %v", err)
	}
	r.queue.SetClock(time.Now)

	// The reclaimed item becomes admissible again within the same pass.
	r.driver.Script("+33600000007", telephony.FakeScript{AnswerErr: errors.New("no answer")})
	r.d.Tick(context.Background())
	r.waitIdle(t)

	it, _ := r.queue.Get(context.Background(), "a")
	if it.Status != queue.StatusPending || it.Attempts != 2 {
		t.Fatalf("expected reclaimed and redialed item, got %+v", it)
	}
	if placed := r.driver.Placed(); len(placed) != 1 {
		t.Fatalf("expected one redial, got %v", placed)
	}
}

// blockingDriver parks every session until release closes, so tests can hold
// calls open and observe the ceiling.
type blockingDriver struct {
	release chan struct{}
	mu      sync.Mutex
	placed  int
}

func (d *blockingDriver) Name() string { return "blocking" }

func (d *blockingDriver) HealthCheck(ctx context.Context) error { return nil }

func (d *blockingDriver) Close() error { return nil }

func (d *blockingDriver) PlaceCall(ctx context.Context, phone string) (telephony.Session, error) {
	d.mu.Lock()
	d.placed++
	id := d.placed
	d.mu.Unlock()
	return &blockingSession{id: id, release: d.release, done: make(chan struct{})}, nil
}

func (d *blockingDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.placed
}

type blockingSession struct {
	id      int
	release chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *blockingSession) ID() string { return fmt.Sprintf("block-%d", s.id) }

func (s *blockingSession) Done() <-chan struct{} { return s.done }

func (s *blockingSession) WaitAnswer(ctx context.Context) (telephony.Detect, error) {
	select {
	case <-s.release:
		return telephony.DetectUnknown, errors.New("released")
	case <-ctx.Done():
		return telephony.DetectUnknown, ctx.Err()
	}
}

func (s *blockingSession) Play(ctx context.Context, prompt string) (string, error) {
	return "", telephony.ErrChannelGone
}

func (s *blockingSession) Capture(ctx context.Context, name string, maxListen, silence time.Duration) (telephony.Recording, error) {
	return telephony.Recording{}, telephony.ErrChannelGone
}

func (s *blockingSession) Hangup(ctx context.Context) error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func TestTick_DuplicatePhoneAdmitsOne(t *testing.T) {
	r := newRig(t, Options{AnswerTimeout: 5 * time.Second})
	driver := &blockingDriver{release: make(chan struct{})}
	r.d.d.Driver = driver
	r.activeCampaign(t, "c1")

	// Two pending items for the same (campaign, phone) in one batch.
	r.enqueue(t, queue.Item{ID: "a", CampaignID: "c1", Phone: "+33600000020"})
	r.enqueue(t, queue.Item{ID: "b", CampaignID: "c1", Phone: "+33600000020"})

	r.d.Tick(context.Background())
	if got := driver.count(); got != 1 {
		t.Fatalf("expected one origination for the duplicate pair, got %d", got)
	}
	if n, _ := r.queue.CountCalling(context.Background(), ""); n != 1 {
		t.Fatalf("expected one calling item, got %d", n)
	}

	// The deferred duplicate stays pending while its sibling is on the call.
	r.d.Tick(context.Background())
	if got := driver.count(); got != 1 {
		t.Fatalf("duplicate must not dial while sibling is calling: %d", got)
	}

	close(driver.release)
	r.waitIdle(t)
}

func TestTick_ConcurrencyCeiling(t *testing.T) {
	r := newRig(t, Options{MaxConcurrentCalls: 2, AnswerTimeout: 5 * time.Second})
	driver := &blockingDriver{release: make(chan struct{})}
	r.d.d.Driver = driver
	r.activeCampaign(t, "c1")
	for i, id := range []string{"a", "b", "c", "d"} {
		r.enqueue(t, queue.Item{ID: id, CampaignID: "c1", Phone: fmt.Sprintf("+33600000%03d", 10+i)})
	}

	r.d.Tick(context.Background())
	if got := r.d.ActiveCalls(); got != 2 {
		t.Fatalf("ceiling not enforced: %d active", got)
	}
	if got := driver.count(); got != 2 {
		t.Fatalf("expected 2 originations, got %d", got)
	}

	// A second pass with the ceiling full admits nothing.
	r.d.Tick(context.Background())
	if got := driver.count(); got != 2 {
		t.Fatalf("full ceiling must not dial: %d", got)
	}

	close(driver.release)
	r.waitIdle(t)

	r.d.Tick(context.Background())
	r.waitIdle(t)
	if got := driver.count(); got != 4 {
		t.Fatalf("freed slots must admit the rest: %d", got)
	}
}
