package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callwave/internal/assembly"
	"callwave/internal/campaigns"
	"callwave/internal/classify"
	"callwave/internal/contacts"
	"callwave/internal/interactions"
	"callwave/internal/queue"
	"callwave/internal/scenario"
	"callwave/internal/session"
	"callwave/internal/telephony"
	"callwave/internal/transcribe"
)

// Options tunes the dispatcher loop.
type Options struct {
	// MaxConcurrentCalls is the global active-call ceiling.
	MaxConcurrentCalls int
	// LaunchSpacing is the minimum delay between two originations.
	LaunchSpacing time.Duration
	// PollInterval is the loop period.
	PollInterval time.Duration
	// StuckCallTimeout reclaims calling items whose attempt is older.
	StuckCallTimeout time.Duration

	AnswerTimeout time.Duration
	Gate          session.Gate
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentCalls <= 0 {
		o.MaxConcurrentCalls = 8
	}
	if o.LaunchSpacing <= 0 {
		o.LaunchSpacing = 2 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.StuckCallTimeout <= 0 {
		o.StuckCallTimeout = 120 * time.Second
	}
	return o
}

// Artifacts produces post-call artifacts from a consumed trace. Optional.
type Artifacts interface {
	Produce(ctx context.Context, info assembly.CallInfo, segs []session.TrackedSegment, promptTexts map[string]string)
}

// Deps are the dispatcher's collaborators.
type Deps struct {
	Queue        queue.Store
	Campaigns    campaigns.Store
	Contacts     contacts.Store
	Scenarios    *scenario.Library
	Driver       telephony.Driver
	Transcriber  transcribe.Transcriber
	Classifier   classify.Classifier
	Interactions interactions.Store
	Slots        SlotLimiter
	Artifacts    Artifacts
	Log          *slog.Logger
}

// Dispatcher is the orchestrator's heart: a single control loop that
// reclaims stuck attempts, reconciles finished items into campaign counters,
// and admits pending items into new session controllers while respecting the
// concurrency ceiling and launch spacing.
type Dispatcher struct {
	opts Options
	d    Deps

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options, deps Deps) *Dispatcher {
	opts = opts.withDefaults()
	if deps.Slots == nil {
		deps.Slots = NewLocalSlots(opts.MaxConcurrentCalls)
	}
	return &Dispatcher{
		opts:   opts,
		d:      deps,
		active: map[string]context.CancelFunc{},
	}
}

// Run loops until ctx is canceled, then waits for in-flight sessions to
// finish. Active sessions get canceled on shutdown and unwind through their
// normal finalization path.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.d.Log.Info("dispatcher started",
		"max_concurrent", d.opts.MaxConcurrentCalls,
		"poll_interval", d.opts.PollInterval,
	)
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		d.Tick(ctx)
		select {
		case <-ctx.Done():
			d.cancelAll()
			d.wg.Wait()
			d.d.Log.Info("dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one dispatcher pass: reclaim, reconcile, admit. Exported so
// tests can drive the loop deterministically.
func (d *Dispatcher) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	d.reclaim(ctx)
	d.reconcile(ctx)
	d.admit(ctx)
}

func (d *Dispatcher) cancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cancel := range d.active {
		cancel()
	}
}

// reclaim returns stuck calling items to pending (or fails them when
// attempts are exhausted). A live in-process session for a reclaimed item is
// canceled; its late finalization then hits a conditional update that no
// longer matches and becomes a no-op.
func (d *Dispatcher) reclaim(ctx context.Context) {
	items, err := d.d.Queue.ReclaimStuck(ctx, int64(d.opts.StuckCallTimeout.Seconds()))
	if err != nil {
		d.d.Log.Error("reclaim pass failed", "error", err)
		return
	}
	for _, it := range items {
		d.d.Log.Warn("reclaimed stuck call",
			"item_id", it.ID, "phone", it.Phone, "attempts", it.Attempts, "status", it.Status)
		d.mu.Lock()
		if cancel, ok := d.active[it.ID]; ok {
			cancel()
		}
		d.mu.Unlock()
	}
}

// reconcile folds terminal items into campaign counters, exactly once per
// item: the reconciled marker is flipped by a conditional update and the
// delta is applied only when this process won that flip.
func (d *Dispatcher) reconcile(ctx context.Context) {
	items, err := d.d.Queue.ListUnreconciled(ctx, 100)
	if err != nil {
		d.d.Log.Error("reconcile pass failed", "error", err)
		return
	}
	for _, it := range items {
		applied, err := d.d.Queue.MarkReconciled(ctx, it.ID)
		if err != nil {
			d.d.Log.Error("marking item reconciled failed", "item_id", it.ID, "error", err)
			continue
		}
		if !applied {
			continue
		}
		completed := it.Status == queue.StatusCompleted
		delta := campaigns.Delta{
			Succeeded: completed,
			Failed:    !completed,
			Positive:  it.Qualified,
			Negative:  completed && !it.Qualified,
		}
		if err := d.d.Campaigns.ApplyDelta(ctx, it.CampaignID, delta); err != nil {
			d.d.Log.Error("applying campaign delta failed",
				"item_id", it.ID, "campaign_id", it.CampaignID, "error", err)
		}
	}
}

// admit launches sessions for pending items up to the ceiling, most urgent
// first, honoring campaign state and launch spacing.
func (d *Dispatcher) admit(ctx context.Context) {
	d.mu.Lock()
	capacity := d.opts.MaxConcurrentCalls - len(d.active)
	d.mu.Unlock()
	if capacity <= 0 {
		return
	}

	items, err := d.d.Queue.NextPending(ctx, capacity)
	if err != nil {
		d.d.Log.Error("fetching pending items failed", "error", err)
		return
	}

	states := map[string]campaigns.State{}
	dropped := map[string]bool{}
	// No two items for the same (campaign, phone) may be calling at once.
	// NextPending excludes phones with a calling row, but cannot see
	// duplicates inside its own batch.
	claimed := map[[2]string]bool{}
	launched := 0
	for _, it := range items {
		if ctx.Err() != nil {
			return
		}

		key := [2]string{it.CampaignID, it.Phone}
		if claimed[key] {
			d.d.Log.Debug("deferring duplicate pending item",
				"item_id", it.ID, "campaign_id", it.CampaignID, "phone", it.Phone)
			continue
		}

		state, ok := states[it.CampaignID]
		if !ok {
			c, err := d.d.Campaigns.Get(ctx, it.CampaignID)
			if err != nil {
				d.d.Log.Error("loading campaign failed", "campaign_id", it.CampaignID, "error", err)
				continue
			}
			state = c.State
			states[it.CampaignID] = state
		}
		admit, drop := campaigns.Admission(state)
		if drop {
			if !dropped[it.CampaignID] {
				dropped[it.CampaignID] = true
				n, err := d.d.Queue.FailPending(ctx, it.CampaignID, "campaign stopped")
				if err != nil {
					d.d.Log.Error("dropping stopped campaign items failed",
						"campaign_id", it.CampaignID, "error", err)
				} else if n > 0 {
					d.d.Log.Info("dropped pending items of stopped campaign",
						"campaign_id", it.CampaignID, "count", n)
				}
			}
			continue
		}
		if !admit {
			// pending or paused: no new admissions, items stay queued.
			continue
		}

		ok, err = d.d.Slots.Acquire(ctx)
		if err != nil {
			d.d.Log.Error("slot acquisition failed", "error", err)
			return
		}
		if !ok {
			return
		}

		if launched > 0 {
			select {
			case <-time.After(d.opts.LaunchSpacing):
			case <-ctx.Done():
				d.releaseSlot()
				return
			}
		}
		claimed[key] = true
		d.launch(ctx, it)
		launched++
	}
}

func (d *Dispatcher) releaseSlot() {
	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.d.Slots.Release(rctx); err != nil {
		d.d.Log.Error("slot release failed", "error", err)
	}
}

// launch claims the item, originates the call, and hands it to a session
// controller goroutine. Every early exit releases the slot.
func (d *Dispatcher) launch(ctx context.Context, it queue.Item) {
	def, err := d.d.Scenarios.Get(it.Scenario)
	if err != nil {
		d.releaseSlot()
		if claimErr := d.d.Queue.MarkCalling(ctx, it.ID, ""); claimErr == nil {
			_ = d.d.Queue.Fail(ctx, it.ID, "unknown scenario "+it.Scenario, false)
		}
		d.d.Log.Error("item references unknown scenario",
			"item_id", it.ID, "scenario", it.Scenario)
		return
	}

	sess, err := d.d.Driver.PlaceCall(ctx, it.Phone)
	if err != nil {
		d.releaseSlot()
		// Consume an attempt so an undialable number cannot loop forever.
		if claimErr := d.d.Queue.MarkCalling(ctx, it.ID, ""); claimErr == nil {
			_ = d.d.Queue.Fail(ctx, it.ID, "originate failed: "+err.Error(), true)
		}
		d.d.Log.Error("origination failed", "item_id", it.ID, "phone", it.Phone, "error", err)
		return
	}

	if err := d.d.Queue.MarkCalling(ctx, it.ID, sess.ID()); err != nil {
		// Lost the claim to a concurrent dispatcher.
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = sess.Hangup(hctx)
		cancel()
		d.releaseSlot()
		if !errors.Is(err, queue.ErrNotClaimable) {
			d.d.Log.Error("claiming item failed", "item_id", it.ID, "error", err)
		}
		return
	}

	callCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.active[it.ID] = cancel
	d.mu.Unlock()

	log := d.d.Log.With("item_id", it.ID, "call_id", sess.ID(), "phone", it.Phone)
	log.Info("call launched", "campaign_id", it.CampaignID, "attempt", it.Attempts+1)

	ctl := session.New(session.Config{
		CampaignID:    it.CampaignID,
		Phone:         it.Phone,
		Definition:    def,
		AnswerTimeout: d.opts.AnswerTimeout,
		Gate:          d.opts.Gate,
	}, sess, d.d.Transcriber, d.d.Classifier, d.d.Interactions, log)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.releaseSlot()
		defer func() {
			cancel()
			d.mu.Lock()
			delete(d.active, it.ID)
			d.mu.Unlock()
		}()

		out := ctl.Run(callCtx)
		d.finalize(it, out, ctl.Tracker(), def)
	}()
}

// finalize applies a session outcome to the queue item and contact, then
// produces artifacts. It runs on a fresh context: shutdown must not lose
// bookkeeping for a call that already happened.
func (d *Dispatcher) finalize(it queue.Item, out session.Outcome, tracker *session.Tracker, def scenario.Definition) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if out.Completed {
		err = d.d.Queue.Complete(ctx, it.ID, out.Qualified, string(out.FinalLabel))
	} else {
		err = d.d.Queue.Fail(ctx, it.ID, out.Reason, out.Retryable)
	}
	if errors.Is(err, queue.ErrNotClaimable) {
		// The item was reclaimed while the call was running; its fate is
		// already decided.
		d.d.Log.Warn("late finalization ignored", "item_id", it.ID, "call_id", out.CallID)
	} else if err != nil {
		d.d.Log.Error("finalizing queue item failed", "item_id", it.ID, "error", err)
	}

	if err := d.d.Contacts.RecordAttempt(ctx, it.Phone, it.Attempts+1, out.EndedAt); err != nil && !errors.Is(err, contacts.ErrNotFound) {
		d.d.Log.Error("recording contact attempt failed", "phone", it.Phone, "error", err)
	}
	if out.ContactStatus != "" {
		if err := d.d.Contacts.SetStatus(ctx, it.Phone, out.ContactStatus); err != nil && !errors.Is(err, contacts.ErrNotFound) {
			d.d.Log.Error("updating contact status failed", "phone", it.Phone, "error", err)
		}
	}

	d.d.Log.Info("call finished",
		"item_id", it.ID,
		"call_id", out.CallID,
		"completed", out.Completed,
		"qualified", out.Qualified,
		"contact_status", out.ContactStatus,
		"reason", out.Reason,
		"duration", out.EndedAt.Sub(out.StartedAt),
	)

	if d.d.Artifacts == nil {
		return
	}
	segs := tracker.Consume()
	if len(segs) == 0 {
		return
	}
	promptTexts := make(map[string]string, len(def.Steps))
	for id, step := range def.Steps {
		promptTexts[id] = step.PromptText
	}
	d.d.Artifacts.Produce(ctx, assembly.CallInfo{
		CallID:     out.CallID,
		CampaignID: it.CampaignID,
		Phone:      it.Phone,
		Scenario:   def.Name,
		StartedAt:  out.StartedAt,
		EndedAt:    out.EndedAt,
		FinalLabel: string(out.FinalLabel),
		Qualified:  out.Qualified,
	}, segs, promptTexts)
}

// ActiveCalls reports the number of sessions currently running in-process.
func (d *Dispatcher) ActiveCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}
