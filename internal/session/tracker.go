package session

import (
	"sync"
	"time"
)

// Side tells which party produced a segment.
type Side string

const (
	SidePrompt      Side = "bot"
	SideCounterpart Side = "client"
)

// TrackedSegment is one entry of a call's audio trace: a prompt that was
// played or a counterpart utterance that was captured, in call order.
type TrackedSegment struct {
	Side      Side      `json:"side"`
	AudioRef  string    `json:"audio_ref"`
	Text      string    `json:"text,omitempty"`
	Label     string    `json:"label,omitempty"`
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker is the strictly append-only trace of one call. The assembly step
// consumes it exactly once after the call ends; appends after consumption are
// rejected so a late playback can never corrupt an assembled artifact.
type Tracker struct {
	mu       sync.Mutex
	segments []TrackedSegment
	consumed bool
	now      func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) AppendPrompt(step, audioRef string) bool {
	return t.append(TrackedSegment{Side: SidePrompt, Step: step, AudioRef: audioRef})
}

func (t *Tracker) AppendCounterpart(step, audioRef, text, label string) bool {
	return t.append(TrackedSegment{
		Side:     SideCounterpart,
		Step:     step,
		AudioRef: audioRef,
		Text:     text,
		Label:    label,
	})
}

func (t *Tracker) append(seg TrackedSegment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed {
		return false
	}
	seg.Timestamp = t.now()
	t.segments = append(t.segments, seg)
	return true
}

// Consume returns the ordered trace and seals the tracker. A second call
// returns nil.
func (t *Tracker) Consume() []TrackedSegment {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed {
		return nil
	}
	t.consumed = true
	out := t.segments
	t.segments = nil
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments)
}
