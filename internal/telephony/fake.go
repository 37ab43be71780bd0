package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeDriver is a scripted in-memory driver for tests. Each phone number maps
// to a script describing how the far end behaves; unscripted numbers answer
// as human and stay silent.
type FakeDriver struct {
	mu      sync.Mutex
	scripts map[string]*FakeScript
	placed  []string
	counter int

	// PlaceErr, when set, fails every origination.
	PlaceErr error
}

// FakeScript describes the far end of one fake call.
type FakeScript struct {
	// Answer is the transport verdict delivered on answer.
	Answer    Detect
	AnswerErr error

	// Captures are consumed one per capture window, in order. When
	// exhausted, further windows are silent.
	Captures []Recording

	// HangupAfterPlays ends the channel after that many prompts have
	// played (0 means never).
	HangupAfterPlays int
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{scripts: map[string]*FakeScript{}}
}

func (d *FakeDriver) Script(phone string, s FakeScript) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[phone] = &s
}

// Placed returns the phone numbers dialed so far, in order.
func (d *FakeDriver) Placed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.placed...)
}

func (d *FakeDriver) Name() string { return "fake" }

func (d *FakeDriver) HealthCheck(ctx context.Context) error { return nil }

func (d *FakeDriver) Close() error { return nil }

func (d *FakeDriver) PlaceCall(ctx context.Context, phone string) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PlaceErr != nil {
		return nil, d.PlaceErr
	}
	d.counter++
	d.placed = append(d.placed, phone)

	script := d.scripts[phone]
	if script == nil {
		script = &FakeScript{Answer: DetectHuman}
	}
	return &FakeSession{
		id:     fmt.Sprintf("fake-%d", d.counter),
		script: script,
		done:   make(chan struct{}),
	}, nil
}

// FakeSession replays its script. Safe for use from a single goroutine, like
// a real session.
type FakeSession struct {
	id     string
	script *FakeScript
	done   chan struct{}
	once   sync.Once

	plays    int
	captures int

	// Played records the prompts played, in order.
	Played []string
}

func (s *FakeSession) ID() string            { return s.id }
func (s *FakeSession) Done() <-chan struct{} { return s.done }

func (s *FakeSession) WaitAnswer(ctx context.Context) (Detect, error) {
	if s.script.AnswerErr != nil {
		s.close()
		return DetectUnknown, s.script.AnswerErr
	}
	if ctx.Err() != nil {
		return DetectUnknown, ctx.Err()
	}
	return s.script.Answer, nil
}

func (s *FakeSession) Play(ctx context.Context, prompt string) (string, error) {
	select {
	case <-s.done:
		return "", ErrChannelGone
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	s.plays++
	s.Played = append(s.Played, prompt)
	if s.script.HangupAfterPlays > 0 && s.plays >= s.script.HangupAfterPlays {
		s.close()
	}
	return prompt + ".wav", nil
}

func (s *FakeSession) Capture(ctx context.Context, name string, maxListen, silence time.Duration) (Recording, error) {
	select {
	case <-s.done:
		return Recording{}, ErrChannelGone
	case <-ctx.Done():
		return Recording{}, ctx.Err()
	default:
	}
	if s.captures >= len(s.script.Captures) {
		s.captures++
		return Recording{Silent: true}, nil
	}
	rec := s.script.Captures[s.captures]
	s.captures++
	return rec, nil
}

func (s *FakeSession) Hangup(ctx context.Context) error {
	s.close()
	return nil
}

func (s *FakeSession) close() { s.once.Do(func() { close(s.done) }) }
