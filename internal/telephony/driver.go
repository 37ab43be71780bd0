package telephony

import (
	"context"
	"errors"
	"time"
)

// Driver is the provider-agnostic interface used by the dispatcher and
// session controllers.
//
// Rules:
// - No provider API calls outside telephony adapters.
// - Keep request/response types provider-agnostic.
type Driver interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall originates an outbound call and returns once the channel
	// has entered the application, before the far end answers.
	PlaceCall(ctx context.Context, phone string) (Session, error)

	Close() error
}

// Session is the live handle on one channel. All blocking methods return
// ErrChannelGone once the far end has hung up or the channel was destroyed.
type Session interface {
	// ID is the provider channel identifier.
	ID() string

	// WaitAnswer blocks until the call is answered and reports the
	// transport-level answering machine verdict.
	WaitAnswer(ctx context.Context) (Detect, error)

	// Play plays a named prompt to completion and returns the path of the
	// audio file that was played.
	Play(ctx context.Context, prompt string) (string, error)

	// Capture records counterpart speech into name. It stops after maxListen,
	// or earlier once silence of the given threshold follows observed speech
	// (or no speech is observed at all for the threshold).
	Capture(ctx context.Context, name string, maxListen, silence time.Duration) (Recording, error)

	Hangup(ctx context.Context) error

	// Done is closed when the channel leaves the application for any reason.
	Done() <-chan struct{}
}

// Detect is the transport-level answering machine verdict delivered with the
// answer event.
type Detect string

const (
	DetectHuman   Detect = "human"
	DetectMachine Detect = "machine"
	DetectUnknown Detect = "unknown"
)

// Recording describes one finished capture window.
type Recording struct {
	// Path of the stored audio file, empty when nothing was captured.
	Path string `json:"path"`

	// SpeechDuration is the provider's talking-time measure for the window.
	SpeechDuration time.Duration `json:"speech_duration"`

	// Silent is set when no speech was observed during the whole window.
	Silent bool `json:"silent"`
}

var (
	// ErrChannelGone reports that the far end hung up or the provider
	// destroyed the channel.
	ErrChannelGone = errors.New("telephony: channel gone")

	// ErrOriginateFailed reports that the provider rejected or could not
	// complete call origination.
	ErrOriginateFailed = errors.New("telephony: originate failed")
)
