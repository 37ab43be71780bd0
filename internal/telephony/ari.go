package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options configures the Asterisk REST Interface adapter.
type Options struct {
	// URL is the ARI HTTP base, e.g. http://localhost:8088.
	URL      string
	Username string
	Password string
	// AppName is the Stasis application channels are originated into.
	AppName string
	// Endpoint is the dial string template, e.g. "PJSIP/%s@trunk".
	Endpoint string
	// RecordingDir is where Asterisk stores live recordings.
	RecordingDir string
}

// ARIDriver drives calls over the Asterisk REST Interface: commands go over
// HTTP, channel lifecycle and playback/recording completion arrive on a
// websocket event stream.
type ARIDriver struct {
	opts  Options
	httpc *http.Client
	log   *slog.Logger

	ws     *websocket.Conn
	closed chan struct{}

	mu         sync.Mutex
	sessions   map[string]*ariSession
	playDone   map[string]chan struct{}
	recordDone map[string]chan recordingEvent
}

type recordingEvent struct {
	name            string
	talkingDuration time.Duration
	failed          bool
}

func NewARIDriver(opts Options, log *slog.Logger) (*ARIDriver, error) {
	d := &ARIDriver{
		opts:       opts,
		httpc:      &http.Client{Timeout: 15 * time.Second},
		log:        log,
		closed:     make(chan struct{}),
		sessions:   map[string]*ariSession{},
		playDone:   map[string]chan struct{}{},
		recordDone: map[string]chan recordingEvent{},
	}

	wsURL, err := d.eventsURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("telephony: connecting ARI event stream: %w", err)
	}
	d.ws = conn
	go d.eventLoop()
	return d, nil
}

func (d *ARIDriver) Name() string { return "asterisk-ari" }

func (d *ARIDriver) eventsURL() (string, error) {
	base, err := url.Parse(d.opts.URL)
	if err != nil {
		return "", fmt.Errorf("telephony: bad ARI url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}
	base.Path = "/ari/events"
	q := url.Values{}
	q.Set("app", d.opts.AppName)
	q.Set("api_key", d.opts.Username+":"+d.opts.Password)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (d *ARIDriver) HealthCheck(ctx context.Context) error {
	var info struct {
		System struct {
			Version string `json:"version"`
		} `json:"system"`
	}
	return d.do(ctx, http.MethodGet, "/ari/asterisk/info", nil, &info)
}

// PlaceCall originates a channel into the Stasis application. The returned
// session is live immediately; WaitAnswer blocks until the channel enters the
// application (which happens on answer for originated calls).
func (d *ARIDriver) PlaceCall(ctx context.Context, phone string) (Session, error) {
	channelID := "cw-" + uuid.NewString()
	body := map[string]any{
		"endpoint":  fmt.Sprintf(d.opts.Endpoint, phone),
		"app":       d.opts.AppName,
		"appArgs":   phone,
		"channelId": channelID,
		"timeout":   45,
	}

	sess := &ariSession{
		d:        d,
		id:       channelID,
		phone:    phone,
		answered: make(chan Detect, 1),
		done:     make(chan struct{}),
	}
	d.mu.Lock()
	d.sessions[channelID] = sess
	d.mu.Unlock()

	if err := d.do(ctx, http.MethodPost, "/ari/channels", body, nil); err != nil {
		d.dropSession(channelID)
		return nil, fmt.Errorf("%w: %v", ErrOriginateFailed, err)
	}
	return sess, nil
}

func (d *ARIDriver) Close() error {
	select {
	case <-d.closed:
	default:
		close(d.closed)
	}
	return d.ws.Close()
}

func (d *ARIDriver) dropSession(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, id)
}

// ariEvent is the subset of the ARI event envelope the driver reacts to.
type ariEvent struct {
	Type    string `json:"type"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Args     []string `json:"args"`
	Playback struct {
		ID string `json:"id"`
	} `json:"playback"`
	Recording struct {
		Name            string `json:"name"`
		TalkingDuration int    `json:"talking_duration"`
	} `json:"recording"`
}

func (d *ARIDriver) eventLoop() {
	for {
		_, raw, err := d.ws.ReadMessage()
		if err != nil {
			select {
			case <-d.closed:
			default:
				d.log.Error("ari event stream closed", "error", err)
			}
			d.failAllSessions()
			return
		}
		var ev ariEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			d.log.Warn("unparseable ari event", "error", err)
			continue
		}
		d.handleEvent(ev)
	}
}

func (d *ARIDriver) handleEvent(ev ariEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Type {
	case "StasisStart":
		if sess, ok := d.sessions[ev.Channel.ID]; ok {
			sess.deliverAnswer(detectFromArgs(ev.Args))
		}
	case "StasisEnd", "ChannelDestroyed":
		if sess, ok := d.sessions[ev.Channel.ID]; ok {
			sess.close()
			delete(d.sessions, ev.Channel.ID)
		}
	case "PlaybackFinished":
		if ch, ok := d.playDone[ev.Playback.ID]; ok {
			close(ch)
			delete(d.playDone, ev.Playback.ID)
		}
	case "RecordingFinished", "RecordingFailed":
		if ch, ok := d.recordDone[ev.Recording.Name]; ok {
			ch <- recordingEvent{
				name:            ev.Recording.Name,
				talkingDuration: time.Duration(ev.Recording.TalkingDuration) * time.Second,
				failed:          ev.Type == "RecordingFailed",
			}
			delete(d.recordDone, ev.Recording.Name)
		}
	}
}

// detectFromArgs reads the transport AMD verdict passed as the second app
// argument, when the dialplan provides one.
func detectFromArgs(args []string) Detect {
	if len(args) < 2 {
		return DetectUnknown
	}
	switch strings.ToLower(args[1]) {
	case "human":
		return DetectHuman
	case "machine":
		return DetectMachine
	default:
		return DetectUnknown
	}
}

func (d *ARIDriver) failAllSessions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, sess := range d.sessions {
		sess.close()
		delete(d.sessions, id)
	}
	for id, ch := range d.playDone {
		close(ch)
		delete(d.playDone, id)
	}
	for name, ch := range d.recordDone {
		ch <- recordingEvent{name: name, failed: true}
		delete(d.recordDone, name)
	}
}

func (d *ARIDriver) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.opts.URL+path, rd)
	if err != nil {
		return err
	}
	req.SetBasicAuth(d.opts.Username, d.opts.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telephony: ari %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// ariSession is the live handle on one ARI channel.
type ariSession struct {
	d     *ARIDriver
	id    string
	phone string

	answered chan Detect
	done     chan struct{}
	once     sync.Once
}

func (s *ariSession) ID() string            { return s.id }
func (s *ariSession) Done() <-chan struct{} { return s.done }

func (s *ariSession) close() { s.once.Do(func() { close(s.done) }) }

func (s *ariSession) deliverAnswer(v Detect) {
	select {
	case s.answered <- v:
	default:
	}
}

func (s *ariSession) WaitAnswer(ctx context.Context) (Detect, error) {
	select {
	case v := <-s.answered:
		return v, nil
	case <-s.done:
		return DetectUnknown, ErrChannelGone
	case <-ctx.Done():
		return DetectUnknown, ctx.Err()
	}
}

func (s *ariSession) Play(ctx context.Context, prompt string) (string, error) {
	select {
	case <-s.done:
		return "", ErrChannelGone
	default:
	}

	// The playback id is ours, and the channel is registered before the
	// POST: a PlaybackFinished racing the HTTP response still finds it.
	playbackID := "pb-" + uuid.NewString()
	finished := make(chan struct{})
	s.d.mu.Lock()
	s.d.playDone[playbackID] = finished
	s.d.mu.Unlock()

	body := map[string]any{"media": "sound:" + prompt}
	path := fmt.Sprintf("/ari/channels/%s/play/%s", s.id, playbackID)
	if err := s.d.do(ctx, http.MethodPost, path, body, nil); err != nil {
		s.d.mu.Lock()
		delete(s.d.playDone, playbackID)
		s.d.mu.Unlock()
		return "", err
	}

	select {
	case <-finished:
		return prompt + ".wav", nil
	case <-s.done:
		return "", ErrChannelGone
	case <-ctx.Done():
		s.d.mu.Lock()
		delete(s.d.playDone, playbackID)
		s.d.mu.Unlock()
		return "", ctx.Err()
	}
}

func (s *ariSession) Capture(ctx context.Context, name string, maxListen, silence time.Duration) (Recording, error) {
	select {
	case <-s.done:
		return Recording{}, ErrChannelGone
	default:
	}

	// Asterisk stops the recording on its own after maxSilenceSeconds of
	// trailing silence or maxDurationSeconds overall.
	body := map[string]any{
		"name":               name,
		"format":             "wav",
		"maxDurationSeconds": int(maxListen.Seconds()),
		"maxSilenceSeconds":  int(silence.Seconds()),
		"ifExists":           "overwrite",
		"beep":               false,
	}
	// Registered before the POST so a RecordingFinished racing the HTTP
	// response is not lost.
	finished := make(chan recordingEvent, 1)
	s.d.mu.Lock()
	s.d.recordDone[name] = finished
	s.d.mu.Unlock()

	path := fmt.Sprintf("/ari/channels/%s/record", s.id)
	if err := s.d.do(ctx, http.MethodPost, path, body, nil); err != nil {
		s.d.mu.Lock()
		delete(s.d.recordDone, name)
		s.d.mu.Unlock()
		return Recording{}, err
	}

	select {
	case ev := <-finished:
		if ev.failed {
			return Recording{Silent: true}, nil
		}
		return Recording{
			Path:           filepath.Join(s.d.opts.RecordingDir, name+".wav"),
			SpeechDuration: ev.talkingDuration,
			Silent:         ev.talkingDuration == 0,
		}, nil
	case <-s.done:
		return Recording{}, ErrChannelGone
	case <-ctx.Done():
		s.d.mu.Lock()
		delete(s.d.recordDone, name)
		s.d.mu.Unlock()
		stopPath := fmt.Sprintf("/ari/recordings/live/%s/stop", name)
		_ = s.d.do(context.Background(), http.MethodPost, stopPath, nil, nil)
		return Recording{}, ctx.Err()
	}
}

func (s *ariSession) Hangup(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	path := fmt.Sprintf("/ari/channels/%s", s.id)
	return s.d.do(ctx, http.MethodDelete, path, nil, nil)
}
