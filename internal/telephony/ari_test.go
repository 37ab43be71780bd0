package telephony

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ariTestServer emulates the slice of ARI the driver touches. Every
// completion event is pushed on the websocket before the HTTP response is
// written, the worst ordering Asterisk can produce.
type ariTestServer struct {
	t   *testing.T
	srv *httptest.Server

	mu sync.Mutex
	ws *websocket.Conn
}

func newARITestServer(t *testing.T) *ariTestServer {
	s := &ariTestServer{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *ariTestServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/ari/events":
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			s.t.Errorf("websocket upgrade: %v", err)
			return
		}
		s.mu.Lock()
		s.ws = conn
		s.mu.Unlock()
	case r.URL.Path == "/ari/channels" && r.Method == http.MethodPost:
		var body struct {
			ChannelID string `json:"channelId"`
			AppArgs   string `json:"appArgs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.push(map[string]any{
			"type":    "StasisStart",
			"channel": map[string]string{"id": body.ChannelID},
			"args":    []string{body.AppArgs, "human"},
		})
		w.WriteHeader(http.StatusOK)
	case strings.Contains(r.URL.Path, "/play/") && r.Method == http.MethodPost:
		parts := strings.Split(r.URL.Path, "/")
		s.push(map[string]any{
			"type":     "PlaybackFinished",
			"playback": map[string]string{"id": parts[len(parts)-1]},
		})
		w.WriteHeader(http.StatusCreated)
	case strings.HasSuffix(r.URL.Path, "/record") && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.push(map[string]any{
			"type":      "RecordingFinished",
			"recording": map[string]any{"name": body.Name, "talking_duration": 2},
		})
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *ariTestServer) push(ev map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ws == nil {
		s.t.Errorf("event pushed before the websocket connected: %v", ev)
		return
	}
	if err := s.ws.WriteJSON(ev); err != nil {
		s.t.Errorf("pushing event: %v", err)
	}
}

func TestARIDriver_CompletionEventBeforeResponse(t *testing.T) {
	srv := newARITestServer(t)
	d, err := NewARIDriver(Options{
		URL:          srv.srv.URL,
		AppName:      "callwave",
		Endpoint:     "PJSIP/%s@trunk",
		RecordingDir: "/var/spool/recordings",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := d.PlaceCall(ctx, "+33600000001")
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	verdict, err := sess.WaitAnswer(ctx)
	if err != nil || verdict != DetectHuman {
		t.Fatalf("answer: verdict=%v err=%v", verdict, err)
	}

	ref, err := sess.Play(ctx, "hello_fr")
	if err != nil {
		t.Fatalf("play must see a completion that raced the response: %v", err)
	}
	if ref != "hello_fr.wav" {
		t.Fatalf("audio ref = %q", ref)
	}

	rec, err := sess.Capture(ctx, "cw_hello_test", 15*time.Second, 2*time.Second)
	if err != nil {
		t.Fatalf("capture must see a completion that raced the response: %v", err)
	}
	if rec.Path != filepath.Join("/var/spool/recordings", "cw_hello_test.wav") {
		t.Fatalf("recording path = %q", rec.Path)
	}
	if rec.SpeechDuration != 2*time.Second || rec.Silent {
		t.Fatalf("unexpected recording: %+v", rec)
	}
}
