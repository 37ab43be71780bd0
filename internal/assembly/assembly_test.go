package assembly

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"callwave/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func traceFixture() []session.TrackedSegment {
	return []session.TrackedSegment{
		{Side: session.SidePrompt, Step: "hello", AudioRef: "hello.wav", Timestamp: time.Unix(100, 0)},
		{Side: session.SideCounterpart, Step: "hello", AudioRef: "/rec/hello.wav", Text: "oui", Label: "affirmative", Timestamp: time.Unix(105, 0)},
		{Side: session.SidePrompt, Step: "bye_failed", AudioRef: "bye_failed.wav", Timestamp: time.Unix(110, 0)},
	}
}

func TestAssemble_CommandSequence(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir, "/prompts", testLogger())

	var calls [][]string
	a.SetRun(func(ctx context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	})

	out, err := a.Assemble(context.Background(), "call-1", traceFixture())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.HasSuffix(out, "call_call-1.wav") {
		t.Fatalf("output = %s", out)
	}
	// One amplification, one spacer, one concatenation.
	if len(calls) != 3 {
		t.Fatalf("expected 3 sox runs, got %d: %v", len(calls), calls)
	}

	amp := calls[0]
	if amp[1] != "/rec/hello.wav" || amp[len(amp)-2] != "vol" || amp[len(amp)-1] != "12dB" {
		t.Fatalf("amplify command: %v", amp)
	}

	spacer := calls[1]
	if spacer[len(spacer)-1] != "0.4" {
		t.Fatalf("spacer command: %v", spacer)
	}

	final := calls[2]
	// prompt, spacer, amplified, spacer, prompt, output = 6 args after "sox".
	if len(final) != 7 {
		t.Fatalf("concat command: %v", final)
	}
	if final[1] != "/prompts/hello.wav" {
		t.Fatalf("prompt not resolved under prompt dir: %v", final)
	}
	if final[len(final)-1] != out {
		t.Fatalf("concat output mismatch: %v", final)
	}
}

func TestAssemble_SkipsSilentSegments(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir, "/prompts", testLogger())

	var concat []string
	a.SetRun(func(ctx context.Context, name string, args ...string) error {
		if len(args) > 0 && strings.HasSuffix(args[len(args)-1], ".wav") && strings.Contains(args[len(args)-1], "call_") {
			concat = args
		}
		return nil
	})

	segs := []session.TrackedSegment{
		{Side: session.SidePrompt, Step: "hello", AudioRef: "hello.wav"},
		{Side: session.SideCounterpart, Step: "hello", AudioRef: "", Text: ""}, // silent capture
	}
	if _, err := a.Assemble(context.Background(), "call-2", segs); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// Single input plus output, no spacer in between.
	if len(concat) != 2 {
		t.Fatalf("concat args: %v", concat)
	}
}

func TestAssemble_EmptyTrace(t *testing.T) {
	a := NewAssembler(t.TempDir(), "/prompts", testLogger())
	if _, err := a.Assemble(context.Background(), "call-3", nil); err == nil {
		t.Fatal("empty trace accepted")
	}
}

func TestTranscriptWriter_WritesBothArtifacts(t *testing.T) {
	dir := t.TempDir()
	w := NewTranscriptWriter(dir)

	info := CallInfo{
		CallID:     "call-1",
		CampaignID: "c1",
		Phone:      "+33600000001",
		Scenario:   "production",
		StartedAt:  time.Unix(100, 0).UTC(),
		EndedAt:    time.Unix(130, 0).UTC(),
		FinalLabel: "negative",
	}
	promptTexts := map[string]string{
		"hello":      "Bonjour, présentation de l'offre.",
		"bye_failed": "Merci pour votre temps.",
	}

	jsonPath, textPath, err := w.Write(info, traceFixture(), promptTexts)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var doc struct {
		Call      CallInfo `json:"call"`
		Exchanges []struct {
			Speaker string `json:"speaker"`
			Step    string `json:"step"`
			Text    string `json:"text"`
			Label   string `json:"label"`
		} `json:"exchanges"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if doc.Call.CallID != "call-1" || len(doc.Exchanges) != 3 {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if doc.Exchanges[0].Speaker != "BOT" || doc.Exchanges[0].Text != promptTexts["hello"] {
		t.Fatalf("bot exchange: %+v", doc.Exchanges[0])
	}
	if doc.Exchanges[1].Speaker != "CLIENT" || doc.Exchanges[1].Label != "affirmative" {
		t.Fatalf("client exchange: %+v", doc.Exchanges[1])
	}

	text, err := os.ReadFile(textPath)
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	body := string(text)
	for _, want := range []string{"+33600000001", "BOT:", "CLIENT:", "oui", "(affirmative)"} {
		if !strings.Contains(body, want) {
			t.Fatalf("text transcript missing %q:\n%s", want, body)
		}
	}
}
