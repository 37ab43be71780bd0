package assembly

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"callwave/internal/session"
)

// CallInfo is the header block of a transcript.
type CallInfo struct {
	CallID         string     `json:"call_id"`
	CampaignID     string     `json:"campaign_id,omitempty"`
	Phone          string     `json:"phone"`
	Scenario       string     `json:"scenario"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        time.Time  `json:"ended_at"`
	FinalLabel     string     `json:"final_label"`
	Qualified      bool       `json:"qualified"`
	AssembledAudio string     `json:"assembled_audio,omitempty"`
}

type exchange struct {
	Speaker   string    `json:"speaker"`
	Step      string    `json:"step"`
	Text      string    `json:"text"`
	Label     string    `json:"label,omitempty"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type transcriptDoc struct {
	Call      CallInfo   `json:"call"`
	Exchanges []exchange `json:"exchanges"`
}

// TranscriptWriter renders a call trace into two artifacts: a structured
// JSON document and a human-readable text version for quick review.
// Prompt-side text comes from promptTexts (step ID to scripted line).
type TranscriptWriter struct {
	dir string
}

func NewTranscriptWriter(dir string) *TranscriptWriter {
	return &TranscriptWriter{dir: dir}
}

// Write produces transcript_<callID>.json and .txt and returns both paths.
func (w *TranscriptWriter) Write(info CallInfo, segs []session.TrackedSegment, promptTexts map[string]string) (string, string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("transcript: %w", err)
	}

	doc := transcriptDoc{Call: info}
	for _, seg := range segs {
		ex := exchange{
			Step:      seg.Step,
			AudioRef:  seg.AudioRef,
			Timestamp: seg.Timestamp,
		}
		switch seg.Side {
		case session.SidePrompt:
			ex.Speaker = "BOT"
			ex.Text = promptTexts[seg.Step]
		case session.SideCounterpart:
			ex.Speaker = "CLIENT"
			ex.Text = seg.Text
			ex.Label = seg.Label
		}
		doc.Exchanges = append(doc.Exchanges, ex)
	}

	jsonPath := filepath.Join(w.dir, fmt.Sprintf("transcript_%s.json", info.CallID))
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("transcript: %w", err)
	}
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return "", "", fmt.Errorf("transcript: %w", err)
	}

	textPath := filepath.Join(w.dir, fmt.Sprintf("transcript_%s.txt", info.CallID))
	if err := os.WriteFile(textPath, []byte(renderText(doc)), 0o644); err != nil {
		return "", "", fmt.Errorf("transcript: %w", err)
	}
	return jsonPath, textPath, nil
}

func renderText(doc transcriptDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call %s - %s\n", doc.Call.CallID, doc.Call.Phone)
	fmt.Fprintf(&b, "Scenario: %s\n", doc.Call.Scenario)
	fmt.Fprintf(&b, "Started:  %s\n", doc.Call.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Ended:    %s\n", doc.Call.EndedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Result:   %s (qualified: %v)\n", doc.Call.FinalLabel, doc.Call.Qualified)
	b.WriteString(strings.Repeat("-", 60) + "\n")

	for _, ex := range doc.Exchanges {
		text := ex.Text
		if text == "" {
			text = "(silence)"
		}
		if ex.Speaker == "CLIENT" && ex.Label != "" {
			fmt.Fprintf(&b, "%-7s [%s] %s  (%s)\n", ex.Speaker+":", ex.Step, text, ex.Label)
		} else {
			fmt.Fprintf(&b, "%-7s [%s] %s\n", ex.Speaker+":", ex.Step, text)
		}
	}
	return b.String()
}
