package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is one finished transcription.
type Result struct {
	Text string `json:"text"`
	// Language is the detected language code.
	Language string `json:"language"`
	// LanguageProbability is the engine's confidence in the detection.
	LanguageProbability float64 `json:"language_probability"`
}

// Transcriber turns a stored recording into text. Implementations must honor
// ctx cancellation; callers treat any error as "nothing was understood".
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// HTTPTranscriber calls a speech-to-text sidecar that shares the recording
// filesystem, so requests carry the audio path rather than the audio itself.
type HTTPTranscriber struct {
	url      string
	language string
	httpc    *http.Client
}

func NewHTTPTranscriber(url, language string, timeout time.Duration) *HTTPTranscriber {
	return &HTTPTranscriber{
		url:      url,
		language: language,
		httpc:    &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	payload, err := json.Marshal(map[string]string{
		"audio_path": audioPath,
		"language":   t.language,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+"/transcribe", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, msg)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("transcribe: decoding response: %w", err)
	}
	return out, nil
}

// Fake maps recording paths to canned transcripts for tests. Unknown paths
// transcribe to the empty string.
type Fake struct {
	Texts map[string]string
	Err   error
}

func (f *Fake) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if f.Err != nil {
		return Result{}, f.Err
	}
	return Result{Text: f.Texts[audioPath], Language: "fr", LanguageProbability: 1}, nil
}
