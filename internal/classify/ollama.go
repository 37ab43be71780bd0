package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClassifier asks a local Ollama instance for the label. It is always
// chained in front of the keyword fallback; any transport error or
// unparseable answer surfaces as an error so the chain can take over.
type OllamaClassifier struct {
	url   string
	model string
	httpc *http.Client
}

func NewOllamaClassifier(url, model string, timeout time.Duration) *OllamaClassifier {
	return &OllamaClassifier{
		url:   url,
		model: model,
		httpc: &http.Client{Timeout: timeout},
	}
}

const systemPrompt = `Tu analyses la réponse d'un prospect lors d'un appel téléphonique sortant.
Réponds par un seul mot parmi: affirmative, negative, neutral, interrogative, unsure, voicemail.
- affirmative: accord, intérêt, acceptation
- negative: refus, désintérêt, agacement
- neutral: incompréhension ou réponse sans opinion
- interrogative: le prospect pose une question ou se méfie
- voicemail: message de répondeur ou menu vocal
- unsure: tout le reste`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func (o *OllamaClassifier) Classify(ctx context.Context, text, stepContext string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{Label: LabelNoResponse}, nil
	}

	user := text
	if stepContext != "" {
		user = fmt.Sprintf("Question posée: %s\nRéponse du prospect: %s", stepContext, text)
	}
	payload, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify: ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("classify: ollama status %d: %s", resp.StatusCode, msg)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("classify: decoding ollama response: %w", err)
	}
	return parseLabel(out.Message.Content)
}

func parseLabel(content string) (Result, error) {
	word := strings.ToLower(strings.TrimSpace(content))
	if i := strings.IndexAny(word, " \n\t.,"); i > 0 {
		word = word[:i]
	}
	switch Label(word) {
	case LabelAffirmative, LabelNegative, LabelNeutral, LabelInterrogative, LabelUnsure, LabelVoicemail:
		return Result{Label: Label(word), Confidence: 0.9}, nil
	}
	return Result{}, fmt.Errorf("classify: unexpected model answer %q", content)
}
