package classify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func classifyText(t *testing.T, text string) Result {
	t.Helper()
	res, err := NewKeywordClassifier().Classify(context.Background(), text, "")
	if err != nil {
		t.Fatalf("classify %q: %v", text, err)
	}
	return res
}

func TestKeyword_Labels(t *testing.T) {
	cases := []struct {
		text string
		want Label
	}{
		{"", LabelNoResponse},
		{"   ", LabelNoResponse},
		{"oui bien sûr", LabelAffirmative},
		{"ouais ça marche", LabelAffirmative},
		{"pourquoi pas", LabelAffirmative},
		{"je suis intéressé", LabelAffirmative},
		{"non merci", LabelNegative},
		{"je ne suis pas intéressé", LabelNegative},
		{"laissez-moi tranquille", LabelNegative},
		{"vous vous trompez de numéro", LabelNegative},
		{"c'est qui ?", LabelInterrogative},
		{"combien ça coûte ?", LabelInterrogative},
		{"allô ?", LabelNeutral},
		{"pardon ?", LabelNeutral},
		{"je regarde la télévision", LabelUnsure},
		{"vous êtes bien sur la messagerie de Jean, laissez un message après le bip", LabelVoicemail},
		{"appuyez sur 1 pour laisser un message", LabelVoicemail},
	}
	for _, tc := range cases {
		if got := classifyText(t, tc.text); got.Label != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.text, got.Label, tc.want)
		}
	}
}

func TestKeyword_OuiWithNegationIsNotAffirmative(t *testing.T) {
	got := classifyText(t, "oui enfin non pas vraiment pas")
	if got.Label == LabelAffirmative {
		t.Fatalf("negated oui classified affirmative: %+v", got)
	}
}

func TestIsVoicemail(t *testing.T) {
	if !IsVoicemail("merci d'avoir appelé, veuillez laisser un message") {
		t.Error("voicemail greeting not detected")
	}
	if IsVoicemail("oui bonjour c'est moi") {
		t.Error("human greeting flagged as voicemail")
	}
	if IsVoicemail("") {
		t.Error("empty text flagged as voicemail")
	}
}

func TestOllama_ParsesLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"Affirmative."}}`))
	}))
	defer srv.Close()

	c := NewOllamaClassifier(srv.URL, "mistral", time.Second)
	res, err := c.Classify(context.Background(), "oui carrément", "hello")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Label != LabelAffirmative {
		t.Fatalf("label = %s", res.Label)
	}
}

func TestOllama_RejectsUnexpectedAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"je ne sais pas trop"}}`))
	}))
	defer srv.Close()

	c := NewOllamaClassifier(srv.URL, "mistral", time.Second)
	if _, err := c.Classify(context.Background(), "peut-être", ""); err == nil {
		t.Fatal("unparseable answer accepted")
	}
}

type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, text, stepContext string) (Result, error) {
	return Result{}, errors.New("down")
}

func TestFallback_ChainsToKeyword(t *testing.T) {
	f := &Fallback{Chain: []Classifier{failingClassifier{}, NewKeywordClassifier()}}
	res, err := f.Classify(context.Background(), "oui d'accord", "")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if res.Label != LabelAffirmative {
		t.Fatalf("label = %s", res.Label)
	}
}

func TestFallback_AllFailingIsUnsure(t *testing.T) {
	f := &Fallback{Chain: []Classifier{failingClassifier{}}}
	res, err := f.Classify(context.Background(), "oui", "")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if res.Label != LabelUnsure {
		t.Fatalf("label = %s", res.Label)
	}
}
