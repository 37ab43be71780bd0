package classify

import "context"

// Label is a classification of one counterpart utterance. The values double
// as scenario branch-table keys.
type Label string

const (
	LabelAffirmative   Label = "affirmative"
	LabelNegative      Label = "negative"
	LabelNeutral       Label = "neutral"
	LabelInterrogative Label = "interrogative"
	LabelUnsure        Label = "unsure"
	LabelNoResponse    Label = "no_response"
	LabelVoicemail     Label = "voicemail"
)

// Result carries a label and the classifier's confidence in it.
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels transcript text given the current step's context (e.g.
// the step ID, used by model-backed implementations to shape the prompt).
type Classifier interface {
	Classify(ctx context.Context, text, stepContext string) (Result, error)
}

// Fallback tries classifiers in order, using the first that succeeds. It
// never fails: when every classifier errors, the result is unsure.
type Fallback struct {
	Chain []Classifier
}

func (f *Fallback) Classify(ctx context.Context, text, stepContext string) (Result, error) {
	for _, c := range f.Chain {
		res, err := c.Classify(ctx, text, stepContext)
		if err == nil {
			return res, nil
		}
	}
	return Result{Label: LabelUnsure}, nil
}
