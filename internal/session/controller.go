package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"callwave/internal/classify"
	"callwave/internal/contacts"
	"callwave/internal/interactions"
	"callwave/internal/scenario"
	"callwave/internal/telephony"
	"callwave/internal/transcribe"
)

// Config parameterizes one call.
type Config struct {
	CampaignID string
	Phone      string
	Definition scenario.Definition

	// AnswerTimeout bounds the wait for the far end to pick up.
	AnswerTimeout time.Duration
	Gate          Gate
}

// Outcome is the controller's verdict on a finished call, consumed by the
// dispatcher to finalize the queue item, the contact, and campaign counters.
type Outcome struct {
	CallID string
	Phone  string

	// Qualified is set when the scenario reached its success terminal.
	Qualified     bool
	ContactStatus contacts.Status

	// Completed tells the queue item's fate: true means the call ran to a
	// scripted end, false means a retryable failure.
	Completed bool
	Retryable bool

	FinalLabel classify.Label
	Reason     string

	StartedAt time.Time
	EndedAt   time.Time
}

// Controller drives one call through its scenario: play a prompt, capture
// the answer, transcribe, classify, persist the interaction, branch. It owns
// the call's tracker and always hangs up before returning.
type Controller struct {
	cfg         Config
	sess        telephony.Session
	transcriber transcribe.Transcriber
	classifier  classify.Classifier
	store       interactions.Store
	log         *slog.Logger
	tracker     *Tracker
	now         func() time.Time
}

func New(cfg Config, sess telephony.Session, tr transcribe.Transcriber, cl classify.Classifier, store interactions.Store, log *slog.Logger) *Controller {
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = 45 * time.Second
	}
	if cfg.Gate == (Gate{}) {
		cfg.Gate = DefaultGate()
	}
	return &Controller{
		cfg:         cfg,
		sess:        sess,
		transcriber: tr,
		classifier:  cl,
		store:       store,
		log:         log,
		tracker:     NewTracker(),
		now:         time.Now,
	}
}

// Tracker exposes the call trace for the assembly step. Valid to consume only
// after Run has returned.
func (c *Controller) Tracker() *Tracker { return c.tracker }

// Run drives the call to completion. It never returns an error: every
// failure mode is folded into the Outcome.
func (c *Controller) Run(ctx context.Context) Outcome {
	out := Outcome{
		CallID:    c.sess.ID(),
		Phone:     c.cfg.Phone,
		StartedAt: c.now(),
	}
	defer func() {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.sess.Hangup(hctx); err != nil {
			c.log.Warn("hangup failed", "call_id", out.CallID, "error", err)
		}
	}()

	answerCtx, cancel := context.WithTimeout(ctx, c.cfg.AnswerTimeout)
	verdict, err := c.sess.WaitAnswer(answerCtx)
	cancel()
	if err != nil {
		noAnswer(&out, "not answered: "+err.Error())
		return c.finish(out)
	}

	if c.cfg.Gate.NeedsWindow(verdict) {
		rec, err := c.sess.Capture(ctx, c.recName("amd"), c.cfg.Gate.WindowTimeout, c.cfg.Gate.WindowSilence)
		if err != nil {
			noAnswer(&out, "lost before first step")
			return c.finish(out)
		}
		verdict = c.cfg.Gate.Score(rec.SpeechDuration)
	}
	if verdict == telephony.DetectMachine {
		noAnswer(&out, "answering machine")
		return c.finish(out)
	}

	c.log.Info("call answered",
		"call_id", out.CallID,
		"phone", c.cfg.Phone,
		"scenario", c.cfg.Definition.Name,
	)

	stepID := c.cfg.Definition.Entry
	seq := 0
	inConversation := false
	var lastLabel classify.Label

	for !scenario.IsTerminal(stepID) {
		if ctx.Err() != nil {
			c.unwind(&out, inConversation, "canceled")
			return c.finish(out)
		}
		step, ok := c.cfg.Definition.Steps[stepID]
		if !ok {
			// Validate() makes this unreachable for loaded scenarios.
			c.unwind(&out, inConversation, "unknown step "+stepID)
			return c.finish(out)
		}

		audioRef, err := c.sess.Play(ctx, step.Prompt)
		if err != nil {
			c.disconnected(&out, inConversation, lastLabel)
			return c.finish(out)
		}
		c.tracker.AppendPrompt(stepID, audioRef)

		if !step.Capture {
			stepID, _ = step.NextFor("")
			continue
		}

		promptDone := c.now()
		rec, err := c.sess.Capture(ctx, c.recName(stepID), step.ListenTimeout.Std(), step.SilenceThreshold.Std())
		if err != nil {
			c.disconnected(&out, inConversation, lastLabel)
			return c.finish(out)
		}

		text, res := c.understand(ctx, rec, step.PromptText)
		c.tracker.AppendCounterpart(stepID, rec.Path, text, string(res.Label))

		seq++
		interaction := interactions.Interaction{
			ID:              uuid.NewString(),
			CallID:          out.CallID,
			CampaignID:      c.cfg.CampaignID,
			Phone:           c.cfg.Phone,
			Sequence:        seq,
			Step:            stepID,
			Transcription:   text,
			Label:           string(res.Label),
			Confidence:      res.Confidence,
			ResponseLatency: c.now().Sub(promptDone),
		}
		if err := c.store.Append(ctx, interaction); err != nil {
			c.log.Error("persisting interaction failed",
				"call_id", out.CallID, "step", stepID, "error", err)
		}

		c.log.Info("step classified",
			"call_id", out.CallID,
			"step", stepID,
			"label", res.Label,
			"transcription", truncate(text, 80),
		)

		lastLabel = res.Label
		if res.Label == classify.LabelVoicemail {
			// A machine greeting ends the script no matter how the step
			// would branch.
			out.FinalLabel = res.Label
			noAnswer(&out, "answering machine greeting")
			return c.finish(out)
		}
		inConversation = true
		next, ok := step.NextFor(string(res.Label))
		if !ok {
			next = scenario.TerminalFailure
		}
		stepID = next
	}

	out.FinalLabel = lastLabel
	if stepID == scenario.TerminalSuccess {
		out.Qualified = true
		out.ContactStatus = contacts.StatusLeads
		out.Completed = true
		out.Reason = "qualified"
		return c.finish(out)
	}

	if !inConversation || lastLabel == classify.LabelNoResponse || lastLabel == classify.LabelVoicemail {
		noAnswer(&out, "no usable response")
		return c.finish(out)
	}
	out.ContactStatus = contacts.StatusNotInterested
	out.Completed = true
	out.Reason = "not interested"
	return c.finish(out)
}

// understand turns a capture window into transcript text and a label.
// Transcription errors are treated as nothing understood, never as call
// failures.
func (c *Controller) understand(ctx context.Context, rec telephony.Recording, stepContext string) (string, classify.Result) {
	if rec.Silent || rec.Path == "" {
		return "", classify.Result{Label: classify.LabelNoResponse}
	}
	tr, err := c.transcriber.Transcribe(ctx, rec.Path)
	if err != nil {
		c.log.Warn("transcription failed", "path", rec.Path, "error", err)
		return "", classify.Result{Label: classify.LabelNoResponse}
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", classify.Result{Label: classify.LabelNoResponse}
	}
	// An answering machine greeting is recognized on the transcript itself,
	// regardless of what the classifier chain would make of it.
	if classify.IsVoicemail(text) {
		return text, classify.Result{Label: classify.LabelVoicemail, Confidence: 0.9}
	}
	res, err := c.classifier.Classify(ctx, text, stepContext)
	if err != nil {
		res = classify.Result{Label: classify.LabelUnsure}
	}
	return text, res
}

func (c *Controller) disconnected(out *Outcome, inConversation bool, lastLabel classify.Label) {
	out.FinalLabel = lastLabel
	if inConversation {
		// A hangup mid-conversation is a refusal, not a technical failure.
		out.ContactStatus = contacts.StatusNotInterested
		out.Completed = true
		out.Reason = "hung up during conversation"
		return
	}
	noAnswer(out, "connection lost")
}

func (c *Controller) unwind(out *Outcome, inConversation bool, reason string) {
	if inConversation {
		out.ContactStatus = contacts.StatusNotInterested
		out.Completed = true
		out.Reason = reason
		return
	}
	noAnswer(out, reason)
}

func noAnswer(out *Outcome, reason string) {
	out.ContactStatus = contacts.StatusNoAnswer
	out.Completed = false
	out.Retryable = true
	out.Reason = reason
}

func (c *Controller) finish(out Outcome) Outcome {
	out.EndedAt = c.now()
	return out
}

func (c *Controller) recName(step string) string {
	return fmt.Sprintf("cw_%s_%s_%d", step, c.sess.ID(), c.now().UnixNano())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
