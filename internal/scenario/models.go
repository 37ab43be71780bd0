package scenario

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Terminal tokens usable as branch targets alongside step IDs.
const (
	TerminalSuccess = "success"
	TerminalFailure = "failure"
)

// Definition is an immutable, ordered conversation script. Branch tables are
// plain data so a session can be driven deterministically in tests without
// real telephony or inference collaborators.
type Definition struct {
	Name  string          `yaml:"name"`
	Entry string          `yaml:"entry"`
	Steps map[string]Step `yaml:"steps"`
}

// Step is one prompt/capture/branch unit.
//
// Exactly one of Branch or Next drives advancement: Branch maps classification
// labels to the next step or a terminal token, Next advances unconditionally
// (data-gathering steps where the answer does not alter flow). Steps with
// Capture false play their prompt and advance without listening.
type Step struct {
	Prompt     string `yaml:"prompt"`
	PromptText string `yaml:"prompt_text"`

	Capture          bool     `yaml:"capture"`
	ListenTimeout    Duration `yaml:"listen_timeout"`
	SilenceThreshold Duration `yaml:"silence_threshold"`

	Branch map[string]string `yaml:"branch"`
	Next   string            `yaml:"next"`

	// BranchDefault catches labels absent from Branch.
	BranchDefault string `yaml:"branch_default"`
}

// NextFor resolves the step's successor for a classification label.
func (s Step) NextFor(label string) (string, bool) {
	if s.Next != "" {
		return s.Next, true
	}
	if target, ok := s.Branch[label]; ok {
		return target, true
	}
	if s.BranchDefault != "" {
		return s.BranchDefault, true
	}
	return "", false
}

func IsTerminal(target string) bool {
	return target == TerminalSuccess || target == TerminalFailure
}

// Duration parses YAML scalars like "15s" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("scenario: bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Validate checks internal consistency: the entry step exists, every branch
// target is a known step or terminal token, no step shadows a terminal token,
// and capture steps carry positive listening windows.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("scenario: missing name")
	}
	if _, ok := d.Steps[d.Entry]; !ok {
		return fmt.Errorf("scenario %s: entry step %q not defined", d.Name, d.Entry)
	}
	for id, step := range d.Steps {
		if IsTerminal(id) {
			return fmt.Errorf("scenario %s: step %q shadows a terminal token", d.Name, id)
		}
		if step.Prompt == "" {
			return fmt.Errorf("scenario %s: step %q has no prompt", d.Name, id)
		}
		if step.Next != "" && len(step.Branch) > 0 {
			return fmt.Errorf("scenario %s: step %q declares both next and branch", d.Name, id)
		}
		if step.Capture {
			if step.ListenTimeout <= 0 || step.SilenceThreshold <= 0 {
				return fmt.Errorf("scenario %s: step %q needs listen_timeout and silence_threshold", d.Name, id)
			}
			if step.Next == "" && len(step.Branch) == 0 && step.BranchDefault == "" {
				return fmt.Errorf("scenario %s: capture step %q has no branch rules", d.Name, id)
			}
		} else if step.Next == "" {
			return fmt.Errorf("scenario %s: non-capture step %q needs next", d.Name, id)
		}
		targets := []string{step.Next, step.BranchDefault}
		for _, t := range step.Branch {
			targets = append(targets, t)
		}
		for _, t := range targets {
			if t == "" || IsTerminal(t) {
				continue
			}
			if _, ok := d.Steps[t]; !ok {
				return fmt.Errorf("scenario %s: step %q branches to unknown step %q", d.Name, id, t)
			}
		}
	}
	return nil
}
