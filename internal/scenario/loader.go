package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Library holds every loaded scenario, keyed by name.
type Library struct {
	defs map[string]Definition
}

func (l *Library) Get(name string) (Definition, error) {
	d, ok := l.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("scenario: %q not found", name)
	}
	return d, nil
}

func (l *Library) Names() []string {
	names := make([]string, 0, len(l.defs))
	for n := range l.defs {
		names = append(names, n)
	}
	return names
}

// Load reads every *.yaml/*.yml definition under dir and validates each.
// The built-in production scenario is always present; a file with the same
// name overrides it.
func Load(dir string) (*Library, error) {
	lib := &Library{defs: map[string]Definition{}}

	prod := Production()
	lib.defs[prod.Name] = prod

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return nil, fmt.Errorf("scenario: reading %s: %w", dir, err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("scenario: reading %s: %w", name, err)
		}
		var def Definition
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("scenario: parsing %s: %w", name, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("scenario: %s: %w", name, err)
		}
		lib.defs[def.Name] = def
	}
	return lib, nil
}

// Production is the built-in progressive qualification script: an opener with
// one retry, three data-gathering questions, a final qualifying question that
// alone decides the lead status, a slot-preference question for qualified
// leads, and two closing messages.
func Production() Definition {
	const (
		listen  = Duration(15e9)
		silence = Duration(2e9)
	)
	qualify := func(next string) Step {
		return Step{
			Prompt:           next,
			Capture:          true,
			ListenTimeout:    listen,
			SilenceThreshold: silence,
		}
	}

	q1 := qualify("q1")
	q1.PromptText = "Première question de qualification."
	q1.Next = "q2"
	q2 := qualify("q2")
	q2.PromptText = "Deuxième question de qualification."
	q2.Next = "q3"
	q3 := qualify("q3")
	q3.PromptText = "Troisième question de qualification."
	q3.Next = "is_leads"
	confirm := qualify("confirm")
	confirm.PromptText = "Préférez-vous être rappelé le matin, l'après-midi ou le soir ?"
	confirm.Next = "bye_success"

	return Definition{
		Name:  "production",
		Entry: "hello",
		Steps: map[string]Step{
			"hello": {
				Prompt:           "hello",
				PromptText:       "Bonjour, présentation de l'offre. Est-ce que cela vous convient ?",
				Capture:          true,
				ListenTimeout:    listen,
				SilenceThreshold: silence,
				Branch: map[string]string{
					"affirmative":   "q1",
					"neutral":       "q1",
					"negative":      "retry",
					"interrogative": "retry",
					"unsure":        "retry",
					"no_response":   TerminalFailure,
					"voicemail":     TerminalFailure,
				},
			},
			"retry": {
				Prompt:           "retry",
				PromptText:       "Je reformule rapidement, cela ne prend qu'une minute.",
				Capture:          true,
				ListenTimeout:    listen,
				SilenceThreshold: silence,
				Branch: map[string]string{
					"negative":    "bye_failed",
					"no_response": TerminalFailure,
					"voicemail":   TerminalFailure,
				},
				BranchDefault: "q1",
			},
			"q1": q1,
			"q2": q2,
			"q3": q3,
			"is_leads": {
				Prompt:           "is_leads",
				PromptText:       "Souhaitez-vous être recontacté par un conseiller ?",
				Capture:          true,
				ListenTimeout:    listen,
				SilenceThreshold: silence,
				Branch: map[string]string{
					"affirmative": "confirm",
					"neutral":     "confirm",
				},
				BranchDefault: "bye_failed",
			},
			"confirm": confirm,
			"bye_success": {
				Prompt:     "bye_success",
				PromptText: "Parfait, un conseiller vous recontactera. Bonne journée !",
				Next:       TerminalSuccess,
			},
			"bye_failed": {
				Prompt:     "bye_failed",
				PromptText: "Merci pour votre temps, bonne journée.",
				Next:       TerminalFailure,
			},
		},
	}
}
