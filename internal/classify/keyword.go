package classify

import (
	"context"
	"regexp"
	"strings"
)

// KeywordClassifier is the deterministic French keyword fallback. It needs no
// network and is the last link of every classifier chain.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

var positiveWords = wordSet(
	"oui", "ok", "okay", "ouais", "ouaip", "yep",
	"d'accord", "daccord", "entendu", "exactement", "correct", "parfait",
	"intéressé", "intéressée", "intéressant", "intéressante", "intéresse",
	"super", "génial", "excellent", "formidable", "top", "cool", "carrément",
	"volontiers", "absolument", "certainement", "évidemment", "clairement",
	"banco", "nickel", "impec",
	"accepte", "accepter", "j'accepte",
	"bonne", "bon", "bien", "géniale", "excellente", "parfaite",
)

var negativeWords = wordSet(
	"non", "nan", "nope", "jamais", "aucun", "aucune",
	"pas", "refus", "refuse", "refuser", "désolé", "desole",
	"impossible", "incapable",
	"occupé", "occupée", "indisponible",
	"stop", "arrêtez", "arrêter", "cessez", "tranquille",
	"dérangez", "déranger", "embêtez", "embêter", "chiant", "relou", "pénible",
	"spam", "démarchage", "commercial", "pub", "publicité", "arnaque",
	"raccrochez", "raccrocher", "opposition",
	"mauvais", "mauvaise", "nul", "nulle", "terrible", "horrible",
)

var positiveIdioms = []string{
	"pourquoi pas", "ça me va", "ca me va", "volontiers",
	"c'est parti", "cest parti", "ça m'intéresse", "ca m'intéresse",
	"je suis intéressé", "suis intéressée", "ça me plaît", "ca me plait",
	"d'accord", "daccord", "bien sûr", "bien sur",
	"ça marche", "ca marche", "je veux bien", "avec plaisir",
}

var negativeIdioms = []string{
	"laissez-moi tranquille", "foutez-moi", "fichez-moi la paix", "ça suffit",
	"m'intéresse pas", "pas intéressé", "pas intéressée", "pas du tout",
	"c'est pas moi", "pas moi", "mauvais numéro", "vous vous trompez",
	"connais pas", "pas le temps", "pas de temps",
	"je suis occupé", "suis occupée",
}

var incomprehensionWords = wordSet(
	"allô", "allo", "hein", "pardon", "comment", "quoi", "répétez", "repetez",
)

var interrogativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(qui|c'est qui|vous êtes qui|t'es qui)\b`),
	regexp.MustCompile(`\bcomment\s+\w+`),
	regexp.MustCompile(`\b(pourquoi|pour quoi)\b`),
	regexp.MustCompile(`\b(c'est quoi|qu'est-ce|vous voulez quoi|tu veux quoi)\b`),
	regexp.MustCompile(`\b(d'où|vous appelez d)\b`),
	regexp.MustCompile(`\b(combien|ça coûte|ca coute|quel prix)\b`),
	regexp.MustCompile(`\b(quel|quelle|quels|quelles|lequel|laquelle)\b`),
}

var interrogativeMarkers = []string{
	"qui", "quoi", "comment", "où", "combien", "quel", "quelle",
}

// voicemailKeywords cover French answering machine greetings and voice menu
// instructions.
var voicemailKeywords = []string{
	"messagerie", "boîte vocale", "boite vocale", "répondeur", "repondeur",
	"laisser un message", "laissez un message", "déposer un message",
	"déposez un message", "enregistrez votre message",
	"joignable", "indisponible", "momentanément absent",
	"ne suis pas là", "ne peux pas répondre",
	"appuyez", "tapez", "composez", "la touche", "dièse", "étoile",
	"après le bip", "bip sonore", "au signal", "signal sonore", "tonalité",
	"vous êtes bien", "bienvenue sur", "merci d'avoir appelé",
	"vous avez joint", "ici le répondeur",
	"veuillez laisser", "veuillez déposer", "veuillez patienter",
	"pour déposer", "pour laisser", "pour enregistrer",
	"appuyez sur 1", "tapez 1", "faites le 1",
}

// IsVoicemail reports whether the transcript looks like an answering machine
// greeting or voice menu.
func IsVoicemail(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range voicemailKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Classify scores the transcript against keyword tables, in priority order:
// voicemail greeting, positive idioms (before interrogative so "pourquoi pas"
// reads as acceptance), short incomprehension utterances, question patterns,
// explicit negative idioms, then a word-count vote.
func (k *KeywordClassifier) Classify(ctx context.Context, text, stepContext string) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Label: LabelNoResponse}, nil
	}
	lower := strings.ToLower(trimmed)

	if IsVoicemail(trimmed) {
		return Result{Label: LabelVoicemail, Confidence: 0.9}, nil
	}

	for _, idiom := range positiveIdioms {
		if strings.Contains(lower, idiom) {
			return Result{Label: LabelAffirmative, Confidence: 0.8}, nil
		}
	}

	words := splitWords(lower)

	// "Allô ?", "Pardon ?" on their own are incomprehension, not refusal.
	if len(words) <= 3 {
		for _, w := range words {
			if incomprehensionWords[w] {
				return Result{Label: LabelNeutral, Confidence: 0.6}, nil
			}
		}
	}

	for _, p := range interrogativePatterns {
		if !p.MatchString(lower) {
			continue
		}
		if strings.Contains(trimmed, "?") || containsAnyWord(words, interrogativeMarkers) {
			return Result{Label: LabelInterrogative, Confidence: 0.85}, nil
		}
	}

	for _, idiom := range negativeIdioms {
		if strings.Contains(lower, idiom) {
			return Result{Label: LabelNegative, Confidence: 0.85}, nil
		}
	}

	if (strings.HasPrefix(lower, "oui") || strings.HasPrefix(lower, "ouais")) &&
		!strings.Contains(lower, "pas") {
		return Result{Label: LabelAffirmative, Confidence: 0.85}, nil
	}

	var pos, neg int
	for _, w := range words {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return Result{Label: LabelUnsure}, nil
	}
	base := float64(total) / float64(max(len(words), 1))
	if base > 1 {
		base = 1
	}
	switch {
	case pos > neg:
		return Result{Label: LabelAffirmative, Confidence: base * float64(pos) / float64(total)}, nil
	case neg > pos:
		return Result{Label: LabelNegative, Confidence: base * float64(neg) / float64(total)}, nil
	default:
		return Result{Label: LabelUnsure, Confidence: 0.5}, nil
	}
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}']+`)

func splitWords(lower string) []string {
	fields := nonWord.Split(lower, -1)
	words := fields[:0]
	for _, f := range fields {
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

func containsAnyWord(words, wanted []string) bool {
	for _, w := range words {
		for _, m := range wanted {
			if w == m {
				return true
			}
		}
	}
	return false
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
