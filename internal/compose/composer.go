// Package compose assembles the final patient-facing reply: warning
// prefix, body, encouragement, disclaimer, then translation. The
// composer holds no state and performs no I/O beyond translation.
package compose

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/glucomate/glucomate/internal/classify"
	"github.com/glucomate/glucomate/internal/safety"
)

// Translator renders English text in the patient's language.
type Translator interface {
	FromEnglish(ctx context.Context, text, targetLang string) string
}

const disclaimer = "Remember: this is general information, not medical advice. Please confirm any changes with your healthcare provider."

var distressWords = []string{
	"struggling", "hard", "difficult", "frustrated", "tired of",
	"overwhelmed", "can't do this", "giving up", "stressed",
	"worried", "scared", "anxious", "hopeless",
}

// encouragements are picked deterministically by hashing the patient's
// message, so the same input always gets the same line.
var encouragements = []string{
	"Managing diabetes takes real effort, and you're showing up. That counts.",
	"Small consistent steps beat perfect days. You're doing better than you think.",
	"It's okay to have hard weeks. What matters is that you keep going.",
	"You're not alone in this. Every check-in and every question is progress.",
	"Be kind to yourself. Diabetes is a marathon, and you're still in it.",
}

// Input carries everything the composer needs for one reply.
type Input struct {
	// Answer is the English reply body produced by the pipeline.
	Answer string
	// UserMessage is the patient's original message, used for
	// distress detection and encouragement selection.
	UserMessage string
	Kind        classify.Kind
	Urgency     safety.Urgency
	// WarningNote is the safety guidance to prepend on HIGH urgency.
	WarningNote string
	// Language is the patient's preferred language code.
	Language string
}

// Composer builds final replies.
type Composer struct {
	translator Translator
}

func New(translator Translator) *Composer {
	return &Composer{translator: translator}
}

// Compose assembles and translates the reply. Section order is fixed:
// warning, body, encouragement, disclaimer.
func (c *Composer) Compose(ctx context.Context, in Input) string {
	var parts []string

	if in.Urgency == safety.UrgencyHigh && in.WarningNote != "" {
		parts = append(parts, in.WarningNote)
	}
	parts = append(parts, in.Answer)
	if enc := encouragementFor(in.UserMessage); enc != "" {
		parts = append(parts, enc)
	}
	if in.Kind == classify.KindMedical || in.Kind == classify.KindCurrentMedical {
		parts = append(parts, disclaimer)
	}

	text := strings.Join(parts, "\n\n")
	return c.translator.FromEnglish(ctx, text, in.Language)
}

// encouragementFor returns a support line when the message carries
// distress vocabulary, empty otherwise.
func encouragementFor(message string) string {
	lower := strings.ToLower(message)
	for _, w := range distressWords {
		if strings.Contains(lower, w) {
			h := fnv.New32a()
			h.Write([]byte(message))
			return encouragements[h.Sum32()%uint32(len(encouragements))]
		}
	}
	return ""
}
