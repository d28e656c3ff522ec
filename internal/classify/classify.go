// Package classify sorts free-form messages into retrieval categories.
// Classification is ordered keyword matching; the first category with a
// hit wins, and anything unmatched is treated as a medical question.
package classify

import "strings"

// Kind is the routing category for a message.
type Kind string

const (
	KindCasual         Kind = "casual"
	KindPersonal       Kind = "personal"
	KindCurrentMedical Kind = "current_medical"
	KindMedical        Kind = "medical"
)

var personalKeywords = []string{
	"my name", "my age", "my profile", "my medication", "my meds",
	"my glucose", "my readings", "my recent", "my blood sugar readings",
	"my progress", "my milestones", "my target", "my diet",
	"about me", "remember me",
}

var casualKeywords = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "thanks", "thank you", "bye", "goodbye", "what can you do",
	"who are you",
}

// currentInfoKeywords flag questions about recent research, approvals,
// and news that need fresh sources rather than the static knowledge base.
var currentInfoKeywords = []string{
	"latest", "recent", "new", "current", "2024", "2025", "breakthrough",
	"study", "research", "trial", "approved", "fda", "updated", "news",
	"this year", "recently", "just released", "emerging",
}

// Classify routes a message. Order matters: personal references beat
// casual greetings, and both beat the current-info check, so "hi, what
// are my medications" stays personal.
func Classify(message string) Kind {
	lower := strings.ToLower(message)

	for _, kw := range personalKeywords {
		if strings.Contains(lower, kw) {
			return KindPersonal
		}
	}
	for _, kw := range casualKeywords {
		if strings.Contains(lower, kw) {
			return KindCasual
		}
	}
	for _, kw := range currentInfoKeywords {
		if strings.Contains(lower, kw) {
			return KindCurrentMedical
		}
	}
	return KindMedical
}
