// Package retrieval routes answered questions through tiered sources:
// trusted web search for current-information questions, the curated
// knowledge base for general medical ones, and the generation service
// as the last resort. Each tier is attempted at most once per turn.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glucomate/glucomate/internal/classify"
	"github.com/glucomate/glucomate/internal/kb"
	"github.com/glucomate/glucomate/internal/websearch"
)

// Tier names the source that produced an answer.
type Tier string

const (
	TierWebSearch  Tier = "web_search"
	TierKnowledge  Tier = "knowledge_base"
	TierGenerative Tier = "generative"
	TierCasual     Tier = "casual"
)

// Searcher is the slice of the search client the orchestrator uses.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]websearch.Result, error)
}

// KnowledgeBase is the slice of the KB client the orchestrator uses.
type KnowledgeBase interface {
	RetrieveAndGenerate(ctx context.Context, query string) (kb.Answer, error)
}

// Generator is the slice of the generation client the orchestrator uses.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// PatientContext is the personalization snapshot injected into
// generative prompts. Zero values mean unknown.
type PatientContext struct {
	Name              string
	DiabetesType      string
	Age               int
	ActivityLevel     string
	DietaryNotes      string
	TargetGlucoseMin  int
	TargetGlucoseMax  int
	RecentGlucoseAvg  float64
	RecentReadingDays int
}

// Answer is the orchestrator's output before composition.
type Answer struct {
	Text         string
	Source       Tier
	Attributions []string
}

// Orchestrator runs the tier ladder.
type Orchestrator struct {
	search Searcher
	kb     KnowledgeBase
	gen    Generator
}

func NewOrchestrator(search Searcher, knowledge KnowledgeBase, gen Generator) *Orchestrator {
	return &Orchestrator{search: search, kb: knowledge, gen: gen}
}

// Answer resolves a classified question. Current-information questions
// start at web search; other medical questions start at the knowledge
// base. A failed or empty tier falls through to the next, and the
// generative tier answers from canned guidance when even it fails.
func (o *Orchestrator) Answer(ctx context.Context, kind classify.Kind, question string, pc PatientContext) Answer {
	switch kind {
	case classify.KindCasual:
		return o.casual(ctx, question, pc)
	case classify.KindCurrentMedical:
		if ans, ok := o.fromSearch(ctx, question); ok {
			return ans
		}
		slog.Warn("search tier failed, falling back to knowledge base", "question_len", len(question))
		fallthrough
	default:
		if ans, ok := o.fromKnowledgeBase(ctx, question); ok {
			return ans
		}
		slog.Warn("knowledge tier failed, falling back to generation", "question_len", len(question))
		return o.generative(ctx, question, pc)
	}
}

func (o *Orchestrator) casual(ctx context.Context, message string, pc PatientContext) Answer {
	prompt := "You are GlucoMate, a warm diabetes health companion. Reply briefly and kindly to this casual message, without medical content: " + message
	if pc.Name != "" {
		prompt += "\nThe patient's name is " + pc.Name + "."
	}
	text, err := o.gen.Generate(ctx, prompt, 150, 0.7)
	if err != nil {
		text = "Hi! I'm here to help with your diabetes questions whenever you're ready."
	}
	return Answer{Text: text, Source: TierCasual}
}

func (o *Orchestrator) fromSearch(ctx context.Context, question string) (Answer, bool) {
	results, err := o.search.Search(ctx, question, 5)
	if err != nil || len(results) == 0 {
		return Answer{}, false
	}

	var sources []string
	seen := make(map[string]bool)
	var sb strings.Builder
	for i, r := range results {
		inst := websearch.InstitutionFor(r.URL)
		if inst != "" && !seen[inst] {
			seen[inst] = true
			sources = append(sources, inst)
		}
		fmt.Fprintf(&sb, "Source %d (%s): %s\n%s\n\n", i+1, inst, r.Title, r.Snippet)
	}

	prompt := "Answer the patient's question using only the sourced material below. " +
		"Be accurate, warm, and concise, and do not invent findings.\n\n" +
		"Question: " + question + "\n\n" + sb.String()
	text, err := o.gen.Generate(ctx, prompt, 600, 0.2)
	if err != nil {
		return Answer{}, false
	}

	text += "\n\nSources: " + strings.Join(sources, ", ") + "."
	return Answer{Text: text, Source: TierWebSearch, Attributions: sources}, true
}

func (o *Orchestrator) fromKnowledgeBase(ctx context.Context, question string) (Answer, bool) {
	kbAns, err := o.kb.RetrieveAndGenerate(ctx, question)
	if err != nil {
		return Answer{}, false
	}

	// Normalize the KB's clinical register into companion tone.
	prompt := "Rewrite this medically accurate answer in a warm, encouraging voice " +
		"for a diabetes patient. Keep every fact intact.\n\n" + kbAns.Text
	text, err := o.gen.Generate(ctx, prompt, 600, 0.4)
	if err != nil {
		// The raw KB answer is still correct; use it as-is.
		text = kbAns.Text
	}

	text += "\n\nThis comes from established diabetes care guidelines."
	return Answer{Text: text, Source: TierKnowledge, Attributions: kbAns.Citations}, true
}

func (o *Orchestrator) generative(ctx context.Context, question string, pc PatientContext) Answer {
	prompt := "You are GlucoMate, a careful diabetes health companion. " +
		"Answer the question with general, safe guidance and recommend " +
		"confirming specifics with a healthcare provider.\n\n" +
		"Question: " + question + contextBlock(pc)
	text, err := o.gen.Generate(ctx, prompt, 600, 0.3)
	if err != nil {
		text = "I'm having trouble reaching my information sources right now. " +
			"For anything urgent, please contact your healthcare provider."
	}
	return Answer{Text: text, Source: TierGenerative}
}

func contextBlock(pc PatientContext) string {
	var lines []string
	if pc.Name != "" {
		lines = append(lines, "Name: "+pc.Name)
	}
	if pc.DiabetesType != "" {
		lines = append(lines, "Diabetes type: "+pc.DiabetesType)
	}
	if pc.Age > 0 {
		lines = append(lines, fmt.Sprintf("Age: %d", pc.Age))
	}
	if pc.ActivityLevel != "" {
		lines = append(lines, "Activity level: "+pc.ActivityLevel)
	}
	if pc.DietaryNotes != "" {
		lines = append(lines, "Dietary notes: "+pc.DietaryNotes)
	}
	if pc.TargetGlucoseMin > 0 && pc.TargetGlucoseMax > 0 {
		lines = append(lines, fmt.Sprintf("Target range: %d-%d mg/dL", pc.TargetGlucoseMin, pc.TargetGlucoseMax))
	}
	if pc.RecentGlucoseAvg > 0 {
		days := pc.RecentReadingDays
		if days <= 0 {
			days = 7
		}
		lines = append(lines, fmt.Sprintf("Average glucose over the last %d days: %.0f mg/dL", days, pc.RecentGlucoseAvg))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\nPatient context:\n" + strings.Join(lines, "\n")
}
