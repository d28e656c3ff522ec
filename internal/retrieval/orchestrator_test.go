package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/glucomate/glucomate/internal/classify"
	"github.com/glucomate/glucomate/internal/kb"
	"github.com/glucomate/glucomate/internal/websearch"
)

type mockSearcher struct {
	mu      sync.Mutex
	results []websearch.Result
	err     error
	calls   int
}

func (m *mockSearcher) Search(_ context.Context, query string, limit int) ([]websearch.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.results, m.err
}

type mockKB struct {
	mu     sync.Mutex
	answer kb.Answer
	err    error
	calls  int
}

func (m *mockKB) RetrieveAndGenerate(_ context.Context, query string) (kb.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.answer, m.err
}

type mockGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	last  string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = prompt
	return m.text, m.err
}

func TestCurrentMedicalUsesSearchTier(t *testing.T) {
	search := &mockSearcher{results: []websearch.Result{
		{Title: "New CGM approved", URL: "https://www.mayoclinic.org/x", Snippet: "details"},
		{Title: "ADA update", URL: "https://diabetes.org/y", Snippet: "details"},
	}}
	knowledge := &mockKB{}
	gen := &mockGenerator{text: "Here is what the latest research says."}

	o := NewOrchestrator(search, knowledge, gen)
	ans := o.Answer(context.Background(), classify.KindCurrentMedical, "latest cgm news", PatientContext{})

	if ans.Source != TierWebSearch {
		t.Fatalf("Source = %q, want web_search", ans.Source)
	}
	if !strings.Contains(ans.Text, "Mayo Clinic") {
		t.Errorf("Text = %q, want institution attribution", ans.Text)
	}
	if len(ans.Attributions) != 2 {
		t.Errorf("Attributions = %v, want 2 institutions", ans.Attributions)
	}
	if knowledge.calls != 0 {
		t.Error("knowledge base should not be consulted when search succeeds")
	}
}

func TestSearchFailureFallsBackToKnowledgeBase(t *testing.T) {
	search := &mockSearcher{err: errors.New("search down")}
	knowledge := &mockKB{answer: kb.Answer{Text: "Guideline answer.", Citations: []string{"ADA 2025"}}}
	gen := &mockGenerator{text: "Friendly guideline answer."}

	o := NewOrchestrator(search, knowledge, gen)
	ans := o.Answer(context.Background(), classify.KindCurrentMedical, "latest news", PatientContext{})

	if ans.Source != TierKnowledge {
		t.Fatalf("Source = %q, want knowledge_base", ans.Source)
	}
	if search.calls != 1 {
		t.Errorf("search calls = %d, want exactly 1", search.calls)
	}
	if !strings.Contains(ans.Text, "established diabetes care guidelines") {
		t.Errorf("Text = %q, want guideline attribution", ans.Text)
	}
}

func TestMedicalSkipsSearchEntirely(t *testing.T) {
	search := &mockSearcher{results: []websearch.Result{{URL: "https://diabetes.org/z"}}}
	knowledge := &mockKB{answer: kb.Answer{Text: "A1C below 7% for most adults."}}
	gen := &mockGenerator{text: "Warm A1C answer."}

	o := NewOrchestrator(search, knowledge, gen)
	ans := o.Answer(context.Background(), classify.KindMedical, "what is a good a1c", PatientContext{})

	if ans.Source != TierKnowledge {
		t.Fatalf("Source = %q, want knowledge_base", ans.Source)
	}
	if search.calls != 0 {
		t.Error("general medical questions must not hit web search")
	}
}

func TestEveryTierFailsEndsGenerative(t *testing.T) {
	search := &mockSearcher{err: errors.New("down")}
	knowledge := &mockKB{err: errors.New("down")}
	gen := &mockGenerator{err: errors.New("down")}

	o := NewOrchestrator(search, knowledge, gen)
	ans := o.Answer(context.Background(), classify.KindCurrentMedical, "latest news", PatientContext{})

	if ans.Source != TierGenerative {
		t.Fatalf("Source = %q, want generative", ans.Source)
	}
	if search.calls != 1 || knowledge.calls != 1 {
		t.Errorf("tiers tried search=%d kb=%d, want each exactly once", search.calls, knowledge.calls)
	}
	if !strings.Contains(ans.Text, "healthcare provider") {
		t.Errorf("Text = %q, want safe fallback guidance", ans.Text)
	}
}

func TestKnowledgeBaseToneFailureKeepsRawAnswer(t *testing.T) {
	knowledge := &mockKB{answer: kb.Answer{Text: "Raw clinical answer."}}
	gen := &mockGenerator{err: errors.New("down")}

	o := NewOrchestrator(&mockSearcher{}, knowledge, gen)
	ans := o.Answer(context.Background(), classify.KindMedical, "q", PatientContext{})

	if ans.Source != TierKnowledge {
		t.Fatalf("Source = %q, want knowledge_base", ans.Source)
	}
	if !strings.Contains(ans.Text, "Raw clinical answer.") {
		t.Errorf("Text = %q, want raw KB answer preserved", ans.Text)
	}
}

func TestCasualShortCircuits(t *testing.T) {
	search := &mockSearcher{}
	knowledge := &mockKB{}
	gen := &mockGenerator{text: "Hi there!"}

	o := NewOrchestrator(search, knowledge, gen)
	ans := o.Answer(context.Background(), classify.KindCasual, "hello", PatientContext{Name: "Sara"})

	if ans.Source != TierCasual {
		t.Fatalf("Source = %q, want casual", ans.Source)
	}
	if search.calls != 0 || knowledge.calls != 0 {
		t.Error("casual messages must not touch retrieval tiers")
	}
	if !strings.Contains(gen.last, "Sara") {
		t.Errorf("prompt = %q, want patient name included", gen.last)
	}
}

func TestGenerativePromptCarriesPatientContext(t *testing.T) {
	gen := &mockGenerator{text: "answer"}
	o := NewOrchestrator(&mockSearcher{err: errors.New("x")}, &mockKB{err: errors.New("x")}, gen)

	pc := PatientContext{
		DiabetesType:     "Type 2",
		Age:              34,
		TargetGlucoseMin: 80,
		TargetGlucoseMax: 140,
		RecentGlucoseAvg: 132,
	}
	o.Answer(context.Background(), classify.KindMedical, "snack ideas?", pc)

	for _, want := range []string{"Type 2", "Age: 34", "80-140 mg/dL", "132"} {
		if !strings.Contains(gen.last, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
