// Package dialogue runs the guided slot-filling flows: profile
// onboarding and the weekly check-in. Answers accumulate in memory and
// are committed to storage in a single write when a flow completes;
// cancelling discards everything.
package dialogue

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glucomate/glucomate/internal/storage"
)

// State names the flow a patient is currently in.
type State string

const (
	StateIdle              State = "idle"
	StateCollectingProfile State = "collecting_profile"
	StateWeeklyCheckin     State = "weekly_checkin"
)

// stopWords cancel the active flow outright.
var stopWords = map[string]bool{
	"stop":    true,
	"quit":    true,
	"cancel":  true,
	"later":   true,
	"not now": true,
	"exit":    true,
}

const skipWord = "skip"

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store is the slice of storage the session manager commits to.
type Store interface {
	UpsertProfile(p storage.PatientProfile) error
	SaveAssessment(a storage.WeeklyAssessment) error
}

// Reply is the outcome of one turn inside a flow.
type Reply struct {
	Text      string
	Done      bool // the flow ended this turn
	Completed bool // the flow ended by finishing, not cancelling
	// Assessment is set when a completed check-in was committed, so the
	// caller can run trend analysis on it.
	Assessment *storage.WeeklyAssessment
	// Profile is set when a completed onboarding was committed.
	Profile *storage.PatientProfile
	// Origin is the message that triggered onboarding, returned on
	// completion so the caller can answer it with the new profile.
	Origin string
}

type session struct {
	state     State
	language  string
	origin    string
	questions []Question
	idx       int
	answers   map[string]string
	// complete is set when all answers are collected but the commit
	// failed; the next turn retries the commit instead of consuming
	// the message as an answer.
	complete bool
}

// Manager tracks at most one active flow per patient.
type Manager struct {
	store Store
	clock Clock

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a Manager committing to store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		clock:    systemClock{},
		sessions: make(map[string]*session),
	}
}

// WithClock replaces the manager's clock. For tests.
func (m *Manager) WithClock(c Clock) *Manager {
	m.clock = c
	return m
}

// StateOf returns the patient's current flow state.
func (m *Manager) StateOf(patientID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[patientID]; ok {
		return s.state
	}
	return StateIdle
}

// Active reports whether the patient has a flow in progress.
func (m *Manager) Active(patientID string) bool {
	return m.StateOf(patientID) != StateIdle
}

// StartOnboarding begins the profile flow and returns the first prompt.
// origin is the message that prompted onboarding; it is handed back on
// completion so the caller can answer it. If a flow is already active,
// its current prompt is returned instead.
func (m *Manager) StartOnboarding(patientID, language, origin string) string {
	return m.start(patientID, StateCollectingProfile, language, origin, ProfileQuestions(),
		"Let's set up your profile so I can personalize my advice. You can say \"stop\" at any time.\n\n")
}

// StartCheckin begins the weekly check-in flow and returns the first prompt.
func (m *Manager) StartCheckin(patientID string) string {
	return m.start(patientID, StateWeeklyCheckin, "", "",
		CheckinQuestions(),
		"Time for your weekly check-in. Six quick questions; say \"stop\" to do this later.\n\n")
}

func (m *Manager) start(patientID string, state State, language, origin string, questions []Question, intro string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[patientID]; ok {
		return s.questions[s.idx].Prompt
	}
	s := &session{
		state:     state,
		language:  language,
		origin:    origin,
		questions: questions,
		answers:   make(map[string]string),
	}
	m.sessions[patientID] = s
	return intro + s.questions[0].Prompt
}

// Advance feeds one message into the patient's active flow. Calling it
// with no active flow is an error.
func (m *Manager) Advance(patientID, message string) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[patientID]
	if !ok {
		return Reply{}, fmt.Errorf("no active session for patient %s", patientID)
	}

	if s.complete {
		return m.commit(patientID, s)
	}

	trimmed := strings.ToLower(strings.TrimSpace(message))
	if stopWords[trimmed] {
		delete(m.sessions, patientID)
		return Reply{
			Text: "No problem, we can pick this up whenever you like. What else can I help with?",
			Done: true,
		}, nil
	}

	q := s.questions[s.idx]
	if trimmed == skipWord {
		if q.Required {
			return Reply{Text: "I do need this one to help you properly. " + q.Prompt}, nil
		}
		return m.advance(patientID, s)
	}

	res := validateAnswer(q, message, s.answers)
	if !res.OK {
		return Reply{Text: res.Hint}, nil
	}
	s.answers[q.Field] = res.Value
	return m.advance(patientID, s)
}

// advance moves to the next question, or commits when the flow is done.
// Caller holds m.mu.
func (m *Manager) advance(patientID string, s *session) (Reply, error) {
	s.idx++
	if s.idx < len(s.questions) {
		return Reply{Text: s.questions[s.idx].Prompt}, nil
	}
	s.complete = true
	return m.commit(patientID, s)
}

// commit writes the collected answers in one store call. On failure the
// session survives so the answers are not lost. Caller holds m.mu.
func (m *Manager) commit(patientID string, s *session) (Reply, error) {
	switch s.state {
	case StateCollectingProfile:
		p := profileFromAnswers(patientID, s.language, s.answers)
		if err := m.store.UpsertProfile(p); err != nil {
			return Reply{Text: "I couldn't save your profile just now. Send any message and I'll try again."},
				fmt.Errorf("saving profile: %w", err)
		}
		delete(m.sessions, patientID)
		name := p.Name
		if name == "" {
			name = "all set"
		} else {
			name = "all set, " + name
		}
		return Reply{
			Text:      "You're " + name + "! I'll use this to tailor my advice. Ask me anything about managing your diabetes.",
			Done:      true,
			Completed: true,
			Profile:   &p,
			Origin:    s.origin,
		}, nil

	case StateWeeklyCheckin:
		a := assessmentFromAnswers(patientID, s.answers, m.clock.Now())
		if err := m.store.SaveAssessment(a); err != nil {
			return Reply{Text: "I couldn't save your check-in just now. Send any message and I'll try again."},
				fmt.Errorf("saving assessment: %w", err)
		}
		delete(m.sessions, patientID)
		return Reply{
			Text:       "Thanks for checking in! I've recorded this week.",
			Done:       true,
			Completed:  true,
			Assessment: &a,
		}, nil
	}
	delete(m.sessions, patientID)
	return Reply{}, fmt.Errorf("unknown session state %q", s.state)
}

func profileFromAnswers(patientID, language string, answers map[string]string) storage.PatientProfile {
	p := storage.PatientProfile{
		PatientID:           patientID,
		Name:                answers["name"],
		DiabetesType:        answers["diabetes_type"],
		ActivityLevel:       answers["activity_level"],
		DietaryRestrictions: answers["dietary_restrictions"],
		Language:            language,
	}
	p.Age, _ = strconv.Atoi(answers["age"])
	p.Weight, _ = strconv.ParseFloat(answers["weight_kg"], 64)
	p.TargetGlucoseMin, _ = strconv.Atoi(answers["target_glucose_min"])
	p.TargetGlucoseMax, _ = strconv.Atoi(answers["target_glucose_max"])
	return p
}

func assessmentFromAnswers(patientID string, answers map[string]string, now time.Time) storage.WeeklyAssessment {
	a := storage.WeeklyAssessment{
		ID:               uuid.NewString(),
		PatientID:        patientID,
		WeekDate:         now.UTC().Truncate(24 * time.Hour),
		GlucoseFrequency: answers["glucose_frequency"],
		Concerns:         answers["concerns"],
	}
	a.RangeCompliance, _ = strconv.Atoi(answers["range_compliance"])
	a.EnergyLevel, _ = strconv.Atoi(answers["energy_level"])
	a.SleepQuality, _ = strconv.Atoi(answers["sleep_quality"])
	a.MedicationAdherence, _ = strconv.Atoi(answers["medication_adherence"])
	return a
}
