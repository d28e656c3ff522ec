// Package companion runs the full conversational turn: safety gate,
// guided flows, classification, tiered retrieval, insight capture, and
// response composition. One Service instance serves all patients;
// turns for the same patient are serialized.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glucomate/glucomate/internal/classify"
	"github.com/glucomate/glucomate/internal/compose"
	"github.com/glucomate/glucomate/internal/dialogue"
	"github.com/glucomate/glucomate/internal/insight"
	"github.com/glucomate/glucomate/internal/retrieval"
	"github.com/glucomate/glucomate/internal/safety"
	"github.com/glucomate/glucomate/internal/storage"
	"github.com/glucomate/glucomate/internal/trend"
)

// checkinInterval is how long after the last check-in the next one
// counts as due.
const checkinInterval = 7 * 24 * time.Hour

// Store is the slice of storage the service reads and writes directly.
// Flow commits go through the dialogue manager's own store.
type Store interface {
	GetProfile(patientID string) (storage.PatientProfile, error)
	RecentReadings(patientID string, limit int) ([]storage.GlucoseReading, error)
	SaveReading(r storage.GlucoseReading) error
	LastAssessmentDate(patientID string) (time.Time, error)
	CountAssessments(patientID string) (int, error)
	RecentAssessments(patientID string, limit int) ([]storage.WeeklyAssessment, error)
	ListMilestones(patientID string) ([]storage.Milestone, error)
	SaveInsight(ci storage.ConversationInsight) error
	RecentInsights(patientID string, limit int) ([]storage.ConversationInsight, error)
}

// Translator renders text across the patient's language and English.
type Translator interface {
	ToEnglish(ctx context.Context, text, sourceLang string) string
	FromEnglish(ctx context.Context, text, targetLang string) string
	Detect(ctx context.Context, text string) string
}

// Orchestrator answers classified questions.
type Orchestrator interface {
	Answer(ctx context.Context, kind classify.Kind, question string, pc retrieval.PatientContext) retrieval.Answer
}

// TrendAnalyzer processes a completed check-in.
type TrendAnalyzer interface {
	Analyze(patientID string) (trend.Report, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service is the conversational core.
type Service struct {
	store        Store
	gate         *safety.Gate
	sessions     *dialogue.Manager
	orchestrator Orchestrator
	translator   Translator
	composer     *compose.Composer
	trends       TrendAnalyzer
	clock        Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires a Service. The composer is built on the same translator so
// every outbound string passes through one localization path.
func New(store Store, sessions *dialogue.Manager, orchestrator Orchestrator, translator Translator, trends TrendAnalyzer) *Service {
	return &Service{
		store:        store,
		gate:         safety.NewGate(safety.DefaultRules()),
		sessions:     sessions,
		orchestrator: orchestrator,
		translator:   translator,
		composer:     compose.New(translator),
		trends:       trends,
		clock:        systemClock{},
		locks:        make(map[string]*sync.Mutex),
	}
}

// WithClock replaces the service clock. For tests.
func (s *Service) WithClock(c Clock) *Service {
	s.clock = c
	return s
}

func (s *Service) patientLock(patientID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[patientID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[patientID] = l
	}
	return l
}

// Chat handles one inbound message and returns the reply in the
// patient's language. Turns for the same patient never interleave.
func (s *Service) Chat(ctx context.Context, patientID, message string) (string, error) {
	lock := s.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.store.GetProfile(patientID)
	known := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("loading profile: %w", err)
	}

	lang := profile.Language
	if !known {
		lang = s.translator.Detect(ctx, message)
	}
	if lang == "" {
		lang = "en"
	}

	english := s.translator.ToEnglish(ctx, message, lang)

	// Safety first. An emergency bypasses everything, including any
	// active flow, which stays untouched for later.
	verdict := s.gate.Evaluate(english)
	if verdict.IsEmergency {
		return s.translator.FromEnglish(ctx, verdict.Message, lang), nil
	}

	if s.sessions.Active(patientID) {
		return s.flowTurn(ctx, patientID, english, lang, verdict)
	}

	if !known {
		prompt := s.sessions.StartOnboarding(patientID, lang, english)
		return s.finalize(ctx, prompt, english, lang, classify.KindPersonal, verdict), nil
	}

	if wantsCheckin(english) {
		prompt := s.sessions.StartCheckin(patientID)
		return s.finalize(ctx, prompt, english, lang, classify.KindPersonal, verdict), nil
	}

	// An explicit profile request, or a personalization-requiring one
	// against an incomplete profile, detours through onboarding first.
	if wantsProfileUpdate(english) {
		prompt := s.sessions.StartOnboarding(patientID, lang, "")
		return s.finalize(ctx, prompt, english, lang, classify.KindPersonal, verdict), nil
	}
	if profileIncomplete(profile) && needsPersonalization(english) {
		prompt := s.sessions.StartOnboarding(patientID, lang, english)
		return s.finalize(ctx, prompt, english, lang, classify.KindPersonal, verdict), nil
	}

	kind := classify.Classify(english)

	var answer string
	if kind == classify.KindPersonal {
		answer = s.answerPersonal(profile, english)
	} else {
		ans := s.orchestrator.Answer(ctx, kind, english, s.patientContext(profile))
		answer = ans.Text
	}

	s.recordInsight(patientID, english)

	if s.checkinDue(patientID) {
		answer = "By the way, you're due for your weekly check-in. Just say \"check in\" whenever you're ready.\n\n" + answer
	}

	return s.composer.Compose(ctx, compose.Input{
		Answer:      answer,
		UserMessage: english,
		Kind:        kind,
		Urgency:     verdict.Urgency,
		WarningNote: verdict.Message,
		Language:    lang,
	}), nil
}

// flowTurn advances the active guided flow and, after a completed
// check-in, appends trend insights and milestone congratulations. Flow
// replies pass through the composer like every other turn, so a warning
// verdict on the answer text still leads the reply.
func (s *Service) flowTurn(ctx context.Context, patientID, english, lang string, verdict safety.Result) (string, error) {
	reply, err := s.sessions.Advance(patientID, english)
	if err != nil {
		// Persist failures keep the session resumable; the reply
		// already tells the patient to retry.
		slog.Error("flow turn failed", "patient", patientID, "error", err)
		return s.finalize(ctx, reply.Text, english, lang, classify.KindPersonal, verdict), nil
	}

	text := reply.Text
	kind := classify.KindPersonal

	// Onboarding was triggered by a real question; answer it now that
	// the profile exists. The resumed answer keeps its own
	// classification so the composer can attach the right disclaimer.
	if reply.Completed && reply.Profile != nil && reply.Origin != "" {
		if k := classify.Classify(reply.Origin); k != classify.KindCasual {
			ans := s.orchestrator.Answer(ctx, k, reply.Origin, s.patientContext(*reply.Profile))
			text += "\n\nNow, about your question earlier:\n\n" + ans.Text
			kind = k
		}
	}

	if reply.Completed && reply.Assessment != nil {
		report, err := s.trends.Analyze(patientID)
		if err != nil {
			slog.Warn("trend analysis failed", "patient", patientID, "error", err)
		} else {
			for _, line := range report.Insights {
				text += "\n\n" + line
			}
			for _, m := range report.NewMilestones {
				text += "\n\nMilestone unlocked: " + m.Title + " " + m.Description
			}
		}
	}

	return s.finalize(ctx, text, english, lang, kind, verdict), nil
}

// finalize runs one reply through the composer.
func (s *Service) finalize(ctx context.Context, text, english, lang string, kind classify.Kind, verdict safety.Result) string {
	return s.composer.Compose(ctx, compose.Input{
		Answer:      text,
		UserMessage: english,
		Kind:        kind,
		Urgency:     verdict.Urgency,
		WarningNote: verdict.Message,
		Language:    lang,
	})
}

// StartCheckin begins the weekly check-in flow directly, bypassing
// message matching. Used by the API and CLI.
func (s *Service) StartCheckin(ctx context.Context, patientID string) (string, error) {
	lock := s.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.store.GetProfile(patientID)
	if err != nil {
		return "", fmt.Errorf("loading profile: %w", err)
	}
	prompt := s.sessions.StartCheckin(patientID)
	return s.translator.FromEnglish(ctx, prompt, profile.Language), nil
}

func wantsCheckin(english string) bool {
	lower := strings.ToLower(english)
	return strings.Contains(lower, "check in") ||
		strings.Contains(lower, "check-in") ||
		strings.Contains(lower, "checkin") ||
		strings.Contains(lower, "weekly questions")
}

func wantsProfileUpdate(english string) bool {
	lower := strings.ToLower(english)
	return strings.Contains(lower, "set up my profile") ||
		strings.Contains(lower, "update my profile") ||
		strings.Contains(lower, "personalize")
}

// needsPersonalization flags requests that are only useful with a
// reasonably complete profile.
func needsPersonalization(english string) bool {
	lower := strings.ToLower(english)
	return strings.Contains(lower, "meal plan") ||
		strings.Contains(lower, "diet plan") ||
		strings.Contains(lower, "plan my meals")
}

// profileIncomplete reports whether the essential fields are missing.
func profileIncomplete(p storage.PatientProfile) bool {
	return p.DiabetesType == "" || p.Age == 0 || p.ActivityLevel == ""
}

func (s *Service) checkinDue(patientID string) bool {
	last, err := s.store.LastAssessmentDate(patientID)
	if errors.Is(err, storage.ErrNotFound) {
		return true
	}
	if err != nil {
		slog.Warn("could not determine check-in due state", "patient", patientID, "error", err)
		return false
	}
	return s.clock.Now().Sub(last) >= checkinInterval
}

func (s *Service) recordInsight(patientID, english string) {
	ci := insight.Detect(patientID, english, s.clock.Now())
	if err := s.store.SaveInsight(ci); err != nil {
		slog.Warn("failed to record conversation insight", "patient", patientID, "error", err)
	}
}

func (s *Service) patientContext(p storage.PatientProfile) retrieval.PatientContext {
	pc := retrieval.PatientContext{
		Name:             p.Name,
		DiabetesType:     p.DiabetesType,
		Age:              p.Age,
		ActivityLevel:    p.ActivityLevel,
		DietaryNotes:     p.DietaryRestrictions,
		TargetGlucoseMin: p.TargetGlucoseMin,
		TargetGlucoseMax: p.TargetGlucoseMax,
	}

	readings, err := s.store.RecentReadings(p.PatientID, 20)
	if err != nil || len(readings) == 0 {
		return pc
	}
	cutoff := s.clock.Now().Add(-7 * 24 * time.Hour)
	var sum float64
	var n int
	for _, r := range readings {
		if r.TakenAt.Before(cutoff) {
			continue
		}
		sum += r.Value
		n++
	}
	if n > 0 {
		pc.RecentGlucoseAvg = sum / float64(n)
		pc.RecentReadingDays = 7
	}
	return pc
}

// answerPersonal answers from stored patient data without retrieval.
func (s *Service) answerPersonal(p storage.PatientProfile, english string) string {
	lower := strings.ToLower(english)

	if strings.Contains(lower, "progress") || strings.Contains(lower, "milestone") {
		milestones, err := s.store.ListMilestones(p.PatientID)
		if err != nil || len(milestones) == 0 {
			return "No milestones yet, but every check-in gets you closer. Keep going!"
		}
		var sb strings.Builder
		sb.WriteString("Here's what you've achieved so far:\n")
		for _, m := range milestones {
			fmt.Fprintf(&sb, "- %s (%s)\n", m.Title, m.AchievedDate.Format("Jan 2, 2006"))
		}
		return sb.String()
	}

	if strings.Contains(lower, "glucose") || strings.Contains(lower, "reading") || strings.Contains(lower, "blood sugar") {
		readings, err := s.store.RecentReadings(p.PatientID, 5)
		if err != nil || len(readings) == 0 {
			return "I don't have any glucose readings from you yet. You can log one any time."
		}
		var sb strings.Builder
		sb.WriteString("Your most recent readings:\n")
		for _, r := range readings {
			fmt.Fprintf(&sb, "- %.0f mg/dL on %s\n", r.Value, r.TakenAt.Format("Jan 2 at 15:04"))
		}
		return sb.String()
	}

	var parts []string
	if p.Name != "" {
		parts = append(parts, "your name is "+p.Name)
	}
	if p.DiabetesType != "" {
		parts = append(parts, "you manage "+p.DiabetesType+" diabetes")
	}
	if p.Age > 0 {
		parts = append(parts, fmt.Sprintf("you're %d", p.Age))
	}
	if p.TargetGlucoseMin > 0 && p.TargetGlucoseMax > 0 {
		parts = append(parts, fmt.Sprintf("your target range is %d-%d mg/dL", p.TargetGlucoseMin, p.TargetGlucoseMax))
	}
	if len(parts) == 0 {
		return "I don't have much on file for you yet. Want to set up your profile?"
	}
	return "Here's what I have: " + strings.Join(parts, ", ") + "."
}

// LogReading stores an ad hoc glucose reading and returns a short
// acknowledgement, with an in-range note when targets are set.
func (s *Service) LogReading(ctx context.Context, patientID string, value float64, mealContext, notes string) (string, error) {
	lock := s.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.store.GetProfile(patientID)
	if err != nil {
		return "", fmt.Errorf("loading profile: %w", err)
	}

	r := storage.GlucoseReading{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		Value:       value,
		MealContext: mealContext,
		Notes:       notes,
		TakenAt:     s.clock.Now().UTC(),
	}
	if err := s.store.SaveReading(r); err != nil {
		return "", fmt.Errorf("saving reading: %w", err)
	}

	ack := fmt.Sprintf("Logged %.0f mg/dL.", value)
	if profile.TargetGlucoseMin > 0 && profile.TargetGlucoseMax > 0 {
		switch {
		case value < float64(profile.TargetGlucoseMin):
			ack += " That's below your target range; consider a snack and recheck soon."
		case value > float64(profile.TargetGlucoseMax):
			ack += " That's above your target range; some water and a short walk can help."
		default:
			ack += " Right in your target range, nicely done."
		}
	}
	return s.translator.FromEnglish(ctx, ack, profile.Language), nil
}

// Report summarizes the patient's recent history: check-ins, milestones,
// the energy trend over the last four weeks, and mood balance.
func (s *Service) Report(ctx context.Context, patientID string) (string, error) {
	profile, err := s.store.GetProfile(patientID)
	if err != nil {
		return "", fmt.Errorf("loading profile: %w", err)
	}

	count, err := s.store.CountAssessments(patientID)
	if err != nil {
		return "", fmt.Errorf("counting assessments: %w", err)
	}
	milestones, err := s.store.ListMilestones(patientID)
	if err != nil {
		return "", fmt.Errorf("listing milestones: %w", err)
	}

	var sb strings.Builder
	name := profile.Name
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&sb, "Hi %s, here's your progress report.\n\n", name)
	fmt.Fprintf(&sb, "Weekly check-ins completed: %d\n", count)
	fmt.Fprintf(&sb, "Milestones earned: %d\n", len(milestones))
	for _, m := range milestones {
		fmt.Fprintf(&sb, "- %s\n", m.Title)
	}

	if trendLine := s.energyTrend(patientID); trendLine != "" {
		sb.WriteString("\n" + trendLine + "\n")
	}
	if moodLine := s.moodBalance(patientID); moodLine != "" {
		sb.WriteString(moodLine + "\n")
	}

	return s.translator.FromEnglish(ctx, sb.String(), profile.Language), nil
}

// energyTrend compares the two newest of the last four assessments
// against the older two, with a deadband so noise reads as stable.
func (s *Service) energyTrend(patientID string) string {
	recent, err := s.store.RecentAssessments(patientID, 4)
	if err != nil || len(recent) < 2 {
		return ""
	}

	half := len(recent) / 2
	newer := avgEnergy(recent[:half])
	older := avgEnergy(recent[half:])

	switch {
	case newer-older > 0.5:
		return "Your energy trend over the last few weeks: improving."
	case older-newer > 0.5:
		return "Your energy trend over the last few weeks: declining. Worth mentioning at your next appointment."
	default:
		return "Your energy trend over the last few weeks: stable."
	}
}

func avgEnergy(assessments []storage.WeeklyAssessment) float64 {
	if len(assessments) == 0 {
		return 0
	}
	var sum float64
	for _, a := range assessments {
		sum += float64(a.EnergyLevel)
	}
	return sum / float64(len(assessments))
}

func (s *Service) moodBalance(patientID string) string {
	insights, err := s.store.RecentInsights(patientID, 10)
	if err != nil || len(insights) == 0 {
		return ""
	}
	positive := 0
	for _, ci := range insights {
		if ci.Mood == "positive" {
			positive++
		}
	}
	share := positive * 100 / len(insights)
	return fmt.Sprintf("Positive conversations lately: %d%%.", share)
}
