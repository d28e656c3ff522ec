package dialogue

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glucomate/glucomate/internal/storage"
)

type mockStore struct {
	mu          sync.Mutex
	profiles    []storage.PatientProfile
	assessments []storage.WeeklyAssessment
	failNext    error
}

func (m *mockStore) UpsertProfile(p storage.PatientProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.profiles = append(m.profiles, p)
	return nil
}

func (m *mockStore) SaveAssessment(a storage.WeeklyAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.assessments = append(m.assessments, a)
	return nil
}

type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

func TestOnboardingFlow(t *testing.T) {
	store := &mockStore{}
	m := NewManager(store)

	prompt := m.StartOnboarding("p1", "en", "")
	if !strings.Contains(prompt, "call you") {
		t.Errorf("first prompt = %q", prompt)
	}
	if m.StateOf("p1") != StateCollectingProfile {
		t.Errorf("state = %q", m.StateOf("p1"))
	}

	steps := []struct {
		answer       string
		wantContains string
	}{
		{"Sara", "type of diabetes"},
		{"t2", "old are you"},
		{"not telling", "number"}, // invalid age re-asks
		{"34", "weight"},          // recovers
		{"400", "between 20 and 300"},
		{"82", "activity level"},
		{"moderately active", "dietary"},
		{"skip", "lower end"},
		{"80", "upper end"},
		{"70", "above your lower end"}, // max must exceed min
		{"140", "all set, Sara"},
	}
	for i, step := range steps {
		reply, err := m.Advance("p1", step.answer)
		if err != nil {
			t.Fatalf("step %d: Advance(%q) error = %v", i, step.answer, err)
		}
		if !strings.Contains(reply.Text, step.wantContains) {
			t.Fatalf("step %d: Advance(%q) = %q, want substring %q", i, step.answer, reply.Text, step.wantContains)
		}
	}

	if len(store.profiles) != 1 {
		t.Fatalf("profiles committed = %d, want exactly 1", len(store.profiles))
	}
	p := store.profiles[0]
	if p.Name != "Sara" || p.DiabetesType != "Type 2" || p.Age != 34 {
		t.Errorf("profile = %+v", p)
	}
	if p.Weight != 82 {
		t.Errorf("Weight = %v, want 82", p.Weight)
	}
	if p.ActivityLevel != "Moderate" {
		t.Errorf("ActivityLevel = %q, want Moderate", p.ActivityLevel)
	}
	if p.DietaryRestrictions != "" {
		t.Errorf("skipped field should be empty, got %q", p.DietaryRestrictions)
	}
	if p.TargetGlucoseMin != 80 || p.TargetGlucoseMax != 140 {
		t.Errorf("targets = %d/%d", p.TargetGlucoseMin, p.TargetGlucoseMax)
	}
	if m.Active("p1") {
		t.Error("session should be closed after completion")
	}
}

func TestOnboardingCarriesOrigin(t *testing.T) {
	store := &mockStore{}
	m := NewManager(store)

	m.StartOnboarding("p1", "en", "what should I eat for breakfast?")

	answers := []string{"skip", "t1", "30", "skip", "light", "skip", "skip", "skip"}
	var last Reply
	for i, a := range answers {
		var err error
		last, err = m.Advance("p1", a)
		if err != nil {
			t.Fatalf("answer %d (%q): error = %v", i, a, err)
		}
	}

	if !last.Completed {
		t.Fatalf("final reply = %+v, want completed", last)
	}
	if last.Origin != "what should I eat for breakfast?" {
		t.Errorf("Origin = %q, want the triggering question", last.Origin)
	}
}

func TestStopCancelsAndDiscards(t *testing.T) {
	store := &mockStore{}
	m := NewManager(store)

	m.StartOnboarding("p1", "en", "")
	if _, err := m.Advance("p1", "Sara"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	reply, err := m.Advance("p1", "not now")
	if err != nil {
		t.Fatalf("Advance(stop) error = %v", err)
	}
	if !reply.Done || reply.Completed {
		t.Errorf("reply = %+v, want Done without Completed", reply)
	}
	if m.Active("p1") {
		t.Error("session should be gone after cancel")
	}
	if len(store.profiles) != 0 {
		t.Error("cancelled flow must not write anything")
	}
}

func TestSkipOnRequiredReasks(t *testing.T) {
	m := NewManager(&mockStore{})
	m.StartOnboarding("p1", "en", "")
	m.Advance("p1", "skip") // name is optional

	reply, err := m.Advance("p1", "skip") // diabetes_type is required
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if !strings.Contains(reply.Text, "need this one") {
		t.Errorf("reply = %q, want required-field re-ask", reply.Text)
	}
	if m.StateOf("p1") != StateCollectingProfile {
		t.Error("flow should still be active")
	}
}

func TestCheckinFlow(t *testing.T) {
	store := &mockStore{}
	clock := &mockClock{now: time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)}
	m := NewManager(store).WithClock(clock)

	prompt := m.StartCheckin("p1")
	if !strings.Contains(prompt, "check-in") {
		t.Errorf("prompt = %q", prompt)
	}

	answers := []string{"1", "2", "7", "6", "1", "feeling pretty good"}
	var last Reply
	for i, a := range answers {
		var err error
		last, err = m.Advance("p1", a)
		if err != nil {
			t.Fatalf("answer %d (%q): error = %v", i, a, err)
		}
	}

	if !last.Completed || last.Assessment == nil {
		t.Fatalf("final reply = %+v, want completed with assessment", last)
	}
	if len(store.assessments) != 1 {
		t.Fatalf("assessments committed = %d, want 1", len(store.assessments))
	}
	a := store.assessments[0]
	if a.GlucoseFrequency != "multiple_daily" {
		t.Errorf("GlucoseFrequency = %q", a.GlucoseFrequency)
	}
	if a.RangeCompliance != 75 {
		t.Errorf("RangeCompliance = %d, want 75", a.RangeCompliance)
	}
	if a.EnergyLevel != 7 || a.SleepQuality != 6 {
		t.Errorf("energy/sleep = %d/%d", a.EnergyLevel, a.SleepQuality)
	}
	if a.MedicationAdherence != 100 {
		t.Errorf("MedicationAdherence = %d, want 100", a.MedicationAdherence)
	}
	if a.Concerns != "feeling pretty good" {
		t.Errorf("Concerns = %q", a.Concerns)
	}
	wantDate := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !a.WeekDate.Equal(wantDate) {
		t.Errorf("WeekDate = %v, want %v", a.WeekDate, wantDate)
	}
}

func TestCommitFailureKeepsAnswers(t *testing.T) {
	store := &mockStore{}
	m := NewManager(store).WithClock(&mockClock{now: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)})

	m.StartCheckin("p1")
	answers := []string{"1", "1", "8", "8", "1"}
	for _, a := range answers {
		if _, err := m.Advance("p1", a); err != nil {
			t.Fatalf("Advance(%q) error = %v", a, err)
		}
	}

	store.failNext = errors.New("disk full")
	reply, err := m.Advance("p1", "skip")
	if err == nil {
		t.Fatal("Advance() error = nil, want persist failure")
	}
	if !strings.Contains(reply.Text, "try again") {
		t.Errorf("reply = %q, want retry guidance", reply.Text)
	}
	if !m.Active("p1") {
		t.Fatal("session must survive a failed commit")
	}

	// Next turn retries the commit without consuming the message.
	reply, err = m.Advance("p1", "hello?")
	if err != nil {
		t.Fatalf("retry Advance() error = %v", err)
	}
	if !reply.Completed {
		t.Errorf("retry reply = %+v, want completed", reply)
	}
	if len(store.assessments) != 1 {
		t.Fatalf("assessments = %d, want 1", len(store.assessments))
	}
	if store.assessments[0].Concerns != "" {
		t.Errorf("Concerns = %q, want empty (skipped)", store.assessments[0].Concerns)
	}
}

func TestValidateDiabetesTypeSynonyms(t *testing.T) {
	q := Question{Field: "diabetes_type", Kind: FieldText, Required: true}
	cases := []struct {
		in   string
		want string
	}{
		{"Type 1", "Type 1"},
		{"t1", "Type 1"},
		{"I have type 2 diabetes", "Type 2"},
		{"gdm", "Gestational"},
		{"pre-diabetes", "Prediabetes"},
	}
	for _, tc := range cases {
		res := validateAnswer(q, tc.in, nil)
		if !res.OK || res.Value != tc.want {
			t.Errorf("validateAnswer(%q) = %+v, want %q", tc.in, res, tc.want)
		}
	}
	if res := validateAnswer(q, "maybe", nil); res.OK {
		t.Error("unrecognized type should not validate")
	}
}

func TestValidateScaleBounds(t *testing.T) {
	q := Question{Field: "energy_level", Kind: FieldScale, Required: true, Min: 1, Max: 10}
	if res := validateAnswer(q, "11", nil); res.OK {
		t.Error("out-of-range scale should not validate")
	}
	if res := validateAnswer(q, "0", nil); res.OK {
		t.Error("out-of-range scale should not validate")
	}
	if res := validateAnswer(q, "7 I guess", nil); !res.OK || res.Value != "7" {
		t.Errorf("validateAnswer(7 I guess) = %+v", res)
	}
}
