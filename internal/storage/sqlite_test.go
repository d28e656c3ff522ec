package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGetProfile(t *testing.T) {
	s := openTestStore(t)

	p := PatientProfile{
		PatientID:     "patient-1",
		Name:          "Sara",
		Age:           34,
		DiabetesType:  "Type 2",
		ActivityLevel: "Moderate",
		Language:      "es",
	}
	if err := s.UpsertProfile(p); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}

	got, err := s.GetProfile("patient-1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Name != "Sara" || got.Age != 34 || got.DiabetesType != "Type 2" {
		t.Errorf("GetProfile() = %+v, want fields from inserted profile", got)
	}
	if got.Language != "es" {
		t.Errorf("Language = %q, want %q", got.Language, "es")
	}
	if got.TargetGlucoseMin != 0 || got.Weight != 0 {
		t.Errorf("optional fields should stay zero, got min=%d weight=%f", got.TargetGlucoseMin, got.Weight)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestUpsertProfileUpdatesExisting(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertProfile(PatientProfile{PatientID: "p1", Name: "Ali", Age: 40}); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}
	if err := s.UpsertProfile(PatientProfile{PatientID: "p1", Name: "Ali", Age: 41, TargetGlucoseMin: 80, TargetGlucoseMax: 140}); err != nil {
		t.Fatalf("UpsertProfile() update error = %v", err)
	}

	got, err := s.GetProfile("p1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Age != 41 {
		t.Errorf("Age = %d, want 41", got.Age)
	}
	if got.TargetGlucoseMin != 80 || got.TargetGlucoseMax != 140 {
		t.Errorf("targets = %d/%d, want 80/140", got.TargetGlucoseMin, got.TargetGlucoseMax)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetProfile("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrNotFound", err)
	}
}

func TestProfileLanguageDefaultsToEnglish(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertProfile(PatientProfile{PatientID: "p1"}); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}
	got, err := s.GetProfile("p1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Language != "en" {
		t.Errorf("Language = %q, want %q", got.Language, "en")
	}
}

func TestMedications(t *testing.T) {
	s := openTestStore(t)
	mustProfile(t, s, "p1")

	meds := []Medication{
		{ID: "m1", PatientID: "p1", Name: "Metformin", Dosage: "500mg", TimeSlots: `["08:00","20:00"]`, Active: true},
		{ID: "m2", PatientID: "p1", Name: "Old med", Active: false},
	}
	for _, m := range meds {
		if err := s.AddMedication(m); err != nil {
			t.Fatalf("AddMedication(%s) error = %v", m.ID, err)
		}
	}

	active, err := s.ActiveMedications("p1")
	if err != nil {
		t.Fatalf("ActiveMedications() error = %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("len(active) = %d, want 1", len(active))
	}
	if active[0].Name != "Metformin" || active[0].TimeSlots != `["08:00","20:00"]` {
		t.Errorf("active medication = %+v", active[0])
	}
}

func TestReadingsOrderedNewestFirst(t *testing.T) {
	s := openTestStore(t)
	mustProfile(t, s, "p1")

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, v := range []float64{110, 145, 98} {
		r := GlucoseReading{
			ID:        "r" + string(rune('1'+i)),
			PatientID: "p1",
			Value:     v,
			TakenAt:   base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveReading(r); err != nil {
			t.Fatalf("SaveReading() error = %v", err)
		}
	}

	got, err := s.RecentReadings("p1", 2)
	if err != nil {
		t.Fatalf("RecentReadings() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Value != 98 || got[1].Value != 145 {
		t.Errorf("values = %v/%v, want newest first (98, 145)", got[0].Value, got[1].Value)
	}
}

func TestAssessmentsAndCounts(t *testing.T) {
	s := openTestStore(t)
	mustProfile(t, s, "p1")

	weeks := []time.Time{
		time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
	}
	for i, w := range weeks {
		a := WeeklyAssessment{
			ID:          "a" + string(rune('1'+i)),
			PatientID:   "p1",
			WeekDate:    w,
			EnergyLevel: 5 + i,
		}
		if err := s.SaveAssessment(a); err != nil {
			t.Fatalf("SaveAssessment() error = %v", err)
		}
	}

	recent, err := s.RecentAssessments("p1", 10)
	if err != nil {
		t.Fatalf("RecentAssessments() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if !recent[0].WeekDate.Equal(weeks[1]) {
		t.Errorf("newest assessment week = %v, want %v", recent[0].WeekDate, weeks[1])
	}
	if recent[0].EnergyLevel != 6 {
		t.Errorf("EnergyLevel = %d, want 6", recent[0].EnergyLevel)
	}

	n, err := s.CountAssessments("p1")
	if err != nil {
		t.Fatalf("CountAssessments() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountAssessments() = %d, want 2", n)
	}

	last, err := s.LastAssessmentDate("p1")
	if err != nil {
		t.Fatalf("LastAssessmentDate() error = %v", err)
	}
	if !last.Equal(weeks[1]) {
		t.Errorf("LastAssessmentDate() = %v, want %v", last, weeks[1])
	}
}

func TestLastAssessmentDateNotFound(t *testing.T) {
	s := openTestStore(t)
	mustProfile(t, s, "p1")

	if _, err := s.LastAssessmentDate("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LastAssessmentDate() error = %v, want ErrNotFound", err)
	}
}

func TestSaveMilestoneIdempotent(t *testing.T) {
	s := openTestStore(t)
	mustProfile(t, s, "p1")

	m := Milestone{
		ID:           "ms1",
		PatientID:    "p1",
		Type:         "first_week",
		Title:        "First Week Complete!",
		AchievedDate: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
	}
	inserted, err := s.SaveMilestone(m)
	if err != nil {
		t.Fatalf("SaveMilestone() error = %v", err)
	}
	if !inserted {
		t.Error("first SaveMilestone() should insert")
	}

	m.ID = "ms2"
	inserted, err = s.SaveMilestone(m)
	if err != nil {
		t.Fatalf("second SaveMilestone() error = %v", err)
	}
	if inserted {
		t.Error("duplicate milestone type should not insert")
	}

	has, err := s.HasMilestone("p1", "first_week")
	if err != nil {
		t.Fatalf("HasMilestone() error = %v", err)
	}
	if !has {
		t.Error("HasMilestone() = false, want true")
	}

	all, err := s.ListMilestones("p1")
	if err != nil {
		t.Fatalf("ListMilestones() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(milestones) = %d, want 1", len(all))
	}
}

func TestInsights(t *testing.T) {
	s := openTestStore(t)
	mustProfile(t, s, "p1")

	for i, mood := range []string{"negative", "positive"} {
		ci := ConversationInsight{
			ID:             "i" + string(rune('1'+i)),
			PatientID:      "p1",
			Date:           time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.UTC),
			Mood:           mood,
			Concerns:       `["stress"]`,
			FollowUpNeeded: mood == "negative",
		}
		if err := s.SaveInsight(ci); err != nil {
			t.Fatalf("SaveInsight() error = %v", err)
		}
	}

	got, err := s.RecentInsights("p1", 5)
	if err != nil {
		t.Fatalf("RecentInsights() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Mood != "positive" {
		t.Errorf("newest mood = %q, want positive", got[0].Mood)
	}
	if !got[1].FollowUpNeeded {
		t.Error("negative insight should carry follow-up flag")
	}
}

func mustProfile(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.UpsertProfile(PatientProfile{PatientID: id}); err != nil {
		t.Fatalf("UpsertProfile(%s) error = %v", id, err)
	}
}
