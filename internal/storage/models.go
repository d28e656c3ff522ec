package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PatientProfile is the patient-owned record created on first contact and
// mutated only through completed onboarding or explicit update flows.
// Zero values on optional fields (Age, Weight, targets, free-text fields)
// are persisted as SQL NULL.
type PatientProfile struct {
	PatientID           string
	Name                string
	Age                 int
	DiabetesType        string
	HbA1c               float64
	TargetGlucoseMin    int
	TargetGlucoseMax    int
	Weight              float64
	ActivityLevel       string
	DietaryRestrictions string
	Allergies           string
	Language            string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Medication is one entry in a patient's medication schedule.
type Medication struct {
	ID        string
	PatientID string
	Name      string
	Dosage    string
	Frequency string
	TimeSlots string // JSON array of "HH:MM" strings stored as text
	Active    bool
	CreatedAt time.Time
}

// GlucoseReading is a single ad hoc glucose measurement.
type GlucoseReading struct {
	ID          string
	PatientID   string
	Value       float64 // mg/dL
	MealContext string
	Notes       string
	TakenAt     time.Time
}

// WeeklyAssessment is one completed weekly check-in. Append-only; never
// mutated after creation.
type WeeklyAssessment struct {
	ID                  string
	PatientID           string
	WeekDate            time.Time
	GlucoseFrequency    string
	RangeCompliance     int // percent of readings in target range
	EnergyLevel         int // 1-10
	SleepQuality        int // 1-10
	MedicationAdherence int // percent
	Concerns            string
	CreatedAt           time.Time
}

// Milestone is a one-time achievement. At most one record exists per
// (patient, type); the unique index enforces idempotency.
type Milestone struct {
	ID           string
	PatientID    string
	Type         string
	Title        string
	Description  string
	AchievedDate time.Time
}

// ConversationInsight is an append-only per-message signal record.
type ConversationInsight struct {
	ID             string
	PatientID      string
	Date           time.Time
	Mood           string // "positive" | "neutral" | "negative"
	Concerns       string // JSON array of concern tags stored as text
	FollowUpNeeded bool
}
