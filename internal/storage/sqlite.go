package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dateLayout = "2006-01-02"

// Store wraps a SQLite database holding all patient data: profiles,
// medications, glucose readings, weekly assessments, milestones, and
// conversation insights.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "glucomate.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent turns.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Patient profiles ---

// UpsertProfile inserts or replaces the profile row for p.PatientID.
// Optional fields with zero values are written as NULL.
func (s *Store) UpsertProfile(p PatientProfile) error {
	now := time.Now().UTC().Format(time.RFC3339)
	lang := p.Language
	if lang == "" {
		lang = "en"
	}
	_, err := s.db.Exec(`
		INSERT INTO patient_profiles
			(patient_id, name, age, diabetes_type, hba1c, target_glucose_min, target_glucose_max,
			 weight, activity_level, dietary_restrictions, allergies, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			diabetes_type = excluded.diabetes_type,
			hba1c = excluded.hba1c,
			target_glucose_min = excluded.target_glucose_min,
			target_glucose_max = excluded.target_glucose_max,
			weight = excluded.weight,
			activity_level = excluded.activity_level,
			dietary_restrictions = excluded.dietary_restrictions,
			allergies = excluded.allergies,
			language = excluded.language,
			updated_at = excluded.updated_at`,
		p.PatientID, nullStr(p.Name), nullInt(p.Age), nullStr(p.DiabetesType), nullFloat(p.HbA1c),
		nullInt(p.TargetGlucoseMin), nullInt(p.TargetGlucoseMax), nullFloat(p.Weight),
		nullStr(p.ActivityLevel), nullStr(p.DietaryRestrictions), nullStr(p.Allergies),
		lang, now, now,
	)
	return err
}

// GetProfile loads the profile for patientID, or ErrNotFound.
func (s *Store) GetProfile(patientID string) (PatientProfile, error) {
	var (
		p                                        PatientProfile
		name, dtype, activity, diet, allergies   sql.NullString
		age, tmin, tmax                          sql.NullInt64
		hba1c, weight                            sql.NullFloat64
		createdAt, updatedAt                     string
	)
	err := s.db.QueryRow(`
		SELECT patient_id, name, age, diabetes_type, hba1c, target_glucose_min, target_glucose_max,
		       weight, activity_level, dietary_restrictions, allergies, language, created_at, updated_at
		FROM patient_profiles WHERE patient_id = ?`, patientID,
	).Scan(&p.PatientID, &name, &age, &dtype, &hba1c, &tmin, &tmax,
		&weight, &activity, &diet, &allergies, &p.Language, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return PatientProfile{}, ErrNotFound
	}
	if err != nil {
		return PatientProfile{}, err
	}

	p.Name = name.String
	p.Age = int(age.Int64)
	p.DiabetesType = dtype.String
	p.HbA1c = hba1c.Float64
	p.TargetGlucoseMin = int(tmin.Int64)
	p.TargetGlucoseMax = int(tmax.Int64)
	p.Weight = weight.Float64
	p.ActivityLevel = activity.String
	p.DietaryRestrictions = diet.String
	p.Allergies = allergies.String
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return PatientProfile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return PatientProfile{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

// PatientIDs returns every known patient id.
func (s *Store) PatientIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT patient_id FROM patient_profiles")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Medications ---

func (s *Store) AddMedication(m Medication) error {
	slots := m.TimeSlots
	if slots == "" {
		slots = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO medications (id, patient_id, name, dosage, frequency, time_slots, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.PatientID, m.Name, nullStr(m.Dosage), nullStr(m.Frequency), slots,
		boolToInt(m.Active), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ActiveMedications returns the active medication schedule for a patient.
func (s *Store) ActiveMedications(patientID string) ([]Medication, error) {
	rows, err := s.db.Query(`
		SELECT id, patient_id, name, dosage, frequency, time_slots, active, created_at
		FROM medications WHERE patient_id = ? AND active = 1`, patientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []Medication
	for rows.Next() {
		var (
			m                 Medication
			dosage, frequency sql.NullString
			active            int
			createdAt         string
		)
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Name, &dosage, &frequency, &m.TimeSlots, &active, &createdAt); err != nil {
			return nil, err
		}
		m.Dosage = dosage.String
		m.Frequency = frequency.String
		m.Active = active == 1
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for medication %s: %w", m.ID, err)
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// --- Glucose readings ---

func (s *Store) SaveReading(r GlucoseReading) error {
	takenAt := r.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO glucose_readings (id, patient_id, value, meal_context, notes, taken_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.PatientID, r.Value, nullStr(r.MealContext), nullStr(r.Notes),
		takenAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentReadings returns up to limit readings, newest first.
func (s *Store) RecentReadings(patientID string, limit int) ([]GlucoseReading, error) {
	rows, err := s.db.Query(`
		SELECT id, patient_id, value, meal_context, notes, taken_at
		FROM glucose_readings WHERE patient_id = ?
		ORDER BY taken_at DESC LIMIT ?`, patientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []GlucoseReading
	for rows.Next() {
		var (
			r                  GlucoseReading
			mealCtx, notes     sql.NullString
			takenAt            string
		)
		if err := rows.Scan(&r.ID, &r.PatientID, &r.Value, &mealCtx, &notes, &takenAt); err != nil {
			return nil, err
		}
		r.MealContext = mealCtx.String
		r.Notes = notes.String
		if r.TakenAt, err = time.Parse(time.RFC3339, takenAt); err != nil {
			return nil, fmt.Errorf("parsing taken_at for reading %s: %w", r.ID, err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// --- Weekly assessments ---

func (s *Store) SaveAssessment(a WeeklyAssessment) error {
	_, err := s.db.Exec(`
		INSERT INTO weekly_assessments
			(id, patient_id, week_date, glucose_frequency, range_compliance, energy_level,
			 sleep_quality, medication_adherence, concerns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PatientID, a.WeekDate.Format(dateLayout), nullStr(a.GlucoseFrequency),
		nullInt(a.RangeCompliance), nullInt(a.EnergyLevel), nullInt(a.SleepQuality),
		nullInt(a.MedicationAdherence), nullStr(a.Concerns),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// RecentAssessments returns up to limit assessments ordered newest first.
func (s *Store) RecentAssessments(patientID string, limit int) ([]WeeklyAssessment, error) {
	rows, err := s.db.Query(`
		SELECT id, patient_id, week_date, glucose_frequency, range_compliance, energy_level,
		       sleep_quality, medication_adherence, concerns, created_at
		FROM weekly_assessments WHERE patient_id = ?
		ORDER BY week_date DESC, created_at DESC LIMIT ?`, patientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []WeeklyAssessment
	for rows.Next() {
		var (
			a                        WeeklyAssessment
			freq, concerns           sql.NullString
			compliance, energy       sql.NullInt64
			sleep, adherence         sql.NullInt64
			weekDate, createdAt      string
		)
		if err := rows.Scan(&a.ID, &a.PatientID, &weekDate, &freq, &compliance, &energy,
			&sleep, &adherence, &concerns, &createdAt); err != nil {
			return nil, err
		}
		a.GlucoseFrequency = freq.String
		a.RangeCompliance = int(compliance.Int64)
		a.EnergyLevel = int(energy.Int64)
		a.SleepQuality = int(sleep.Int64)
		a.MedicationAdherence = int(adherence.Int64)
		a.Concerns = concerns.String
		if a.WeekDate, err = time.Parse(dateLayout, weekDate); err != nil {
			return nil, fmt.Errorf("parsing week_date for assessment %s: %w", a.ID, err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for assessment %s: %w", a.ID, err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// CountAssessments returns the total completed assessments for a patient.
func (s *Store) CountAssessments(patientID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM weekly_assessments WHERE patient_id = ?", patientID).Scan(&n)
	return n, err
}

// LastAssessmentDate returns the most recent week_date, or ErrNotFound when
// the patient has never completed a check-in.
func (s *Store) LastAssessmentDate(patientID string) (time.Time, error) {
	var weekDate string
	err := s.db.QueryRow(`
		SELECT week_date FROM weekly_assessments
		WHERE patient_id = ? ORDER BY week_date DESC LIMIT 1`, patientID,
	).Scan(&weekDate)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(dateLayout, weekDate)
}

// --- Milestones ---

// SaveMilestone records a milestone if the patient does not already hold one
// of the same type. Returns true when a new record was inserted.
func (s *Store) SaveMilestone(m Milestone) (bool, error) {
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO milestones (id, patient_id, milestone_type, title, description, achieved_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.PatientID, m.Type, m.Title, nullStr(m.Description),
		m.AchievedDate.Format(dateLayout),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// HasMilestone reports whether the patient already holds a milestone of the
// given type.
func (s *Store) HasMilestone(patientID, milestoneType string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM milestones
		WHERE patient_id = ? AND milestone_type = ?`, patientID, milestoneType,
	).Scan(&n)
	return n > 0, err
}

// ListMilestones returns all milestones for a patient, newest first.
func (s *Store) ListMilestones(patientID string) ([]Milestone, error) {
	rows, err := s.db.Query(`
		SELECT id, patient_id, milestone_type, title, description, achieved_date
		FROM milestones WHERE patient_id = ? ORDER BY achieved_date DESC`, patientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Milestone
	for rows.Next() {
		var (
			m            Milestone
			desc         sql.NullString
			achievedDate string
		)
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Type, &m.Title, &desc, &achievedDate); err != nil {
			return nil, err
		}
		m.Description = desc.String
		if m.AchievedDate, err = time.Parse(dateLayout, achievedDate); err != nil {
			return nil, fmt.Errorf("parsing achieved_date for milestone %s: %w", m.ID, err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Conversation insights ---

func (s *Store) SaveInsight(ci ConversationInsight) error {
	concerns := ci.Concerns
	if concerns == "" {
		concerns = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO conversation_insights (id, patient_id, insight_date, mood, concerns, follow_up_needed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ci.ID, ci.PatientID, ci.Date.Format(dateLayout), ci.Mood, concerns,
		boolToInt(ci.FollowUpNeeded),
	)
	return err
}

// RecentInsights returns up to limit insight records, newest first.
func (s *Store) RecentInsights(patientID string, limit int) ([]ConversationInsight, error) {
	rows, err := s.db.Query(`
		SELECT id, patient_id, insight_date, mood, concerns, follow_up_needed
		FROM conversation_insights WHERE patient_id = ?
		ORDER BY insight_date DESC, rowid DESC LIMIT ?`, patientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ConversationInsight
	for rows.Next() {
		var (
			ci       ConversationInsight
			date     string
			followUp int
		)
		if err := rows.Scan(&ci.ID, &ci.PatientID, &date, &ci.Mood, &ci.Concerns, &followUp); err != nil {
			return nil, err
		}
		ci.FollowUpNeeded = followUp == 1
		if ci.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parsing insight_date for insight %s: %w", ci.ID, err)
		}
		results = append(results, ci)
	}
	return results, rows.Err()
}

// --- helpers ---

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
