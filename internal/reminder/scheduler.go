// Package reminder sweeps active medication schedules once a minute and
// notifies patients whose dose time falls inside the current window.
package reminder

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/glucomate/glucomate/internal/storage"
)

// window is how far a dose time may sit from the sweep instant and
// still fire.
const window = 2 * time.Minute

// Store lists patients with medication schedules.
type Store interface {
	ActiveMedications(patientID string) ([]storage.Medication, error)
	PatientIDs() ([]string, error)
}

// Notifier delivers one reminder. Implementations decide the channel;
// the server uses a queue surfaced on the patient's next turn.
type Notifier interface {
	Notify(patientID, message string)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Scheduler runs the minute sweep.
type Scheduler struct {
	store    Store
	notifier Notifier
	clock    Clock
	cron     *cron.Cron
}

func NewScheduler(store Store, notifier Notifier) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		clock:    systemClock{},
	}
}

// WithClock replaces the scheduler clock. For tests.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// Start begins the minute sweep in the background.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("* * * * *", s.Sweep); err != nil {
		return fmt.Errorf("scheduling reminder sweep: %w", err)
	}
	s.cron.Start()
	slog.Info("medication reminder sweep started")
	return nil
}

// Stop halts the sweep and waits for a running one to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep checks every patient's active medications against the current
// time and notifies for doses due within the window.
func (s *Scheduler) Sweep() {
	ids, err := s.store.PatientIDs()
	if err != nil {
		slog.Error("reminder sweep: listing patients", "error", err)
		return
	}

	now := s.clock.Now()
	for _, id := range ids {
		meds, err := s.store.ActiveMedications(id)
		if err != nil {
			slog.Warn("reminder sweep: loading medications", "patient", id, "error", err)
			continue
		}
		for _, m := range meds {
			for _, slot := range parseSlots(m.TimeSlots) {
				if due(now, slot) {
					s.notifier.Notify(id, fmt.Sprintf("Time for your %s (%s).", m.Name, m.Dosage))
				}
			}
		}
	}
}

// parseSlots decodes the stored JSON array of "HH:MM" strings, dropping
// entries that do not parse.
func parseSlots(raw string) []string {
	if raw == "" {
		return nil
	}
	var slots []string
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		slog.Warn("reminder sweep: bad time_slots payload", "raw", raw, "error", err)
		return nil
	}
	valid := slots[:0]
	for _, s := range slots {
		if _, err := time.Parse("15:04", s); err == nil {
			valid = append(valid, s)
		}
	}
	return valid
}

// due reports whether the HH:MM slot falls within the window around now,
// in now's location.
func due(now time.Time, slot string) bool {
	t, err := time.Parse("15:04", slot)
	if err != nil {
		return false
	}
	slotToday := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	diff := now.Sub(slotToday)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}
