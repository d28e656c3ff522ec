// Package trend turns completed weekly check-ins into insight lines and
// one-time milestones. Analysis is read-plus-idempotent-write: running
// it twice on the same data produces the same milestones exactly once.
package trend

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glucomate/glucomate/internal/storage"
)

// deadband is the minimum change in an averaged value considered a real
// trend rather than noise.
const deadband = 0.5

// significantEnergyDelta is the week-over-week energy improvement that
// earns the improvement milestone.
const significantEnergyDelta = 1.0

// Store is the slice of storage the analyzer consumes.
type Store interface {
	RecentAssessments(patientID string, limit int) ([]storage.WeeklyAssessment, error)
	CountAssessments(patientID string) (int, error)
	SaveMilestone(m storage.Milestone) (bool, error)
}

// Report is the outcome of analyzing one completed check-in.
type Report struct {
	// Insights are human-readable observations about week-over-week
	// movement, already phrased for the patient.
	Insights []string
	// NewMilestones are the milestones granted by this analysis, in
	// grant order. Already-held milestones never reappear here.
	NewMilestones []storage.Milestone
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Analyzer computes trends and grants milestones.
type Analyzer struct {
	store Store
	clock Clock
}

func NewAnalyzer(store Store) *Analyzer {
	return &Analyzer{store: store, clock: systemClock{}}
}

// WithClock replaces the analyzer clock. For tests.
func (a *Analyzer) WithClock(c Clock) *Analyzer {
	a.clock = c
	return a
}

// Analyze compares the patient's two most recent assessments and grants
// any newly earned milestones. With fewer than two assessments there is
// no trend, but count-based milestones are still evaluated.
func (a *Analyzer) Analyze(patientID string) (Report, error) {
	recent, err := a.store.RecentAssessments(patientID, 2)
	if err != nil {
		return Report{}, fmt.Errorf("loading assessments: %w", err)
	}
	count, err := a.store.CountAssessments(patientID)
	if err != nil {
		return Report{}, fmt.Errorf("counting assessments: %w", err)
	}

	var report Report
	var latest, previous *storage.WeeklyAssessment
	if len(recent) > 0 {
		latest = &recent[0]
	}
	if len(recent) > 1 {
		previous = &recent[1]
		report.Insights = compare(latest, previous)
	} else if latest != nil {
		report.Insights = []string{"This was your first check-in, so no trends yet. Next week we'll have something to compare."}
	}

	for _, m := range a.earned(patientID, latest, previous, count) {
		granted, err := a.store.SaveMilestone(m)
		if err != nil {
			slog.Warn("failed to record milestone", "patient", patientID, "type", m.Type, "error", err)
			continue
		}
		if granted {
			report.NewMilestones = append(report.NewMilestones, m)
		}
	}
	return report, nil
}

func compare(latest, previous *storage.WeeklyAssessment) []string {
	var insights []string

	if delta := float64(latest.EnergyLevel - previous.EnergyLevel); delta > deadband {
		insights = append(insights, "Your energy is up compared to last week. Whatever you changed is working.")
	} else if delta < -deadband {
		insights = append(insights, "Your energy dipped this week. Poor sleep or out-of-range readings can do that.")
	}

	if delta := float64(latest.SleepQuality - previous.SleepQuality); delta > deadband {
		insights = append(insights, "Your sleep improved this week, which usually helps glucose control too.")
	} else if delta < -deadband {
		insights = append(insights, "Your sleep slipped a bit. Worth watching, since it affects blood sugar.")
	}

	if delta := float64(latest.RangeCompliance - previous.RangeCompliance); delta > deadband {
		insights = append(insights, "More of your readings were in range than last week. Nice progress.")
	} else if delta < -deadband {
		insights = append(insights, "Fewer readings were in range this week. Let's keep an eye on that.")
	}

	return insights
}

// earned returns candidate milestones. SaveMilestone's unique index makes
// re-granting a no-op, so candidates may include already-held types.
func (a *Analyzer) earned(patientID string, latest, previous *storage.WeeklyAssessment, count int) []storage.Milestone {
	var candidates []storage.Milestone
	today := a.clock.Now().UTC()

	newMilestone := func(mtype, title, desc string) storage.Milestone {
		return storage.Milestone{
			ID:           uuid.NewString(),
			PatientID:    patientID,
			Type:         mtype,
			Title:        title,
			Description:  desc,
			AchievedDate: today,
		}
	}

	if count >= 1 {
		candidates = append(candidates, newMilestone("first_week",
			"First Week Complete!",
			"You finished your first weekly check-in."))
	}
	if count >= 3 {
		candidates = append(candidates, newMilestone("consistency_streak",
			"Three Weeks Strong!",
			"Three weekly check-ins in a row. Consistency is how habits stick."))
	}
	if latest != nil && previous != nil &&
		float64(latest.EnergyLevel-previous.EnergyLevel) > significantEnergyDelta {
		candidates = append(candidates, newMilestone("improvement_trend",
			"Energy On The Rise!",
			"A real jump in your energy levels week over week."))
	}
	if latest != nil && latest.RangeCompliance >= 75 {
		candidates = append(candidates, newMilestone("range_master",
			"Range Master!",
			"Three quarters or more of your readings in target range."))
	}
	return candidates
}
