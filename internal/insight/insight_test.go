package insight

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)

func TestDetectPositiveMood(t *testing.T) {
	ci := Detect("p1", "Feeling great, my numbers are better this week!", testNow)
	if ci.Mood != "positive" {
		t.Errorf("Mood = %q, want positive", ci.Mood)
	}
	if ci.FollowUpNeeded {
		t.Error("positive mood should not need follow-up")
	}
}

func TestDetectNegativeWithConcernsNeedsFollowUp(t *testing.T) {
	ci := Detect("p1", "I'm so frustrated, I keep forgetting my insulin dose", testNow)
	if ci.Mood != "negative" {
		t.Errorf("Mood = %q, want negative", ci.Mood)
	}
	if ci.Concerns != `["medication"]` {
		t.Errorf("Concerns = %q, want [\"medication\"]", ci.Concerns)
	}
	if !ci.FollowUpNeeded {
		t.Error("negative mood with a concern should need follow-up")
	}
}

func TestDetectNeutral(t *testing.T) {
	ci := Detect("p1", "what time is my appointment", testNow)
	if ci.Mood != "neutral" {
		t.Errorf("Mood = %q, want neutral", ci.Mood)
	}
	if ci.Concerns != "[]" {
		t.Errorf("Concerns = %q, want empty array", ci.Concerns)
	}
	if ci.FollowUpNeeded {
		t.Error("neutral message should not need follow-up")
	}
}

func TestDetectMultipleConcernsSorted(t *testing.T) {
	ci := Detect("p1", "worried about food choices and my blood sugar spikes", testNow)
	if ci.Concerns != `["diet","glucose","stress"]` {
		t.Errorf("Concerns = %q, want sorted diet/glucose/stress", ci.Concerns)
	}
}

func TestDetectDateTruncated(t *testing.T) {
	ci := Detect("p1", "hello", testNow)
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !ci.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", ci.Date, want)
	}
	if ci.ID == "" || ci.PatientID != "p1" {
		t.Errorf("record = %+v", ci)
	}
}
