// Package insight extracts lightweight signals from free-form messages:
// overall mood, recurring concern topics, and whether a human follow-up
// looks warranted.
package insight

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glucomate/glucomate/internal/storage"
)

var positiveWords = []string{
	"great", "good", "better", "improving", "happy", "proud",
	"thank", "awesome", "energetic", "motivated",
}

var negativeWords = []string{
	"bad", "worse", "struggling", "frustrated", "tired", "scared",
	"worried", "overwhelmed", "stressed", "anxious", "depressed",
	"hopeless", "giving up",
}

// concernTopics maps a tag to the vocabulary that marks it.
var concernTopics = map[string][]string{
	"diet":        {"food", "eat", "diet", "meal", "carb", "sugar cravings"},
	"medication":  {"medication", "insulin", "metformin", "dose", "pill", "side effect"},
	"glucose":     {"blood sugar", "glucose", "reading", "spike", "high", "low"},
	"exercise":    {"exercise", "walk", "workout", "activity"},
	"sleep":       {"sleep", "insomnia", "tired"},
	"stress":      {"stress", "anxious", "anxiety", "overwhelmed", "worried"},
	"cost":        {"afford", "expensive", "cost", "insurance"},
}

// Detect builds an insight record for one message. Mood is decided by
// which vocabulary has more hits; ties are neutral. Follow-up is flagged
// on negative mood combined with any concern topic.
func Detect(patientID, message string, now time.Time) storage.ConversationInsight {
	lower := strings.ToLower(message)

	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}

	mood := "neutral"
	if pos > neg {
		mood = "positive"
	} else if neg > pos {
		mood = "negative"
	}

	var concerns []string
	for tag, words := range concernTopics {
		for _, w := range words {
			if strings.Contains(lower, w) {
				concerns = append(concerns, tag)
				break
			}
		}
	}
	sort.Strings(concerns)

	concernsJSON, _ := json.Marshal(concerns)
	if concerns == nil {
		concernsJSON = []byte("[]")
	}

	return storage.ConversationInsight{
		ID:             uuid.NewString(),
		PatientID:      patientID,
		Date:           now.UTC().Truncate(24 * time.Hour),
		Mood:           mood,
		Concerns:       string(concernsJSON),
		FollowUpNeeded: mood == "negative" && len(concerns) > 0,
	}
}
