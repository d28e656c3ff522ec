package dialogue

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationResult is the outcome of checking one answer. Invalid input
// is not an error: the flow re-asks with Hint and the turn succeeds.
type ValidationResult struct {
	OK    bool
	Value string // normalized value to store
	Hint  string // re-prompt guidance when !OK
}

func valid(value string) ValidationResult {
	return ValidationResult{OK: true, Value: value}
}

func invalid(hint string) ValidationResult {
	return ValidationResult{Hint: hint}
}

var diabetesTypes = map[string]string{
	"type 1":       "Type 1",
	"type1":        "Type 1",
	"t1":           "Type 1",
	"1":            "Type 1",
	"type 2":       "Type 2",
	"type2":        "Type 2",
	"t2":           "Type 2",
	"2":            "Type 2",
	"gestational":  "Gestational",
	"gdm":          "Gestational",
	"prediabetes":  "Prediabetes",
	"pre-diabetes": "Prediabetes",
	"pre diabetes": "Prediabetes",
}

var activityLevels = map[string]string{
	"sedentary":         "Sedentary",
	"inactive":          "Sedentary",
	"light":             "Light",
	"lightly active":    "Light",
	"moderate":          "Moderate",
	"moderately active": "Moderate",
	"active":            "Active",
	"very active":       "Very Active",
	"intense":           "Very Active",
}

// validateAnswer checks a raw answer against a question definition.
// answers holds previously collected values for cross-field checks.
func validateAnswer(q Question, raw string, answers map[string]string) ValidationResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return invalid("I didn't catch that. " + q.Prompt)
	}

	switch q.Kind {
	case FieldChoice:
		return validateChoice(q, trimmed)
	case FieldNumber, FieldScale:
		return validateNumber(q, trimmed, answers)
	default:
		return validateField(q, trimmed)
	}
}

func validateChoice(q Question, raw string) ValidationResult {
	lower := strings.ToLower(raw)
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(q.Choices) {
		return valid(q.Choices[n-1].Value)
	}
	for _, c := range q.Choices {
		if strings.EqualFold(c.Label, raw) || strings.Contains(strings.ToLower(c.Label), lower) {
			return valid(c.Value)
		}
	}
	return invalid(fmt.Sprintf("Please answer with a number from 1 to %d.", len(q.Choices)))
}

func validateNumber(q Question, raw string, answers map[string]string) ValidationResult {
	// Tolerate "45 years" and "120 mg/dL" style answers.
	fields := strings.Fields(raw)
	n, err := strconv.Atoi(strings.TrimSuffix(fields[0], "."))
	if err != nil {
		return invalid("Please answer with a number.")
	}
	if n < q.Min || n > q.Max {
		return invalid(fmt.Sprintf("Please give a number between %d and %d.", q.Min, q.Max))
	}
	if q.Field == "target_glucose_max" {
		if minStr, ok := answers["target_glucose_min"]; ok {
			if min, err := strconv.Atoi(minStr); err == nil && n <= min {
				return invalid(fmt.Sprintf("The upper end should be above your lower end of %d mg/dL.", min))
			}
		}
	}
	return valid(strconv.Itoa(n))
}

func validateField(q Question, raw string) ValidationResult {
	lower := strings.ToLower(raw)
	switch q.Field {
	case "diabetes_type":
		for key, norm := range diabetesTypes {
			if lower == key {
				return valid(norm)
			}
		}
		// Longest keys first so "type 1 diabetes" does not match "1".
		for _, key := range []string{"pre diabetes", "pre-diabetes", "prediabetes", "gestational", "type 1", "type 2", "type1", "type2", "gdm", "t1", "t2"} {
			if strings.Contains(lower, key) {
				return valid(diabetesTypes[key])
			}
		}
		return invalid("Please answer Type 1, Type 2, Gestational, or Prediabetes.")
	case "activity_level":
		if norm, ok := activityLevels[lower]; ok {
			return valid(norm)
		}
		for _, key := range []string{"very active", "moderately active", "lightly active", "sedentary", "inactive", "moderate", "intense", "active", "light"} {
			if strings.Contains(lower, key) {
				return valid(activityLevels[key])
			}
		}
		return invalid("Please answer Sedentary, Light, Moderate, Active, or Very Active.")
	default:
		return valid(raw)
	}
}
