// Package safety screens every inbound message for emergency and warning
// symptom language before any other processing happens. The gate is pure
// string matching; it never calls external services, so it cannot fail.
package safety

import "strings"

// Urgency ranks how the rest of the pipeline must treat a message.
type Urgency string

const (
	UrgencyEmergency Urgency = "EMERGENCY"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyNormal    Urgency = "NORMAL"
)

// Result is the gate's verdict on a single message.
type Result struct {
	IsEmergency bool
	Urgency     Urgency
	// Message is the canned guidance for emergency and warning hits;
	// empty for normal messages.
	Message string
}

// RuleSet holds the phrase lists the gate matches against. Phrases are
// matched as case-insensitive substrings of the raw message.
type RuleSet struct {
	Emergency []string
	Warning   []string
}

// DefaultRules covers the symptom vocabulary for diabetic emergencies
// (severe hypoglycemia, DKA) and early warning signs of poor control.
func DefaultRules() RuleSet {
	return RuleSet{
		Emergency: []string{
			"severe hypoglycemia",
			"blood sugar below 50",
			"unconscious",
			"diabetic ketoacidosis",
			"dka",
			"blood sugar over 400",
			"vomiting repeatedly",
			"difficulty breathing",
			"chest pain",
			"severe dehydration",
			"can't keep fluids down",
		},
		Warning: []string{
			"blood sugar over 300",
			"ketones in urine",
			"blurred vision",
			"frequent urination",
			"extreme thirst",
			"unexplained weight loss",
		},
	}
}

const emergencyMessage = "MEDICAL EMERGENCY DETECTED\n\n" +
	"Call 911 or your local emergency number immediately.\n\n" +
	"While waiting for help:\n" +
	"- If blood sugar is low and you are conscious: take 15g of fast-acting carbs (juice, glucose tablets)\n" +
	"- If blood sugar is very high: do not take extra insulin without medical guidance\n" +
	"- Stay calm and do not drive yourself\n\n" +
	"This may be a life-threatening situation. Please seek emergency care now."

const warningMessage = "These symptoms need medical attention soon.\n\n" +
	"Please contact your healthcare provider today, or visit urgent care if you cannot reach them. " +
	"Keep monitoring your blood sugar in the meantime."

// Gate evaluates messages against a RuleSet.
type Gate struct {
	rules RuleSet
}

func NewGate(rules RuleSet) *Gate {
	return &Gate{rules: rules}
}

// Evaluate classifies a message. Emergency phrases take precedence over
// warning phrases; the first category with any hit wins.
func (g *Gate) Evaluate(message string) Result {
	lower := strings.ToLower(message)

	for _, phrase := range g.rules.Emergency {
		if strings.Contains(lower, phrase) {
			return Result{
				IsEmergency: true,
				Urgency:     UrgencyEmergency,
				Message:     emergencyMessage,
			}
		}
	}
	for _, phrase := range g.rules.Warning {
		if strings.Contains(lower, phrase) {
			return Result{
				Urgency: UrgencyHigh,
				Message: warningMessage,
			}
		}
	}
	return Result{Urgency: UrgencyNormal}
}
