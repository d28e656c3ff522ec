package dialogue

// FieldKind describes how an answer to a question is validated.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldNumber FieldKind = "number"
	FieldChoice FieldKind = "choice"
	FieldScale  FieldKind = "scale"
)

// Choice is one numbered option of a choice question. Value is the
// normalized value stored when the option is picked.
type Choice struct {
	Label string
	Value string
}

// Question is a single slot of a guided flow.
type Question struct {
	Field    string
	Prompt   string
	Kind     FieldKind
	Required bool
	Choices  []Choice
	Min, Max int // bounds for number and scale fields
}

// ProfileQuestions returns the onboarding flow, in order. Optional
// questions can be skipped with "skip"; required ones cannot.
func ProfileQuestions() []Question {
	return []Question{
		{
			Field:  "name",
			Prompt: "What would you like me to call you? (or say \"skip\")",
			Kind:   FieldText,
		},
		{
			Field:    "diabetes_type",
			Prompt:   "What type of diabetes do you have? (Type 1, Type 2, Gestational, or Prediabetes)",
			Kind:     FieldText,
			Required: true,
		},
		{
			Field:    "age",
			Prompt:   "How old are you?",
			Kind:     FieldNumber,
			Required: true,
			Min:      1,
			Max:      120,
		},
		{
			Field:  "weight_kg",
			Prompt: "What is your weight in kilograms? (or say \"skip\")",
			Kind:   FieldNumber,
			Min:    20,
			Max:    300,
		},
		{
			Field:    "activity_level",
			Prompt:   "How would you describe your activity level? (Sedentary, Light, Moderate, Active, or Very Active)",
			Kind:     FieldText,
			Required: true,
		},
		{
			Field:  "dietary_restrictions",
			Prompt: "Do you have any dietary restrictions or preferences? (or say \"skip\")",
			Kind:   FieldText,
		},
		{
			Field:  "target_glucose_min",
			Prompt: "What is the lower end of your target glucose range, in mg/dL? (or say \"skip\")",
			Kind:   FieldNumber,
			Min:    50,
			Max:    300,
		},
		{
			Field:  "target_glucose_max",
			Prompt: "And the upper end of your target range, in mg/dL? (or say \"skip\")",
			Kind:   FieldNumber,
			Min:    50,
			Max:    300,
		},
	}
}

// CheckinQuestions returns the weekly check-in flow, in order.
func CheckinQuestions() []Question {
	return []Question{
		{
			Field:    "glucose_frequency",
			Prompt:   "How often did you check your blood sugar this week?\n1. Multiple times a day\n2. Once a day\n3. A few times this week\n4. Rarely or not at all",
			Kind:     FieldChoice,
			Required: true,
			Choices: []Choice{
				{Label: "Multiple times a day", Value: "multiple_daily"},
				{Label: "Once a day", Value: "daily"},
				{Label: "A few times this week", Value: "few_weekly"},
				{Label: "Rarely or not at all", Value: "rarely"},
			},
		},
		{
			Field:    "range_compliance",
			Prompt:   "How often were your readings in your target range?\n1. Almost always\n2. Most of the time\n3. About half the time\n4. Rarely",
			Kind:     FieldChoice,
			Required: true,
			Choices: []Choice{
				{Label: "Almost always", Value: "90"},
				{Label: "Most of the time", Value: "75"},
				{Label: "About half the time", Value: "50"},
				{Label: "Rarely", Value: "25"},
			},
		},
		{
			Field:    "energy_level",
			Prompt:   "On a scale of 1 to 10, how has your energy been this week?",
			Kind:     FieldScale,
			Required: true,
			Min:      1,
			Max:      10,
		},
		{
			Field:    "sleep_quality",
			Prompt:   "On a scale of 1 to 10, how well have you been sleeping?",
			Kind:     FieldScale,
			Required: true,
			Min:      1,
			Max:      10,
		},
		{
			Field:    "medication_adherence",
			Prompt:   "How did you do with your medications this week?\n1. Never missed a dose\n2. Missed one or two\n3. Missed several\n4. Struggled to keep up",
			Kind:     FieldChoice,
			Required: true,
			Choices: []Choice{
				{Label: "Never missed a dose", Value: "100"},
				{Label: "Missed one or two", Value: "85"},
				{Label: "Missed several", Value: "60"},
				{Label: "Struggled to keep up", Value: "40"},
			},
		},
		{
			Field:  "concerns",
			Prompt: "Anything on your mind about your diabetes this week? (or say \"skip\")",
			Kind:   FieldText,
		},
	}
}
