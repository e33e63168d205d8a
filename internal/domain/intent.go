package domain

// Intent is the classified purpose of a user message. It selects the backend
// that handles the message.
type Intent string

const (
	// IntentGeneralQA routes to the retrieval-augmented QA backend.
	IntentGeneralQA Intent = "GENERAL_QA"
	// IntentSchoolRecommendation routes to the recommendation pipeline.
	IntentSchoolRecommendation Intent = "SCHOOL_RECOMMENDATION"
	// IntentStudentInfo routes to the profile-extraction pipeline.
	IntentStudentInfo Intent = "STUDENT_INFO"
)

// AllIntents returns every intent in a stable order.
func AllIntents() []Intent {
	return []Intent{IntentGeneralQA, IntentSchoolRecommendation, IntentStudentInfo}
}

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentGeneralQA, IntentSchoolRecommendation, IntentStudentInfo:
		return true
	}
	return false
}

// Label returns a human readable name used in user-facing messages.
func (i Intent) Label() string {
	switch i {
	case IntentGeneralQA:
		return "general question"
	case IntentSchoolRecommendation:
		return "school recommendation"
	case IntentStudentInfo:
		return "profile update"
	default:
		return "request"
	}
}

// Fallback returns the team name reported when the answer is degraded.
func (i Intent) Fallback() string {
	return string(i) + "_FALLBACK"
}
