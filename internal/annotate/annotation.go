// Package annotate derives display metadata (reasoning trace, reference
// links, strategy) from a backend transcript and its extracted answer.
//
// Every parser here is read-only and tolerant: input that does not have the
// expected structure yields an empty field, never an error.
package annotate

import (
	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/transcript"
)

// Section markers emitted by the recommendation and profile backends. Their
// prompts depend on these exact strings.
const (
	MarkerThinking       = "=== THINKING PROCESS ==="
	MarkerFinalAnalysis  = "=== FINAL ANALYSIS ==="
	MarkerReferenceLinks = "=== REFERENCE LINKS ==="
	MarkerProfileSummary = "=== PROFILE SUMMARY ==="
)

const (
	recommendationLinkLimit = 10
	fallbackLinkLimit       = 5
)

// Annotation is the metadata attached to an answer. Nil pointers mean the
// field could not be derived.
type Annotation struct {
	ThinkingProcess *string
	ReferenceLinks  []string
	Strategy        *string
	Source          *string
	Confidence      *float64
	// MessageOverride replaces the extracted text before it is shown.
	MessageOverride *string
	// Payload carries structured data for the client, e.g. an extracted
	// profile.
	Payload map[string]any
}

// IsZero reports whether no field was derived.
func (a Annotation) IsZero() bool {
	return a.ThinkingProcess == nil && len(a.ReferenceLinks) == 0 &&
		a.Strategy == nil && a.Source == nil && a.Confidence == nil &&
		a.MessageOverride == nil && len(a.Payload) == 0
}

// Message returns the text to display: the override when present, else the
// extracted text.
func (a Annotation) Message(res transcript.Result) string {
	if a.MessageOverride != nil {
		return *a.MessageOverride
	}
	return res.Text
}

// Annotate dispatches to the parser for intent.
func Annotate(intent domain.Intent, res transcript.Result, t domain.Transcript) Annotation {
	switch intent {
	case domain.IntentGeneralQA:
		return annotateGeneralQA(res, t)
	case domain.IntentSchoolRecommendation:
		return annotateRecommendation(res)
	case domain.IntentStudentInfo:
		return annotateStudentInfo(res, t)
	default:
		return Annotation{}
	}
}

func strPtr(s string) *string { return &s }
